package marketdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/emontero/straddle-roller/internal/models"
)

// CSVProvider reads daily bars from <dir>/<symbol>.csv. Files carry a header
// and two columns, date (YYYY-MM-DD) and close; extra columns are ignored so
// vendor exports with open/high/low work unchanged.
type CSVProvider struct {
	dir string
}

// NewCSVProvider returns a provider rooted at dir.
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// DailyBars loads and validates the series for symbol.
func (p *CSVProvider) DailyBars(_ context.Context, symbol string) ([]models.Bar, error) {
	path := filepath.Join(p.dir, symbol+".csv")
	f, err := os.Open(path) // #nosec G304 -- path comes from user configuration
	if err != nil {
		return nil, fmt.Errorf("marketdata: opening %s: %w", path, err)
	}
	defer f.Close()

	bars, err := parseCSV(f, symbol)
	if err != nil {
		return nil, err
	}
	return validateBars(symbol, bars)
}

func parseCSV(r io.Reader, symbol string) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("marketdata: reading %q header: %w", symbol, err)
	}
	dateIdx, closeIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "datetime":
			dateIdx = i
		case "close":
			closeIdx = i
		}
	}
	if dateIdx < 0 || closeIdx < 0 {
		return nil, fmt.Errorf("marketdata: %q needs date and close columns, got %v", symbol, header)
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("marketdata: %q line %d: %w", symbol, line, err)
		}
		date, err := parseDay(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("marketdata: %q line %d: bad date %q", symbol, line, rec[dateIdx])
		}
		cl, err := strconv.ParseFloat(strings.TrimSpace(rec[closeIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("marketdata: %q line %d: bad close %q", symbol, line, rec[closeIdx])
		}
		bars = append(bars, models.Bar{Date: date, Close: cl})
	}
	return bars, nil
}
