package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, dir, symbol, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, symbol+".csv"), []byte(body), 0o600))
}

func TestCSVProviderReadsBars(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "SPY", "Date,Open,High,Low,Close\n2024-01-02,1,1,1,470.5\n2024-01-03,1,1,1,468.9\n")

	bars, err := NewCSVProvider(dir).DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 470.5, bars[0].Close)
	assert.Equal(t, 468.9, bars[1].Close)
}

func TestCSVProviderSortsOutOfOrderRows(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "SPY", "date,close\n2024-01-03,101\n2024-01-02,100\n")

	bars, err := NewCSVProvider(dir).DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.Equal(t, 100.0, bars[0].Close)
}

func TestCSVProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing close column", "date,volume\n2024-01-02,10\n", "close"},
		{"bad date", "date,close\nnot-a-date,100\n", "bad date"},
		{"bad close", "date,close\n2024-01-02,abc\n", "bad close"},
		{"duplicate date", "date,close\n2024-01-02,100\n2024-01-02,101\n", "duplicate date"},
		{"non-positive close", "date,close\n2024-01-02,-5\n", "invalid close"},
		{"no rows", "date,close\n", "no bars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeCSV(t, dir, "SPY", tt.body)
			_, err := NewCSVProvider(dir).DailyBars(context.Background(), "SPY")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestCSVProviderMissingFile(t *testing.T) {
	_, err := NewCSVProvider(t.TempDir()).DailyBars(context.Background(), "NOPE")
	assert.Error(t, err)
}

func TestHTTPProviderFetches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SPY", r.URL.Query().Get("s"))
		_, _ = w.Write([]byte("Date,Close\n2024-01-02,470.5\n2024-01-03,468.9\n"))
	}))
	defer srv.Close()

	bars, err := NewHTTPProvider(srv.URL, nil).DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 470.5, bars[0].Close)
}

func TestHTTPProviderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, nil).DailyBars(context.Background(), "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestHTTPProviderClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL, nil).DailyBars(context.Background(), "SPY")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTransient)
}

func TestHTTPProviderBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL, nil)
	for i := 0; i < 6; i++ {
		_, err := p.DailyBars(context.Background(), "SPY")
		require.Error(t, err)
	}
	// Breaker is now open; the failure is still surfaced as transient.
	_, err := p.DailyBars(context.Background(), "SPY")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestSyntheticProviderDeterministic(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := NewSyntheticProvider(7, start, 60)
	b := NewSyntheticProvider(7, start, 60)

	barsA, err := a.DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	barsB, err := b.DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, barsA, barsB)

	c := NewSyntheticProvider(8, start, 60)
	barsC, err := c.DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	assert.NotEqual(t, barsA, barsC)
}

func TestSyntheticProviderSymbolsDiffer(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewSyntheticProvider(7, start, 60)

	spy, err := p.DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	qqq, err := p.DailyBars(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.NotEqual(t, spy, qqq)
}

func TestSyntheticProviderSkipsWeekends(t *testing.T) {
	// 2024-01-06 is a Saturday.
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	bars, err := NewSyntheticProvider(1, start, 3).DailyBars(context.Background(), "SPY")
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, time.Friday, bars[0].Date.Weekday())
	assert.Equal(t, time.Monday, bars[1].Date.Weekday())
	assert.Equal(t, time.Tuesday, bars[2].Date.Weekday())
}

func TestSyntheticProviderRefSeriesStaysPositive(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewSyntheticProvider(3, start, 250)
	bars, err := p.DailyBars(context.Background(), p.RefSymbol)
	require.NoError(t, err)
	require.Len(t, bars, 250)
	for _, b := range bars {
		assert.GreaterOrEqual(t, b.Close, 9.0)
	}
}
