package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/emontero/straddle-roller/internal/models"
)

// HTTPProvider fetches daily bars from an HTTP endpoint that serves CSV with
// date and close columns (stooq-style download URLs fit this shape). A
// circuit breaker keeps a flapping endpoint from being hammered; transient
// failures are wrapped in ErrTransient so a retry layer can distinguish them.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewHTTPProvider builds a provider for baseURL; the symbol is appended as a
// query parameter. A nil logger falls back to the logrus standard logger.
func NewHTTPProvider(baseURL string, logger *logrus.Logger) *HTTPProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	settings := gobreaker.Settings{
		Name:    "marketdata-http",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("market data circuit breaker state change")
		},
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// DailyBars fetches and validates the series for symbol.
func (p *HTTPProvider) DailyBars(ctx context.Context, symbol string) ([]models.Bar, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.fetch(ctx, symbol)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("marketdata: circuit open for %q: %w (%v)", symbol, ErrTransient, err)
		}
		return nil, err
	}
	return result.([]models.Bar), nil
}

func (p *HTTPProvider) fetch(ctx context.Context, symbol string) ([]models.Bar, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("marketdata: bad base URL %q: %w", p.baseURL, err)
	}
	q := u.Query()
	q.Set("s", symbol)
	q.Set("i", "d")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: building request for %q: %w", symbol, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: fetching %q: %w (%v)", symbol, ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("marketdata: fetching %q: server returned %d: %w",
			symbol, resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: fetching %q: server returned %d", symbol, resp.StatusCode)
	}

	bars, err := parseCSV(resp.Body, symbol)
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{"symbol": symbol, "bars": len(bars)}).Debug("fetched daily bars")
	return validateBars(symbol, bars)
}
