// Package retry wraps a market data provider with bounded exponential
// backoff. Only failures marked transient by the provider are retried.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emontero/straddle-roller/internal/marketdata"
	"github.com/emontero/straddle-roller/internal/models"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Provider decorates another marketdata.Provider with retries.
type Provider struct {
	inner  marketdata.Provider
	logger *logrus.Logger
	config Config
}

// NewProvider wraps inner; pass a Config to override DefaultConfig. A nil
// logger falls back to the logrus standard logger.
func NewProvider(inner marketdata.Provider, logger *logrus.Logger, config ...Config) *Provider {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Provider{inner: inner, logger: logger, config: cfg}
}

// DailyBars fetches bars, retrying transient failures with exponential
// backoff and jitter until MaxRetries or Timeout is exhausted.
func (p *Provider) DailyBars(ctx context.Context, symbol string) ([]models.Bar, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := fetchCtx.Err(); err != nil {
			return nil, fmt.Errorf("retry: fetch of %q timed out after %v: %w", symbol, p.config.Timeout, err)
		}

		bars, err := p.inner.DailyBars(fetchCtx, symbol)
		if err == nil {
			if attempt > 0 {
				p.logger.WithFields(logrus.Fields{
					"symbol":  symbol,
					"attempt": attempt + 1,
				}).Info("fetch succeeded after retry")
			}
			return bars, nil
		}

		lastErr = err
		if !errors.Is(err, marketdata.ErrTransient) || attempt == p.config.MaxRetries {
			break
		}

		p.logger.WithFields(logrus.Fields{
			"symbol":  symbol,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
			"error":   err.Error(),
		}).Warn("transient fetch failure, retrying")

		select {
		case <-time.After(backoff):
			backoff = p.nextBackoff(backoff)
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("retry: fetch of %q canceled during backoff: %w", symbol, fetchCtx.Err())
		}
	}

	return nil, fmt.Errorf("retry: fetch of %q failed after %d attempts: %w",
		symbol, p.config.MaxRetries+1, lastErr)
}

func (p *Provider) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > p.config.MaxBackoff {
		next = p.config.MaxBackoff
	}

	maxJitter := int64(next / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			p.logger.WithError(err).Warn("failed to generate backoff jitter")
		} else {
			next += time.Duration(jitterVal.Int64())
		}
	}
	return next
}
