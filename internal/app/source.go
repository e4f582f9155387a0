package app

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockprices/internal/config"
	"stockprices/internal/httpx"
	"stockprices/internal/quote"
	"stockprices/internal/quote/financego"
	"stockprices/internal/quote/ratelimit"
	"stockprices/internal/quote/resilience"
	"stockprices/internal/quote/yahoo"
)

// BuildSource assembles the configured upstream. From the inside out: the
// backend client, a per-call deadline, rate limiting, then retries and
// circuit breaking.
func BuildSource(cfg config.Quote, logger *zap.Logger) (quote.Source, error) {
	httpClient := httpx.New(cfg.Timeout(), httpx.DefaultUserAgent)

	var src quote.Source
	switch cfg.Backend {
	case config.BackendChart:
		opts := []yahoo.ChartAPIClientOption{yahoo.WithHTTPClient(httpClient)}
		if cfg.Endpoint != "" {
			opts = append(opts, yahoo.WithBaseURL(cfg.Endpoint))
		}
		src = yahoo.NewSource(yahoo.NewChartAPIClient(opts...))
	case config.BackendFinanceGo:
		src = financego.New(httpClient)
	default:
		return nil, fmt.Errorf("unknown quote backend %q", cfg.Backend)
	}

	src = &resilience.Deadline{S: src, Timeout: cfg.Timeout()}

	// token bucket when an RPM budget is set, otherwise min-interval spacing
	if cfg.MaxRequestsPerMinute > 0 {
		src = &ratelimit.TokenBucket{S: src, Limiter: ratelimit.NewTokenBucket(cfg.MaxRequestsPerMinute, cfg.Burst)}
	} else if cfg.MinRequestIntervalMs > 0 {
		src = &ratelimit.MinInterval{S: src, Interval: time.Duration(cfg.MinRequestIntervalMs) * time.Millisecond}
	}

	logger.Info("quote source ready",
		zap.String("backend", cfg.Backend),
		zap.Int("max_rpm", cfg.MaxRequestsPerMinute),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("breaker_failures", cfg.BreakerFailures))

	return resilience.Wrap(src, resilience.Options{
		MaxRetries:      cfg.MaxRetries,
		BackoffMin:      cfg.BackoffMin(),
		BackoffMax:      cfg.BackoffMax(),
		BreakerFailures: cfg.BreakerFailures,
		BreakerDelay:    time.Duration(cfg.BreakerDelaySec) * time.Second,
		Permanent: func(err error) bool {
			return errors.Is(err, yahoo.ErrNotFound)
		},
	}), nil
}
