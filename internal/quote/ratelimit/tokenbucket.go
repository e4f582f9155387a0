package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"stockprices/internal/quote"
)

// NewTokenBucket returns a limiter refilling perMinute tokens per minute
// with the given burst. The bucket starts full.
func NewTokenBucket(perMinute, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)
}

// TokenBucket gates calls to a source on a token bucket. A wait that cannot
// finish before ctx ends fails with quote.ErrThrottled.
type TokenBucket struct {
	S       quote.Source
	Limiter *rate.Limiter
}

func (t *TokenBucket) Quote(ctx context.Context, symbol string) quote.Result {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return quote.Failed(fmt.Errorf("rate limit wait: %w: %w", quote.ErrThrottled, err))
		}
	}
	return t.S.Quote(ctx, symbol)
}
