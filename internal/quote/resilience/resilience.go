// Package resilience guards a quote.Source with retries and a circuit
// breaker, and bounds single upstream calls with a deadline.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"stockprices/internal/quote"
)

type Options struct {
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerDelay.
	// Zero disables the breaker.
	BreakerFailures int
	BreakerDelay    time.Duration
	// Permanent reports failures that retrying cannot fix; they neither retry
	// nor count against the breaker. quote.ErrNoPrice, quote.ErrThrottled and
	// context cancellation are always permanent.
	Permanent func(error) bool
}

// Deadline bounds each call to S with Timeout. Zero disables it.
type Deadline struct {
	S       quote.Source
	Timeout time.Duration
}

func (d *Deadline) Quote(ctx context.Context, symbol string) quote.Result {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	return d.S.Quote(ctx, symbol)
}

// Source is a quote.Source guarded by failsafe policies.
type Source struct {
	next     quote.Source
	opts     Options
	executor failsafe.Executor[quote.Result]
}

func Wrap(next quote.Source, opts Options) *Source {
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = 200 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffMin {
		opts.BackoffMax = opts.BackoffMin * 10
	}
	s := &Source{next: next, opts: opts}

	var policies []failsafe.Policy[quote.Result]
	if opts.MaxRetries > 0 {
		policies = append(policies, retrypolicy.NewBuilder[quote.Result]().
			HandleIf(func(_ quote.Result, err error) bool {
				return err != nil && !errors.Is(err, circuitbreaker.ErrOpen) && !s.permanent(err)
			}).
			WithBackoff(opts.BackoffMin, opts.BackoffMax).
			WithMaxRetries(opts.MaxRetries).
			Build())
	}
	if opts.BreakerFailures > 0 {
		delay := opts.BreakerDelay
		if delay <= 0 {
			delay = 30 * time.Second
		}
		policies = append(policies, circuitbreaker.NewBuilder[quote.Result]().
			HandleIf(func(_ quote.Result, err error) bool {
				return err != nil && !s.permanent(err)
			}).
			WithFailureThreshold(uint(opts.BreakerFailures)).
			WithDelay(delay).
			Build())
	}
	if len(policies) > 0 {
		s.executor = failsafe.With[quote.Result](policies...)
	}
	return s
}

func (s *Source) permanent(err error) bool {
	if errors.Is(err, quote.ErrNoPrice) || errors.Is(err, quote.ErrThrottled) || errors.Is(err, context.Canceled) {
		return true
	}
	return s.opts.Permanent != nil && s.opts.Permanent(err)
}

// Quote runs the lookup under the configured policies. A call the open
// breaker rejects before any attempt reached the upstream fails with
// quote.ErrThrottled.
func (s *Source) Quote(ctx context.Context, symbol string) quote.Result {
	var reached bool
	attempt := func() quote.Result {
		if err := ctx.Err(); err != nil {
			return quote.Failed(fmt.Errorf("%s: %w: %w", symbol, quote.ErrThrottled, err))
		}
		r := s.next.Quote(ctx, symbol)
		if !r.Throttled() {
			reached = true
		}
		return r
	}
	if s.executor == nil || ctx.Err() != nil {
		return attempt()
	}

	res, err := s.executor.WithContext(ctx).Get(func() (quote.Result, error) {
		r := attempt()
		return r, r.Err
	})
	switch {
	case err == nil:
		return res
	case errors.Is(err, circuitbreaker.ErrOpen) && !reached:
		return quote.Failed(fmt.Errorf("%s: %w: %w", symbol, quote.ErrThrottled, err))
	default:
		return quote.Failed(fmt.Errorf("%s: %w", symbol, err))
	}
}
