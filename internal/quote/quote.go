// Package quote defines the upstream price source and its outcome type.
package quote

import (
	"context"
	"errors"
	"math"
	"strings"
)

// ErrNoPrice is returned when the upstream answers but carries no usable price.
var ErrNoPrice = errors.New("no usable price")

// ErrThrottled marks a lookup that was rejected locally and never reached
// the upstream.
var ErrThrottled = errors.New("throttled before reaching upstream")

// Result is the outcome of a single price lookup: either a price or the
// reason the lookup failed.
type Result struct {
	Price float64
	Err   error
}

// Priced returns a successful Result.
func Priced(price float64) Result { return Result{Price: price} }

// Failed returns a failed Result. A nil err is replaced with ErrNoPrice.
func Failed(err error) Result {
	if err == nil {
		err = ErrNoPrice
	}
	return Result{Err: err}
}

// OK reports whether the lookup produced a price.
func (r Result) OK() bool { return r.Err == nil }

// Throttled reports whether the lookup never reached the upstream.
func (r Result) Throttled() bool { return errors.Is(r.Err, ErrThrottled) }

// Source fetches the current price of one ticker symbol. Implementations
// report failures in the Result and must honour ctx cancellation.
//
//go:generate mockgen -package=quotemock -destination=quotemock/mock_source.go -source=quote.go Source
type Source interface {
	Quote(ctx context.Context, symbol string) Result
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, symbol string) Result

func (f SourceFunc) Quote(ctx context.Context, symbol string) Result { return f(ctx, symbol) }

// Normalize upper-cases a ticker symbol. Nothing else is validated or
// stripped; the upstream decides what it knows.
func Normalize(symbol string) string {
	return strings.ToUpper(symbol)
}

// Usable reports whether p can be served as a price.
func Usable(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
