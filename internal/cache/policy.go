package cache

import "time"

const (
	DefaultFreshFor   = time.Hour
	DefaultRetryAfter = 24 * time.Hour
)

// Action is what a caller should do with a symbol's current entry.
type Action int

const (
	// Fetch means the entry is missing, stale, or an error due for retry.
	Fetch Action = iota
	// ServePrice means the priced entry is fresh.
	ServePrice
	// ServeError means the error entry is still inside its retry cooldown.
	ServeError
)

func (a Action) String() string {
	switch a {
	case ServePrice:
		return "serve_price"
	case ServeError:
		return "serve_error"
	default:
		return "fetch"
	}
}

// Policy decides freshness and retry eligibility. It is pure.
type Policy struct {
	FreshFor   time.Duration
	RetryAfter time.Duration
}

func DefaultPolicy() Policy {
	return Policy{FreshFor: DefaultFreshFor, RetryAfter: DefaultRetryAfter}
}

// IsFresh reports whether e is a price younger than FreshFor.
func (p Policy) IsFresh(e Entry, now time.Time) bool {
	return e.IsPriced() && now.Sub(e.ObservedAt) < p.FreshFor
}

// ShouldRetry reports whether e is an error older than RetryAfter.
func (p Policy) ShouldRetry(e Entry, now time.Time) bool {
	return e.IsErrored() && now.Sub(e.ObservedAt) > p.RetryAfter
}

// Decide applies the policy to a lookup result; ok is false when the symbol
// has no entry.
func (p Policy) Decide(e Entry, ok bool, now time.Time) Action {
	switch {
	case !ok:
		return Fetch
	case e.IsErrored():
		if p.ShouldRetry(e, now) {
			return Fetch
		}
		return ServeError
	case p.IsFresh(e, now):
		return ServePrice
	default:
		return Fetch
	}
}
