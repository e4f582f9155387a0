package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockprices/internal/quote"
)

// MinInterval wraps a source and spaces call starts at least Interval apart.
// Concurrent callers reserve consecutive slots; a caller whose context ends
// while waiting gets a quote.ErrThrottled Result and gives its slot back.
type MinInterval struct {
	S        quote.Source
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Quote(ctx context.Context, symbol string) quote.Result {
	if m.Interval > 0 {
		m.mu.Lock()
		now := time.Now()
		slot := m.next
		if slot.Before(now) {
			slot = now
		}
		m.next = slot.Add(m.Interval)
		m.mu.Unlock()

		if wait := time.Until(slot); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				m.mu.Lock()
				if m.next.Equal(slot.Add(m.Interval)) {
					m.next = slot
				}
				m.mu.Unlock()
				return quote.Failed(fmt.Errorf("min interval wait: %w: %w", quote.ErrThrottled, ctx.Err()))
			case <-t.C:
			}
		}
	}
	return m.S.Quote(ctx, symbol)
}
