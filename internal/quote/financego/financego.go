// Package financego serves quotes through github.com/piquette/finance-go.
package financego

import (
	"context"
	"fmt"
	"net/http"

	finance "github.com/piquette/finance-go"
	fquote "github.com/piquette/finance-go/quote"

	"stockprices/internal/quote"
)

// Source fetches the regular market price from Yahoo's quote API.
type Source struct {
	get func(symbol string) (*finance.Quote, error)
}

// New returns a Source. finance-go keeps its HTTP client in package state,
// so a non-nil client replaces it for the whole process.
func New(client *http.Client) *Source {
	if client != nil {
		finance.SetHTTPClient(client)
	}
	return &Source{get: fquote.Get}
}

func (s *Source) Quote(ctx context.Context, symbol string) quote.Result {
	// finance-go has no context support; abandon the call on cancellation
	// and let the HTTP client timeout reap it.
	ch := make(chan quote.Result, 1)
	go func() {
		ch <- s.lookup(symbol)
	}()
	select {
	case <-ctx.Done():
		return quote.Failed(fmt.Errorf("%s: %w", symbol, ctx.Err()))
	case res := <-ch:
		return res
	}
}

func (s *Source) lookup(symbol string) quote.Result {
	q, err := s.get(symbol)
	if err != nil {
		return quote.Failed(fmt.Errorf("finance-go %s: %w", symbol, err))
	}
	if q == nil || !quote.Usable(q.RegularMarketPrice) {
		return quote.Failed(fmt.Errorf("%s: %w", symbol, quote.ErrNoPrice))
	}
	return quote.Priced(q.RegularMarketPrice)
}
