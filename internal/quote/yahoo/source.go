package yahoo

import (
	"context"
	"fmt"

	"stockprices/internal/quote"
)

// Source adapts the chart client to quote.Source.
type Source struct {
	client *ChartAPIClient
}

func NewSource(client *ChartAPIClient) *Source {
	return &Source{client: client}
}

// Quote returns the regular market price for symbol.
func (s *Source) Quote(ctx context.Context, symbol string) quote.Result {
	meta, err := s.client.GetChart(ctx, symbol)
	if err != nil {
		return quote.Failed(err)
	}
	if meta.RegularMarketPrice == nil || !quote.Usable(*meta.RegularMarketPrice) {
		return quote.Failed(fmt.Errorf("%s: %w", symbol, quote.ErrNoPrice))
	}
	return quote.Priced(*meta.RegularMarketPrice)
}
