package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNotFound is returned when Yahoo does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnauthorized is returned on HTTP 401/403.
	ErrUnauthorized = errors.New("unauthorized")
)

// Meta is the per-symbol summary block of a chart response.
type Meta struct {
	Symbol             string
	Currency           string
	ExchangeName       string
	RegularMarketPrice *float64
	RegularMarketTime  *time.Time
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				Currency           string   `json:"currency"`
				ExchangeName       string   `json:"exchangeName"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				RegularMarketTime  *int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetChart retrieves the chart meta block for symbol.
func (c *ChartAPIClient) GetChart(ctx context.Context, symbol string, opts ...ChartAPIClientOption) (*Meta, error) {
	var override = &ChartAPIClient{
		baseURL:    c.baseURL,
		httpClient: c.httpClient,
		header:     c.header.Clone(),
		query:      maps.Clone(c.query),
	}
	for _, opt := range opts {
		opt(override)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", override.baseURL, url.PathEscape(symbol), override.query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header = override.header

	res, err := override.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)

	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized

	case http.StatusTooManyRequests:
		return nil, ErrRateLimited

	default:
		return nil, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	var body chartResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding chart response: %w", err)
	}

	// {
	//   "chart": {
	//     "result": [{"meta": {"symbol": "AAPL", "currency": "USD", "regularMarketPrice": 189.84, ...}}],
	//     "error": null
	//   }
	// }
	if e := body.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
		}
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(body.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}

	m := body.Chart.Result[0].Meta
	meta := &Meta{
		Symbol:             m.Symbol,
		Currency:           m.Currency,
		ExchangeName:       m.ExchangeName,
		RegularMarketPrice: m.RegularMarketPrice,
	}
	if m.RegularMarketTime != nil {
		t := time.Unix(*m.RegularMarketTime, 0).UTC()
		meta.RegularMarketTime = &t
	}
	return meta, nil
}
