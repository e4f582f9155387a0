package yahoo

import (
	"net/http"
	"net/url"
)

// DefaultBaseURL is the public Yahoo Finance query host. query2 serves the
// same chart API and can be set with WithBaseURL.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// HTTPClient sends chart requests; *http.Client satisfies it.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ChartAPIClient reads /v8/finance/chart/{symbol}. Only the meta block of the
// response is decoded; the candle arrays are ignored.
type ChartAPIClient struct {
	baseURL    string
	httpClient HTTPClient
	// header goes out on every request; the User-Agent comes from the
	// transport (httpx) unless set here.
	header http.Header
	// query holds interval and range, plus anything added with WithQuery,
	// such as includePrePost or region.
	query url.Values
}

type ChartAPIClientOption func(*ChartAPIClient)

// WithBaseURL points the client at another Yahoo host or a test server.
func WithBaseURL(baseURL string) ChartAPIClientOption {
	return func(c *ChartAPIClient) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient HTTPClient) ChartAPIClientOption {
	return func(c *ChartAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers, for example a cookie obtained out of band.
func WithHeader(header http.Header) ChartAPIClientOption {
	return func(c *ChartAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithQuery sets chart query parameters, replacing the interval=1d and
// range=1d defaults when the same keys are given.
func WithQuery(query url.Values) ChartAPIClientOption {
	return func(c *ChartAPIClient) {
		for key, values := range query {
			c.query[key] = append([]string(nil), values...)
		}
	}
}

func NewChartAPIClient(options ...ChartAPIClientOption) *ChartAPIClient {
	var client = &ChartAPIClient{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	// A one-day window at daily granularity is enough to carry the meta block.
	client.query.Set("interval", "1d")
	client.query.Set("range", "1d")
	for _, option := range options {
		option(client)
	}
	return client
}
