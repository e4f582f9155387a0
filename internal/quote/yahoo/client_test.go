package yahoo_test

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"stockprices/internal/quote/yahoo"
)

func okResponse(t *testing.T, body string) *http.Response {
	t.Helper()
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

const aaplChart = `{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"USD","exchangeName":"NMS","regularMarketPrice":150.0,"regularMarketTime":1700000000}}],"error":null}}`

func TestNewChartAPIClient(t *testing.T) {
	t.Parallel()

	// Assert: a client is always returned.
	client := yahoo.NewChartAPIClient()
	require.NotNilf(t, client, "unexpected nil client")
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the custom client is used exactly once
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return okResponse(t, aaplChart), nil
		}).
		Times(1)

	// Act: call GetChart with the custom HTTP client.
	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))
	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestWithBaseURL(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Arrange: define a base url
	baseURL := "http://localhost:8080"

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Truef(t, strings.HasPrefix(req.URL.String(), baseURL), "expected url to start with base url, received: %s", req.URL.String())
			return okResponse(t, aaplChart), nil
		}).
		Times(1)

	// Act: call GetChart with the overridden base URL.
	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient), yahoo.WithBaseURL(baseURL))
	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestWithHeaderAndQuery(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock http client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: the header and query parameter are both sent
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "bar", req.Header.Get("foo"))
			require.Equal(t, "US", req.URL.Query().Get("region"))
			return okResponse(t, aaplChart), nil
		}).
		Times(1)

	// Arrange: create a new client with a custom header and query.
	client := yahoo.NewChartAPIClient(
		yahoo.WithHTTPClient(httpClient),
		yahoo.WithHeader(http.Header{"foo": []string{"bar"}}),
		yahoo.WithQuery(url.Values{"region": []string{"US"}}),
	)

	// Act: call GetChart with the custom header.
	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}

func TestWithQuery_ReplacesChartWindow(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: range is replaced rather than sent twice, interval keeps its default
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, []string{"5d"}, req.URL.Query()["range"])
			require.Equal(t, []string{"1d"}, req.URL.Query()["interval"])
			return okResponse(t, aaplChart), nil
		}).
		Times(1)

	client := yahoo.NewChartAPIClient(
		yahoo.WithHTTPClient(httpClient),
		yahoo.WithQuery(url.Values{"range": []string{"5d"}}),
	)

	_, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
}
