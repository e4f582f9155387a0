package yahoo_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"stockprices/internal/quote"
	"stockprices/internal/quote/yahoo"
)

func TestGetChart(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/v8/finance/chart/AAPL", req.URL.Path)
			require.Equal(t, "1d", req.URL.Query().Get("interval"))
			require.Equal(t, "1d", req.URL.Query().Get("range"))
			return okResponse(t, aaplChart), nil
		}).
		Times(1)

	// Arrange: setup a new chart API client
	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))

	// Act: call GetChart
	meta, err := client.GetChart(t.Context(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, meta)

	// Assert: meta should be unmarshalled from the mock response
	require.Equal(t, "AAPL", meta.Symbol)
	require.Equal(t, "USD", meta.Currency)
	require.NotNil(t, meta.RegularMarketPrice)
	require.InEpsilon(t, 150.0, *meta.RegularMarketPrice, 0.0001)
	require.NotNil(t, meta.RegularMarketTime)
	require.True(t, meta.RegularMarketTime.Equal(time.Unix(1700000000, 0)))
}

func TestGetChart_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: no request is sent
	httpClient.EXPECT().
		Do(gomock.Any()).
		Times(0)

	// Arrange: setup a new chart API client
	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))

	// Act: call GetChart with an unparsable base URL
	meta, err := client.GetChart(t.Context(), "AAPL", yahoo.WithBaseURL(string([]rune{0x7f})))
	require.Error(t, err)
	require.Nil(t, meta)
}

func TestGetChart_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, errors.New("connection reset")).
		Times(1)

	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))
	meta, err := client.GetChart(t.Context(), "AAPL")
	require.ErrorContains(t, err, "performing request")
	require.Nil(t, meta)
}

func TestGetChart_StatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, yahoo.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, yahoo.ErrRateLimited},
		{"forbidden", http.StatusForbidden, yahoo.ErrUnauthorized},
		{"server error", http.StatusInternalServerError, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().
				Do(gomock.Any()).
				Return(&http.Response{StatusCode: tc.status, Body: io.NopCloser(bytes.NewReader(nil))}, nil).
				Times(1)

			client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))
			meta, err := client.GetChart(t.Context(), "ZZZZ")
			require.Error(t, err)
			require.Nil(t, meta)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestGetChart_ErrorBody(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return okResponse(t, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`), nil
		}).
		Times(1)

	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))
	_, err := client.GetChart(t.Context(), "NOPE")
	require.ErrorIs(t, err, yahoo.ErrNotFound)
}

func TestGetChart_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return okResponse(t, "invalid json"), nil
		}).
		Times(1)

	client := yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient))
	meta, err := client.GetChart(t.Context(), "AAPL")
	require.ErrorContains(t, err, "decoding chart response")
	require.Nil(t, meta)
}

func TestSource_Quote(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return okResponse(t, aaplChart), nil
		}),
		httpClient.EXPECT().Do(gomock.Any()).DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return okResponse(t, `{"chart":{"result":[{"meta":{"symbol":"HALT","regularMarketPrice":null}}],"error":null}}`), nil
		}),
	)

	src := yahoo.NewSource(yahoo.NewChartAPIClient(yahoo.WithHTTPClient(httpClient)))

	res := src.Quote(t.Context(), "AAPL")
	require.True(t, res.OK())
	require.InEpsilon(t, 150.0, res.Price, 0.0001)

	res = src.Quote(t.Context(), "HALT")
	require.False(t, res.OK())
	require.ErrorIs(t, res.Err, quote.ErrNoPrice)
}
