package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockprices/internal/cache"
	"stockprices/internal/config"
)

const aaplChart = `{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"USD","regularMarketPrice":187.5,"regularMarketTime":1741100400}}],"error":null}}`

func chartServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(aaplChart))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestBuildSource_UnknownBackend(t *testing.T) {
	cfg := config.Default().Quote
	cfg.Backend = "bloomberg"

	_, err := BuildSource(cfg, zap.NewNop())
	require.ErrorContains(t, err, "bloomberg")
}

func TestBuildSource_ChartBackend(t *testing.T) {
	var hits atomic.Int32
	ts := chartServer(t, &hits)
	cfg := config.Default().Quote
	cfg.Endpoint = ts.URL

	src, err := BuildSource(cfg, zap.NewNop())
	require.NoError(t, err)

	res := src.Quote(t.Context(), "AAPL")
	require.True(t, res.OK())
	require.Equal(t, 187.5, res.Price)

	// unknown symbols are not retried
	hits.Store(0)
	res = src.Quote(t.Context(), "NOPE")
	require.False(t, res.OK())
	require.EqualValues(t, 1, hits.Load())
}

func TestApp_ServesAndSavesOnShutdown(t *testing.T) {
	var hits atomic.Int32
	ts := chartServer(t, &hits)
	dir := t.TempDir()
	keysFile := filepath.Join(dir, "api_keys.json")
	require.NoError(t, os.WriteFile(keysFile, []byte(`{"ci": "k-1"}`), 0o600))

	cfg := config.Default()
	cfg.Cache.Path = filepath.Join(dir, "stock_cache.json")
	cfg.Auth.KeysFile = keysFile
	cfg.Quote.Endpoint = ts.URL
	cfg.Refresh.Enabled = false

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	req, err := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/prices", strings.NewReader(`{"tickers":["aapl"]}`))
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "k-1")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, map[string]any{"price": 187.5, "source": "yfinance"}, body["AAPL"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	entries, err := cache.NewFileStore(cfg.Cache.Path).Load()
	require.NoError(t, err)
	require.Contains(t, entries, "AAPL")
	require.Equal(t, 187.5, entries["AAPL"].Price)
}

func TestNew_CorruptCacheFailsStartup(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Cache.Path = filepath.Join(dir, "stock_cache.json")
	cfg.Auth.KeysFile = filepath.Join(dir, "api_keys.json")
	require.NoError(t, os.WriteFile(cfg.Cache.Path, []byte(`{not json`), 0o600))

	_, err := New(cfg, zap.NewNop())
	require.ErrorContains(t, err, "open cache")
}

func TestOpenService_RateLimitDelaysInsteadOfFailing(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sym := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":%q,"regularMarketPrice":150.0}}],"error":null}}`, sym)
	}))
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Cache.Path = filepath.Join(t.TempDir(), "stock_cache.json")
	cfg.Quote.Endpoint = ts.URL
	// 10 calls per second with a one-call burst: many symbols wait longer
	// than the per-call timeout for their token
	cfg.Quote.TimeoutSec = 1
	cfg.Quote.MaxRequestsPerMinute = 600
	cfg.Quote.Burst = 1

	svc, c, err := OpenService(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for batch := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickers := make([]string, 4)
			for i := range tickers {
				tickers[i] = fmt.Sprintf("T%d%d", batch, i)
			}
			if _, err := svc.Lookup(context.Background(), tickers); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.Len(t, snap, 20)
	for sym, e := range snap {
		require.True(t, e.IsPriced(), "%s cached as %+v", sym, e)
	}
}
