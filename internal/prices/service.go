// Package prices resolves batches of ticker symbols against the shared
// cache, fetching from the quote source when an entry is missing, stale, or
// an error due for retry, and keeps the cache warm in the background.
package prices

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"stockprices/internal/cache"
	"stockprices/internal/quote"
)

const (
	// SourceCache tags a price served from the cache.
	SourceCache = "cache"
	// SourceLive tags a price fetched during the request.
	SourceLive = "yfinance"
	// FetchFailed is the reason recorded for, and reported on, failed fetches.
	FetchFailed = "Unable to fetch price"
)

// Result is the per-symbol answer of a lookup.
type Result struct {
	Price  *float64 `json:"price,omitempty"`
	Source string   `json:"source,omitempty"`
	Error  string   `json:"error,omitempty"`
	Cached bool     `json:"cached,omitempty"`
}

func priceResult(p float64, source string) Result {
	return Result{Price: &p, Source: source}
}

// Service answers lookups cache-aside. It is safe for concurrent use.
type Service struct {
	cache          *cache.Cache
	source         quote.Source
	policy         cache.Policy
	now            func() time.Time
	logger         *zap.Logger
	metrics        *Metrics
	maxConcurrency int

	// flights collapses concurrent fetches of the same symbol.
	flights singleflight.Group
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxConcurrency bounds how many symbols of one batch resolve at once.
func WithMaxConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrency = n
		}
	}
}

func NewService(c *cache.Cache, src quote.Source, policy cache.Policy, opts ...Option) *Service {
	s := &Service{
		cache:          c,
		source:         src,
		policy:         policy,
		now:            time.Now,
		logger:         zap.NewNop(),
		maxConcurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup resolves every ticker (upper-cased) and persists the cache once
// afterwards. Per-symbol failures are reported in the results; the error is
// non-nil only when the snapshot could not be saved, in which case the
// results are still complete.
func (s *Service) Lookup(ctx context.Context, tickers []string) (map[string]Result, error) {
	symbols := dedupe(tickers)
	results := make(map[string]Result, len(symbols))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			r := s.resolve(ctx, sym)
			mu.Lock()
			results[sym] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := s.persist(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Service) resolve(ctx context.Context, sym string) Result {
	e, ok := s.cache.Get(sym)
	switch s.policy.Decide(e, ok, s.now()) {
	case cache.ServePrice:
		s.metrics.lookup("cache")
		return priceResult(e.Price, SourceCache)
	case cache.ServeError:
		s.metrics.lookup("cached_error")
		return Result{Error: FetchFailed, Cached: true}
	}

	e, stored := s.refresh(ctx, sym, "request")
	switch {
	case !stored:
		s.metrics.lookup("throttled")
		return Result{Error: FetchFailed}
	case e.IsPriced():
		s.metrics.lookup("fetched")
		return priceResult(e.Price, SourceLive)
	}
	s.metrics.lookup("fetch_failed")
	return Result{Error: FetchFailed}
}

type fetched struct {
	entry  cache.Entry
	stored bool
}

// refresh fetches sym, writes the outcome to the cache and returns it.
// Callers racing on the same symbol share one upstream call; the cache
// lock is not held while it runs. A lookup throttled before reaching the
// upstream leaves the cache untouched and reports stored == false.
func (s *Service) refresh(ctx context.Context, sym, caller string) (cache.Entry, bool) {
	v, _, _ := s.flights.Do(sym, func() (any, error) {
		// Once started, a fetch completes even if the caller that started it
		// goes away; the source's own timeout bounds it.
		res := s.source.Quote(context.WithoutCancel(ctx), sym)

		var e cache.Entry
		switch {
		case res.OK():
			s.metrics.fetch(caller, "ok")
			e = cache.PricedEntry(res.Price, s.now())
		case res.Throttled():
			s.metrics.fetch(caller, "throttled")
			s.logger.Warn("quote fetch throttled, cache entry kept",
				zap.String("symbol", sym),
				zap.String("caller", caller),
				zap.Error(res.Err))
			return fetched{}, nil
		default:
			s.metrics.fetch(caller, "error")
			s.logger.Warn("quote fetch failed",
				zap.String("symbol", sym),
				zap.String("caller", caller),
				zap.Error(res.Err))
			e = cache.ErroredEntry(FetchFailed, s.now())
		}
		s.cache.Set(sym, e)
		return fetched{entry: e, stored: true}, nil
	})
	f := v.(fetched)
	return f.entry, f.stored
}

func (s *Service) persist() error {
	err := s.cache.Persist()
	s.metrics.saved(err, s.cache.Len())
	if err != nil {
		s.logger.Error("cache persist failed", zap.Error(err))
	}
	return err
}

func dedupe(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		sym := quote.Normalize(t)
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
