package prices

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRefreshInterval is the pause between sweeps.
const DefaultRefreshInterval = 30 * time.Minute

// SweepStats summarizes one pass over the cache.
type SweepStats struct {
	Symbols   int
	Refreshed int
	Failed    int
	Skipped   int
	// Throttled counts symbols rejected locally; their entries are unchanged.
	Throttled int
	SaveErr   error
}

// Refresher periodically walks every cached symbol: priced entries are
// always refetched, error entries only once their retry cooldown is over.
type Refresher struct {
	svc            *Service
	interval       time.Duration
	maxConcurrency int
	logger         *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

type RefresherOption func(*Refresher)

func WithSweepConcurrency(n int) RefresherOption {
	return func(r *Refresher) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

func WithRefresherLogger(l *zap.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

func NewRefresher(svc *Service, interval time.Duration, opts ...RefresherOption) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	r := &Refresher{
		svc:            svc,
		interval:       interval,
		maxConcurrency: 4,
		logger:         zap.NewNop(),
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps once immediately and then every interval until ctx is done or
// Stop is called. It returns ctx.Err() on cancellation and nil after Stop.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started", zap.Duration("interval", r.interval))
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-r.stop:
			r.logger.Info("refresher stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Stop ends Run after the sweep in progress, if any. Safe to call twice.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Sweep runs one pass over the symbols cached when it starts and saves the
// cache once at the end. Fetch failures are recorded in the cache; a save
// failure is logged and returned in the stats.
func (r *Refresher) Sweep(ctx context.Context) SweepStats {
	start := time.Now()
	symbols := r.svc.cache.Symbols()

	var refreshed, failed, skipped, throttled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for _, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			e, ok := r.svc.cache.Get(sym)
			if !ok || (e.IsErrored() && !r.svc.policy.ShouldRetry(e, r.svc.now())) {
				skipped.Add(1)
				return nil
			}
			switch e, stored := r.svc.refresh(gctx, sym, "refresher"); {
			case !stored:
				throttled.Add(1)
			case e.IsPriced():
				refreshed.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{
		Symbols:   len(symbols),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
		Throttled: int(throttled.Load()),
		SaveErr:   r.svc.persist(),
	}
	r.svc.metrics.sweep(time.Since(start))
	r.logger.Info("sweep finished",
		zap.Int("symbols", stats.Symbols),
		zap.Int("refreshed", stats.Refreshed),
		zap.Int("failed", stats.Failed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("throttled", stats.Throttled),
		zap.Duration("took", time.Since(start)))
	return stats
}
