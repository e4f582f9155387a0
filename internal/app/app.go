// Package app wires configuration into a running price service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stockprices/internal/auth"
	"stockprices/internal/cache"
	"stockprices/internal/config"
	"stockprices/internal/prices"
	"stockprices/internal/server"
)

const shutdownTimeout = 5 * time.Second

// App holds the long-lived components of the HTTP service.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	cache     *cache.Cache
	refresher *prices.Refresher
	srv       *http.Server
}

// OpenService loads the cache snapshot and builds the lookup service on top
// of the configured quote source. metrics may be nil.
func OpenService(cfg config.Config, logger *zap.Logger, metrics *prices.Metrics) (*prices.Service, *cache.Cache, error) {
	store := cache.NewFileStore(cfg.Cache.Path)
	c, err := cache.Open(store)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	logger.Info("cache loaded", zap.String("path", store.Path()), zap.Int("symbols", c.Len()))

	src, err := BuildSource(cfg.Quote, logger.Named("quote"))
	if err != nil {
		return nil, nil, err
	}

	policy := cache.Policy{FreshFor: cfg.Cache.FreshFor(), RetryAfter: cfg.Cache.RetryAfter()}
	svc := prices.NewService(c, src, policy,
		prices.WithLogger(logger.Named("prices")),
		prices.WithMetrics(metrics),
		prices.WithMaxConcurrency(cfg.Server.MaxConcurrency))
	return svc, c, nil
}

func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	keys, err := auth.LoadKeySet(cfg.Auth.KeysFile)
	if err != nil {
		return nil, err
	}
	if keys.Len() == 0 {
		logger.Warn("no API keys loaded; every /prices request will be rejected", zap.String("file", cfg.Auth.KeysFile))
	}

	var (
		metrics        *prices.Metrics
		metricsHandler http.Handler
	)
	if cfg.Server.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = prices.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	svc, c, err := OpenService(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	api := server.New(server.Config{
		MaxTickers: cfg.Server.MaxTickers,
		Metrics:    metricsHandler,
	}, svc, keys, logger.Named("http"))

	return &App{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		refresher: prices.NewRefresher(svc, cfg.Refresh.Interval(),
			prices.WithSweepConcurrency(cfg.Refresh.MaxConcurrency),
			prices.WithRefresherLogger(logger.Named("refresher"))),
		// config validation keeps WriteTimeout above one symbol's worst-case fetch
		srv: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           api.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      cfg.Server.RequestTimeout() + 5*time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// Run serves HTTP and runs the refresher until ctx is cancelled or either
// fails, then drains the server and saves the cache one last time.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.srv.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := a.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if a.cfg.Refresh.Enabled {
		g.Go(func() error {
			if err := a.refresher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		a.logger.Info("background refresh disabled")
	}
	g.Go(func() error {
		<-gctx.Done()
		a.refresher.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if perr := a.cache.Persist(); perr != nil {
		a.logger.Error("final cache save failed", zap.Error(perr))
		err = errors.Join(err, perr)
	}
	if err == nil {
		a.logger.Info("shut down gracefully")
	}
	return err
}
