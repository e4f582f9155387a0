// Command fetch resolves tickers from the command line, either through the
// shared cache file like the server does or straight from upstream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockprices/internal/app"
	"stockprices/internal/config"
	"stockprices/internal/logging"
	"stockprices/internal/prices"
	"stockprices/internal/quote"
)

func main() {
	var (
		symbolsCSV string
		configPath string
		live       bool
		timeout    int
	)
	flag.StringVar(&symbolsCSV, "symbols", os.Getenv("SYMBOLS"), "comma-separated tickers")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.BoolVar(&live, "live", false, "query upstream directly, bypassing and not updating the cache")
	flag.IntVar(&timeout, "timeout", 60, "overall timeout seconds")
	flag.Parse()

	if err := run(symbolsCSV, configPath, live, time.Duration(timeout)*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "fetch: %v\n", err)
		os.Exit(1)
	}
}

func run(symbolsCSV, configPath string, live bool, timeout time.Duration) error {
	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols provided")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var results map[string]prices.Result
	if live {
		src, err := app.BuildSource(cfg.Quote, logger.Named("quote"))
		if err != nil {
			return err
		}
		results = fetchLive(ctx, src, symbols, logger)
	} else {
		svc, _, err := app.OpenService(cfg, logger, nil)
		if err != nil {
			return err
		}
		results, err = svc.Lookup(ctx, symbols)
		if err != nil {
			// results are complete; only the save failed
			logger.Error("cache not saved", zap.Error(err))
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// fetchLive reports results in the same shapes the server does; upstream
// error detail goes to the log only.
func fetchLive(ctx context.Context, src quote.Source, symbols []string, logger *zap.Logger) map[string]prices.Result {
	out := make(map[string]prices.Result, len(symbols))
	for _, s := range symbols {
		sym := quote.Normalize(s)
		if _, done := out[sym]; done {
			continue
		}
		res := src.Quote(ctx, sym)
		if !res.OK() {
			logger.Warn("quote fetch failed", zap.String("symbol", sym), zap.Error(res.Err))
			out[sym] = prices.Result{Error: prices.FetchFailed}
			continue
		}
		p := res.Price
		out[sym] = prices.Result{Price: &p, Source: prices.SourceLive}
	}
	return out
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
