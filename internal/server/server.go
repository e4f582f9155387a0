// Package server exposes the price lookup over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"stockprices/internal/auth"
	"stockprices/internal/prices"
)

const maxBodyBytes = 1 << 20

// Looker resolves a batch of tickers.
type Looker interface {
	Lookup(ctx context.Context, tickers []string) (map[string]prices.Result, error)
}

type Config struct {
	// MaxTickers rejects larger batches; zero means unlimited.
	MaxTickers int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	cfg    Config
	router *chi.Mux
	svc    Looker
	keys   *auth.KeySet
	logger *zap.Logger
}

// New builds the router. A nil logger disables access logs.
func New(cfg Config, svc Looker, keys *auth.KeySet, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		svc:    svc,
		keys:   keys,
		logger: logger,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(accessLog(logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(withCORS)
	s.router.Use(middleware.Compress(5, "application/json"))
	s.router.Use(limitBody(maxBodyBytes))

	s.router.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	s.router.Group(func(r chi.Router) {
		r.Use(keys.Require)
		r.Post("/prices", s.handlePrices)
	})
	return s
}

// Router exposes the root handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	tickers, status, msg := decodeTickers(r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}
	if s.cfg.MaxTickers > 0 && len(tickers) > s.cfg.MaxTickers {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Too many tickers (max %d)", s.cfg.MaxTickers))
		return
	}

	results, err := s.svc.Lookup(r.Context(), tickers)
	if err != nil {
		s.logger.Error("lookup failed", zap.Int("tickers", len(tickers)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Unable to persist cache")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// decodeTickers returns the tickers list, or a non-zero status and message
// describing why the body was rejected.
func decodeTickers(r *http.Request) ([]string, int, string) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, "Request body too large"
		}
		return nil, http.StatusBadRequest, "No tickers provided"
	}
	raw, ok := body["tickers"]
	if !ok {
		return nil, http.StatusBadRequest, "No tickers provided"
	}
	var tickers []string
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) || json.Unmarshal(raw, &tickers) != nil {
		return nil, http.StatusBadRequest, "Tickers must be provided as a list"
	}
	return tickers, 0, ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
