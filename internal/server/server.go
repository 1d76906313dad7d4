// Package server exposes the pipeline over HTTP: streamed scans and analyses,
// the registry lookup and the open data proxy.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/grantfit/internal/aggregator"
	"github.com/spigell/grantfit/internal/config"
	"github.com/spigell/grantfit/internal/jobs"
	"github.com/spigell/grantfit/internal/secrets"
	"github.com/spigell/grantfit/internal/sources"
)

const (
	APIKeyHeader = "X-API-Key"
	JobIDHeader  = "X-Job-ID"

	shutdownTimeout = 30 * time.Second
	maxBodyBytes    = 1 << 20
)

// RequestValidator rejects scan requests before any connector is called.
type RequestValidator interface {
	Validate(req aggregator.Request) error
}

// RawFetcher proxies the open data provider.
type RawFetcher interface {
	FetchRaw(ctx context.Context, endpoint string, q url.Values) (*sources.Response, error)
}

// Deps are the collaborators of the server.
type Deps struct {
	Store     *config.Store
	Validator RequestValidator
	Runner    *jobs.Runner
	Registry  aggregator.Enricher
	Opendata  RawFetcher
	Logger    *zap.Logger
}

type Server struct {
	store     *config.Store
	validator RequestValidator
	runner    *jobs.Runner
	registry  aggregator.Enricher
	opendata  RawFetcher
	validate  *validator.Validate
	logger    *zap.Logger
	handler   http.Handler
}

func New(deps Deps) *Server {
	s := &Server{
		store:     deps.Store,
		validator: deps.Validator,
		runner:    deps.Runner,
		registry:  deps.Registry,
		opendata:  deps.Opendata,
		validate:  validator.New(),
		logger:    deps.Logger,
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /scan/stream", s.handleScanStream)
	api.HandleFunc("POST /analyze", s.handleAnalyze)
	api.HandleFunc("POST /analyze/stream", s.handleAnalyzeStream)
	api.HandleFunc("GET /company/financials", s.handleFinancials)
	api.HandleFunc("GET /opendata/{path...}", s.handleOpendata)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", s.withAPIKey(api))

	s.handler = s.withLogging(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.store.Get().Server
	if _, err := s.apiKey(); errors.Is(err, secrets.ErrNotConfigured) {
		s.logger.Warn("server api key is not configured, requests are not authenticated")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) apiKey() (string, error) {
	cfg := s.store.Get().Server
	return secrets.Load(secrets.Source{
		Name:  "server api key",
		Value: cfg.APIKey,
		File:  cfg.APIKeyFile,
	})
}

// withAPIKey checks the shared secret header. The key is read per request so
// a config reload takes effect immediately.
func (s *Server) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want, err := s.apiKey()
		switch {
		case errors.Is(err, secrets.ErrNotConfigured):
			next.ServeHTTP(w, r)
			return
		case err != nil:
			s.logger.Error("loading server api key", zap.Error(err))
			s.errorResponse(w, http.StatusInternalServerError, "server api key is unavailable")
			return
		}

		got := r.Header.Get(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// statusRecorder keeps the response status for logging. It forwards Flush so
// event streams keep working behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
