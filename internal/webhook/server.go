package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hooksink/internal/events"
	"hooksink/internal/observability"
)

// Server is the webhook HTTP server.
type Server struct {
	config   Config
	sink     Sink
	hub      *events.Hub
	metrics  *observability.Metrics
	registry *prometheus.Registry
	logger   *slog.Logger
	server   *http.Server

	startedAt time.Time
	received  atomic.Int64
}

// New creates a webhook server. The sink receives every verified, parsed
// payload; pass a ConsoleSink to reproduce plain print-to-stdout behavior.
func New(config Config, sink Sink, logger *slog.Logger) *Server {
	if config.SignatureHeader == "" {
		config.SignatureHeader = DefaultSignatureHeader
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.EventBuffer == 0 {
		config.EventBuffer = DefaultEventBuffer
	}

	registry := prometheus.NewRegistry()

	return &Server{
		config:    config,
		sink:      sink,
		hub:       events.NewHub(config.EventBuffer),
		metrics:   observability.New(registry),
		registry:  registry,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the server's HTTP handler, for mounting under an
// existing listener or in tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start runs the server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Wrap)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// The receive contract covers POST on any path.
	r.Post("/*", s.handleReceive)

	return r
}

// loggingMiddleware logs HTTP requests (never body content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleReceive implements the receive contract: read the raw body, verify
// the HMAC signature over the exact bytes received, then (and only then)
// parse JSON. The response is always a bare status with an empty text/plain
// body; nothing about the failure is echoed back to the caller.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	// A declared Content-Length is part of the contract. -1 means the
	// client never sent one (e.g. chunked encoding).
	if r.ContentLength < 0 {
		s.logger.Warn("request without Content-Length", "path", r.URL.Path)
		s.metrics.Rejected(observability.ReasonLength)
		s.respond(w, http.StatusLengthRequired)
		return
	}

	if r.ContentLength > s.config.MaxBodySize {
		s.logger.Warn("declared body exceeds limit",
			"path", r.URL.Path,
			"content_length", r.ContentLength,
			"limit", s.config.MaxBodySize,
		)
		s.metrics.Rejected(observability.ReasonTooLarge)
		s.respond(w, http.StatusRequestEntityTooLarge)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		// Transport failure mid-read fails this request only.
		s.logger.Error("failed to read request body", "path", r.URL.Path, "error", err)
		s.metrics.Rejected(observability.ReasonRead)
		s.respond(w, http.StatusInternalServerError)
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.metrics.Rejected(observability.ReasonTooLarge)
		s.respond(w, http.StatusRequestEntityTooLarge)
		return
	}

	signature := r.Header.Get(s.config.SignatureHeader)
	if err := verifySignature(body, signature, s.config.Secret); err != nil {
		s.logger.Warn("signature verification failed", "path", r.URL.Path)
		s.metrics.Rejected(observability.ReasonSignature)
		s.respond(w, http.StatusForbidden)
		return
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		s.logger.Warn("failed to decode request data",
			"path", r.URL.Path,
			"error", err,
		)
		s.metrics.Rejected(observability.ReasonParse)
		s.respond(w, http.StatusBadRequest)
		return
	}

	d := Delivery{
		Path:       r.URL.Path,
		ReceivedAt: time.Now().UTC(),
		Raw:        json.RawMessage(body),
		Payload:    payload,
	}
	if err := s.sink.Deliver(r.Context(), d); err != nil {
		s.logger.Error("sink rejected delivery", "path", r.URL.Path, "error", err)
		s.respond(w, http.StatusInternalServerError)
		return
	}

	s.received.Add(1)
	s.hub.Publish("delivery", d)

	s.respond(w, http.StatusOK)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ReceivedTotal: s.received.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// respond sends the bare status response of the receive path: text/plain
// Content-Type, empty body, regardless of branch.
func (s *Server) respond(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
}
