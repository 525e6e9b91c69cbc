// ABOUTME: HTTP server wiring for rei-gateway
// ABOUTME: Routes, health endpoints, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/rei-gateway/internal/agent"
	"github.com/2389/rei-gateway/internal/auth"
	"github.com/2389/rei-gateway/internal/metrics"
	"github.com/2389/rei-gateway/internal/store"
	"github.com/2389/rei-gateway/internal/stream"
)

// Config assembles a Server. Store, Orchestrator, Epilogue, and Verifier are
// required.
type Config struct {
	HTTPAddr string

	// MetricsPath exposes the Prometheus registry when Metrics is set.
	// Empty disables the endpoint.
	MetricsPath string

	// ShutdownTimeout bounds graceful shutdown (default 5s).
	ShutdownTimeout time.Duration

	Store        store.Store
	Orchestrator *agent.Orchestrator
	Epilogue     *agent.Epilogue
	Verifier     auth.TokenVerifier
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Server serves the chat transports and the conversation API.
type Server struct {
	httpServer      *http.Server
	store           store.Store
	pipeline        *pipeline
	metrics         *metrics.Metrics
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// New validates the configuration and builds a Server with its routes.
func New(cfg Config) (*Server, error) {
	if cfg.HTTPAddr == "" {
		return nil, errors.New("http address is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Epilogue == nil {
		return nil, errors.New("epilogue is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}

	// A typed nil would still be called through the interface, so only a
	// present metrics instance becomes a recorder.
	var usage stream.UsageRecorder
	if cfg.Metrics != nil {
		usage = cfg.Metrics
	}

	s := &Server{
		store: cfg.Store,
		pipeline: &pipeline{
			store:        cfg.Store,
			orchestrator: cfg.Orchestrator,
			epilogue:     cfg.Epilogue,
			usage:        usage,
			logger:       logger,
			now:          time.Now,
		},
		metrics:         cfg.Metrics,
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	authed := auth.Middleware(cfg.Verifier)
	mux.Handle("/api/chat", authed(http.HandlerFunc(s.handleChatWS)))
	mux.Handle("POST /api/chat/{conversation}/stream", authed(http.HandlerFunc(s.handleChatSSE)))
	mux.Handle("/api/conversations", authed(http.HandlerFunc(s.handleConversations)))
	mux.Handle("GET /api/conversations/{conversation}/messages", authed(http.HandlerFunc(s.handleTranscript)))
	mux.Handle("GET /api/conversations/{conversation}/usage", authed(http.HandlerFunc(s.handleUsage)))

	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, cfg.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler exposes the route mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// Shutdown with a fresh context; the original one is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store answers queries.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListConversations(r.Context(), "health-probe", 1); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
