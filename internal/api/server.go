package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkessler/quern/internal/events"
	"github.com/mkessler/quern/internal/journal"
	"github.com/mkessler/quern/internal/pool"
	"github.com/mkessler/quern/internal/session"
)

// RequestSubmitter is the pool boundary the API depends on.
type RequestSubmitter interface {
	Submit(ctx context.Context, req *pool.Request) (*pool.Response, error)
	Stats() pool.Stats
}

// SessionDirectory is the session-manager boundary the API depends on.
type SessionDirectory interface {
	List() []session.Record
	Remove(id string) bool
	Stats() session.Stats
}

// HistorySource is the journal boundary the API depends on.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on /v1 routes when set.
	APIKey string
}

// Server is the HTTP facade over the pool, sessions, and journal.
type Server struct {
	config    Config
	pool      RequestSubmitter
	sessions  SessionDirectory
	history   HistorySource
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server instance.
func New(config Config, p RequestSubmitter, sessions SessionDirectory, history HistorySource, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		pool:      p,
		sessions:  sessions,
		history:   history,
		hub:       hub,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/requests", s.handleSubmit)
		r.Get("/stats", s.handleStats)
		r.Get("/sessions", s.handleSessions)
		r.Delete("/sessions/{id}", s.handleRemoveSession)
		r.Get("/history", s.handleHistory)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.config.Listen)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
