package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gofrs/flock"

	"tally/internal/certificate"
	"tally/internal/config"
	"tally/internal/history"
	"tally/internal/logging"
	"tally/internal/services"
	"tally/internal/session"
)

const (
	maxLedgerBytes = 10 << 20
	maxVideoBytes  = 2 << 30
	logWaitTimeout = 25 * time.Second
)

// Server exposes one audit session over HTTP and enforces a single daemon
// per state directory.
type Server struct {
	cfg      *config.Config
	session  *session.Session
	history  *history.Store
	exporter *certificate.Exporter
	logger   *slog.Logger
	token    string

	lockPath string
	lock     *flock.Flock
	listener net.Listener
	http     *http.Server
	running  atomic.Bool
}

// Option customises a Server.
type Option func(*Server)

// WithHistory enables the history endpoints.
func WithHistory(store *history.Store) Option {
	return func(s *Server) { s.history = store }
}

// WithExporter overrides the certificate exporter.
func WithExporter(e *certificate.Exporter) Option {
	return func(s *Server) {
		if e != nil {
			s.exporter = e
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a server for sess.
func New(cfg *config.Config, sess *session.Session, opts ...Option) (*Server, error) {
	if cfg == nil || sess == nil {
		return nil, errors.New("server requires config and session")
	}
	s := &Server{
		cfg:      cfg,
		session:  sess,
		logger:   logging.NewNop(),
		token:    strings.TrimSpace(cfg.Paths.APIToken),
		lockPath: cfg.LockPath(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exporter == nil {
		s.exporter = certificate.NewExporter(cfg, certificate.WithLogger(s.logger))
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")
	s.lock = flock.New(s.lockPath)
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware(s.token))

	r.Get("/", s.handleDashboard)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Post("/ledger", s.handleLedger)
		r.Post("/video", s.handleVideo)
		r.Post("/audit", s.handleAudit)
		r.Get("/result", s.handleResult)
		r.Get("/certificate", s.handleCertificate)
		r.Get("/history", s.handleHistoryList)
		r.Get("/history/{id}", s.handleHistoryItem)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.logger, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, s.logger, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Start acquires the instance lock and begins serving. The server shuts
// down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another tally daemon is already running (lock %s)", s.lockPath)
	}
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", s.lockPath),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the listener down and releases the lock.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.http.Shutdown(shutdownCtx)
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	s.logger.Info("api server stopped")
}
