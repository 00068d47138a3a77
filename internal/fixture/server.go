// internal/fixture/server.go

// Package fixture serves a local copy of the two playground pages the
// scenarios drive, so the navigation race can be reproduced without the
// public site. The filter input is inserted by script after a delay.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/valpere/staleguard/internal/monitoring"
	"github.com/valpere/staleguard/internal/utils"
)

const (
	HomePath   = "/"
	FilterPath = "/table-search-filter-demo"
	HealthPath = "/health"
)

// Config configures the fixture server
type Config struct {
	Addr string `yaml:"addr"`
	// FilterDelay postpones the insertion of the filter input; ?delay=<ms>
	// overrides it per request.
	FilterDelay time.Duration `yaml:"filter_delay"`
	// RequestsPerSecond rejects excess requests with 429; 0 disables it.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DefaultConfig returns the configuration used by the serve command.
func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:8088", FilterDelay: 300 * time.Millisecond}
}

// Task is one row of the task table.
type Task struct {
	ID       int
	Name     string
	Assignee string
	Status   string
}

// Tasks is the table content of the filter page.
var Tasks = []Task{
	{1, "Wireframes", "John Smith", "in progress"},
	{2, "Landing Page", "Mike Trout", "completed"},
	{3, "SEO tags", "Loblab Dan", "failed qa"},
	{4, "Bootstrap 3", "Emily John", "in progress"},
	{5, "jQuery library", "Holden Charles", "deployed"},
	{6, "Browser Issues", "Jane Doe", "failed qa"},
	{7, "Bug fixing", "Kilgore Trout", "deployed"},
}

// Server serves the fixture pages.
type Server struct {
	config  Config
	router  *mux.Router
	limiter *utils.RateLimiter
	health  *monitoring.HealthManager
	logger  utils.Logger
}

// New creates a fixture server
func New(config Config, logger utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	s := &Server{
		config:  config,
		router:  mux.NewRouter(),
		limiter: utils.NewRateLimiter(config.RequestsPerSecond, int(config.RequestsPerSecond)+1),
		health:  monitoring.NewHealthManager(time.Second),
		logger:  logger.WithField("component", "fixture"),
	}
	s.health.Register(monitoring.StaticProbe("templates", true, func() error {
		if pages.Lookup("home") == nil || pages.Lookup("filter") == nil {
			return errors.New("page templates missing")
		}
		return nil
	}))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests, s.rateLimit)
	s.router.HandleFunc(HomePath, s.homeHandler).Methods(http.MethodGet)
	s.router.HandleFunc(FilterPath, s.filterHandler).Methods(http.MethodGet)
	s.router.HandleFunc(HealthPath, s.health.Handler()).Methods(http.MethodGet)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("fixture server failed to listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. The listener is ready before
// Serve is called, so callers can navigate to it right away.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Infof("serving fixture pages on http://%s (filter delay %s)", ln.Addr(), s.config.FilterDelay)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("fixture server failed: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, "home", map[string]interface{}{"FilterPath": FilterPath})
}

func (s *Server) filterHandler(w http.ResponseWriter, r *http.Request) {
	delay := s.config.FilterDelay
	if raw := r.URL.Query().Get("delay"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			http.Error(w, "delay must be a non-negative number of milliseconds", http.StatusBadRequest)
			return
		}
		delay = time.Duration(ms) * time.Millisecond
	}
	s.render(w, "filter", map[string]interface{}{
		"Tasks":   Tasks,
		"DelayMS": delay.Milliseconds(),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Errorf("failed to render %s: %v", name, err)
	}
}
