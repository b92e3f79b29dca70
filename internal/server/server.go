// Package server provides the HTTP server for the airboard drawing system.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/airboard/internal/config"
	"github.com/ayusman/airboard/internal/export"
	"github.com/ayusman/airboard/internal/server/api"
	"github.com/ayusman/airboard/internal/session"
	"github.com/ayusman/airboard/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	// Settings is the application configuration. Defaults are used when nil.
	Settings *config.Config
	Manager  *session.Manager
	Store    *store.Store
	Exporter *export.Exporter
	Capture  api.Capture
}

// streamOptions controls how composited frames are encoded.
type streamOptions struct {
	quality int
	alpha   float64
}

// Server represents the HTTP server for the airboard application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	cfg    *api.ConfigHandler
	stream atomic.Pointer[streamOptions]

	mu      sync.Mutex
	httpSrv *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Settings == nil {
		config.Settings = defaultSettings()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		cfg:    api.NewConfigHandler(config.Settings),
	}
	s.setStreamOptions(config.Settings)
	s.setupRoutes()
	return s
}

func defaultSettings() *config.Config { return config.Default() }

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/config", s.cfg.Config)
	s.mux.HandleFunc("/api/colors", s.cfg.Colors)

	if s.config.Manager != nil {
		sessionHandler := api.NewSessionHandler(s.config.Manager, s.config.Store, s.config.Capture)
		streamHandler := NewStreamHandler(s.config.Manager, &s.stream)
		wsHandler := NewWSHandler(s.config.Manager, &s.stream)

		// Streams live under the session resource but are served here.
		sessionRouter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasSuffix(r.URL.Path, "/stream"):
				streamHandler.ServeHTTP(w, r)
			case strings.HasSuffix(r.URL.Path, "/ws"):
				wsHandler.ServeHTTP(w, r)
			default:
				sessionHandler.ServeHTTP(w, r)
			}
		})

		s.mux.Handle("/api/sessions", sessionRouter)
		s.mux.Handle("/api/sessions/", sessionRouter)
	}

	if s.config.Store != nil && s.config.Exporter != nil {
		exportHandler := api.NewExportHandler(s.config.Store, s.config.Exporter)
		s.mux.Handle("/api/exports", exportHandler)
		s.mux.Handle("/api/exports/", exportHandler)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// SetConfig applies a reloaded configuration to the config endpoints and
// to streams opened from now on.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfg.SetConfig(cfg)
	s.setStreamOptions(cfg)
}

func (s *Server) setStreamOptions(cfg *config.Config) {
	s.stream.Store(&streamOptions{quality: cfg.Server.StreamQuality, alpha: cfg.Server.OverlayAlpha})
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Manager != nil {
		response["sessions"] = s.config.Manager.Len()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address. It returns
// nil after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for requests to finish.
// Long-lived streams end when their sessions stop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// sessionID extracts {id} from /api/sessions/{id}/<suffix>.
func sessionID(path string) string {
	rest := strings.Trim(strings.TrimPrefix(path, "/api/sessions"), "/")
	id, _, _ := strings.Cut(rest, "/")
	return id
}
