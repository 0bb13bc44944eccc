// Package server provides the HTTP control surface for the Yavanika
// translation overlay: health, pipeline metrics, plugin management and
// the live outputs stream.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/yavanika/internal/engine"
	"github.com/ayusman/yavanika/internal/plugin"
	"github.com/ayusman/yavanika/internal/render"
	"github.com/ayusman/yavanika/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Engine    *engine.Engine
	Registry  *plugin.Registry
	Sink      *render.MemorySink
}

// Server is the HTTP server for the Yavanika application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Engine != nil {
		s.mux.HandleFunc("/api/metrics", s.handleMetrics)
	}

	if s.config.Registry != nil {
		pluginHandler := api.NewPluginHandler(s.config.Registry)
		s.mux.Handle("/api/plugins", pluginHandler)
		s.mux.Handle("/api/plugins/", pluginHandler)
	}

	if s.config.Sink != nil {
		s.mux.Handle("/api/outputs", NewOutputsHandler(s.config.Sink))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
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
	if s.config.Engine != nil {
		response["running"] = s.config.Engine.Running()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleMetrics handles GET requests to /api/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.config.Engine.Metrics()); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}
