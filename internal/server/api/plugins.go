// Package api provides the HTTP API handlers for the Yavanika plugin
// registry.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/yavanika/internal/plugin"
)

// PluginHandler handles HTTP requests for plugin resources.
type PluginHandler struct {
	registry *plugin.Registry
}

// NewPluginHandler creates a new PluginHandler over the given registry.
func NewPluginHandler(r *plugin.Registry) *PluginHandler {
	return &PluginHandler{registry: r}
}

// ServeHTTP implements the http.Handler interface and routes requests
// to the appropriate methods.
func (h *PluginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/plugins, /api/plugins/{name} and
	// /api/plugins/{name}/{action}.
	path := strings.TrimPrefix(r.URL.Path, "/api/plugins")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	name, action, _ := strings.Cut(path, "/")
	if name == "master" {
		h.master(w, r, action)
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, name)
	case "enable":
		h.lifecycle(w, r, name, h.registry.Enable)
	case "disable":
		h.lifecycle(w, r, name, h.registry.Disable)
	case "reload":
		h.lifecycle(w, r, name, h.registry.Reload)
	case "settings":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.updateSettings(w, r, name)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// pluginResponse is the wire representation of one loaded plugin.
type pluginResponse struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Version     string         `json:"version"`
	Type        string         `json:"type"`
	TargetStage string         `json:"target_stage"`
	Hook        string         `json:"hook"`
	Enabled     bool           `json:"enabled"`
	Essential   bool           `json:"essential"`
	Failed      bool           `json:"failed"`
	Priority    int            `json:"priority"`
	Isolation   string         `json:"isolation"`
	Settings    map[string]any `json:"settings"`
	Stats       plugin.Stats   `json:"stats"`
}

func toResponse(p *plugin.Plugin) pluginResponse {
	m := p.Manifest
	return pluginResponse{
		Name:        m.Name,
		DisplayName: m.DisplayName,
		Version:     m.Version,
		Type:        string(m.Type),
		TargetStage: m.TargetStage,
		Hook:        string(m.Hook),
		Enabled:     p.Enabled(),
		Essential:   m.Essential,
		Failed:      p.Failed(),
		Priority:    m.Priority,
		Isolation:   string(m.Isolation),
		Settings:    p.Settings(),
		Stats:       p.Stats(),
	}
}

// master flips the registry-wide toggle. Essential plugins keep
// running regardless of its state.
func (h *PluginHandler) master(w http.ResponseWriter, r *http.Request, action string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "enable":
		h.registry.SetMasterEnabled(true)
	case "disable":
		h.registry.SetMasterEnabled(false)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"master_enabled": h.registry.MasterEnabled()})
}

func (h *PluginHandler) list(w http.ResponseWriter, _ *http.Request) {
	plugins := h.registry.List()
	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, toResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PluginHandler) get(w http.ResponseWriter, _ *http.Request, name string) {
	p, err := h.registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

// lifecycle runs one of the registry's enable/disable/reload methods
// and returns the updated plugin record.
func (h *PluginHandler) lifecycle(w http.ResponseWriter, r *http.Request, name string, op func(string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := op(name); err != nil {
		writeError(w, err)
		return
	}
	h.get(w, r, name)
}

func (h *PluginHandler) updateSettings(w http.ResponseWriter, r *http.Request, name string) {
	p, err := h.registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}

	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	for key, value := range updates {
		if err := p.SetSetting(key, value); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusOK, toResponse(p))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, plugin.ErrPluginNotFound) {
		http.Error(w, "Plugin not found", http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
