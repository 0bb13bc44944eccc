package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/plugin"
)

func testRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	min, max := 1.0, 16.0
	r := plugin.NewRegistry()
	r.RegisterFunc("blur", func(ctx *frame.Context, _ map[string]any) error { return nil })
	_, err := r.Load(&plugin.Manifest{
		Name: "blur", DisplayName: "Region Blur", Version: "1.0.0",
		Type: plugin.TypeOptimizer, TargetStage: plugin.StageCapture,
		Hook: plugin.HookPost, Enabled: true,
		Isolation: plugin.IsolationInProcess, Entry: "blur",
		Settings: map[string]plugin.SettingSpec{
			"radius": {Type: "int", Default: 4, Min: &min, Max: &max},
		},
	}, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return r
}

func TestPluginHandler_List(t *testing.T) {
	h := NewPluginHandler(testRegistry(t))

	req := httptest.NewRequest(http.MethodGet, "/api/plugins", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var plugins []pluginResponse
	if err := json.NewDecoder(rec.Body).Decode(&plugins); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(plugins) != 1 {
		t.Fatalf("got %d plugins, want 1", len(plugins))
	}
	p := plugins[0]
	if p.Name != "blur" || p.DisplayName != "Region Blur" || !p.Enabled {
		t.Errorf("unexpected plugin record %+v", p)
	}
}

func TestPluginHandler_Get(t *testing.T) {
	h := NewPluginHandler(testRegistry(t))

	t.Run("known plugin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/plugins/blur", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var p pluginResponse
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if got, ok := p.Settings["radius"].(float64); !ok || got != 4 {
			t.Errorf("settings radius = %v, want 4", p.Settings["radius"])
		}
	})

	t.Run("unknown plugin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/plugins/ghost", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestPluginHandler_Lifecycle(t *testing.T) {
	r := testRegistry(t)
	h := NewPluginHandler(r)

	post := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("disable then enable", func(t *testing.T) {
		rec := post(t, "/api/plugins/blur/disable")
		if rec.Code != http.StatusOK {
			t.Fatalf("disable: expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var p pluginResponse
		if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if p.Enabled {
			t.Error("plugin still enabled after disable")
		}

		rec = post(t, "/api/plugins/blur/enable")
		if rec.Code != http.StatusOK {
			t.Fatalf("enable: expected status %d, got %d", http.StatusOK, rec.Code)
		}
		got, err := r.Get("blur")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.Enabled() {
			t.Error("plugin not enabled after enable")
		}
	})

	t.Run("requires POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/plugins/blur/enable", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("unknown plugin", func(t *testing.T) {
		rec := post(t, "/api/plugins/ghost/enable")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := post(t, "/api/plugins/blur/detonate")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestPluginHandler_MasterToggle(t *testing.T) {
	r := testRegistry(t)
	h := NewPluginHandler(r)

	req := httptest.NewRequest(http.MethodPost, "/api/plugins/master/disable", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if r.MasterEnabled() {
		t.Error("master toggle still enabled after disable")
	}

	var body map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["master_enabled"] {
		t.Error("response reports master_enabled=true after disable")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/plugins/master/enable", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !r.MasterEnabled() {
		t.Errorf("enable: status %d, master %v", rec.Code, r.MasterEnabled())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/plugins/master/enable", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestPluginHandler_UpdateSettings(t *testing.T) {
	r := testRegistry(t)
	h := NewPluginHandler(r)

	put := func(t *testing.T, body string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodPut, "/api/plugins/blur/settings", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid update", func(t *testing.T) {
		rec := put(t, `{"radius": 8}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body)
		}
		p, err := r.Get("blur")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got := p.Settings()["radius"]; got != float64(8) {
			t.Errorf("radius = %v, want 8", got)
		}
	})

	t.Run("out of bounds rejected", func(t *testing.T) {
		rec := put(t, `{"radius": 99}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		rec := put(t, `{"radius": `)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})
}
