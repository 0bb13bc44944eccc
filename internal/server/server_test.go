package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/yavanika/internal/capture"
	"github.com/ayusman/yavanika/internal/engine"
	"github.com/ayusman/yavanika/internal/recognize"
	"github.com/ayusman/yavanika/internal/render"
	"github.com/ayusman/yavanika/internal/translate"
)

func testEngine(t *testing.T) (*engine.Engine, *render.MemorySink) {
	t.Helper()
	sink := render.NewMemorySink()
	src := capture.NewMockSource(64, 48)
	if err := src.Open(); err != nil {
		t.Fatalf("open source: %v", err)
	}
	e, err := engine.New(engine.Config{
		Source:     src,
		Recognizer: recognize.NewMockRecognizer(),
		Translator: translate.NewMockTranslator(0.9),
		Sink:       sink,
		SourceLang: "ja",
		TargetLang: "en",
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	return e, sink
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()

		s.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		contentType := rec.Header().Get("Content-Type")
		if contentType != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", contentType)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}

		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		methods := []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch}

		for _, method := range methods {
			req := httptest.NewRequest(method, "/api/health", nil)
			rec := httptest.NewRecorder()

			s.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})

	t.Run("reports engine state when configured", func(t *testing.T) {
		e, _ := testEngine(t)
		s := New(Config{Engine: e})

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if running, ok := response["running"].(bool); !ok || running {
			t.Errorf("expected running=false, got %v", response["running"])
		}
	})
}

func TestServer_Metrics(t *testing.T) {
	e, _ := testEngine(t)
	s := New(Config{Engine: e})

	if _, err := e.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var m engine.Metrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if m.FramesProcessed != 1 {
		t.Errorf("FramesProcessed = %d, want 1", m.FramesProcessed)
	}
	if len(m.StageLatencyMS) == 0 {
		t.Error("expected per-stage latency in metrics")
	}
}

func TestServer_MetricsNotRegisteredWithoutEngine(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "index.html")
	if err := os.WriteFile(index, []byte("<html>overlay</html>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	s := New(Config{StaticDir: dir})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if body := rec.Body.String(); body != "<html>overlay</html>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestServer_NoStaticDir(t *testing.T) {
	s := New(Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}
