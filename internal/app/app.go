// Package app wires the Yavanika translation overlay together: the
// learned-translation store, the plugin registry, the pipeline engine
// and the HTTP control surface.
package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/yavanika/internal/cache"
	"github.com/ayusman/yavanika/internal/capture"
	"github.com/ayusman/yavanika/internal/engine"
	"github.com/ayusman/yavanika/internal/plugin"
	"github.com/ayusman/yavanika/internal/position"
	"github.com/ayusman/yavanika/internal/recognize"
	"github.com/ayusman/yavanika/internal/render"
	"github.com/ayusman/yavanika/internal/server"
	"github.com/ayusman/yavanika/internal/translate"
	"github.com/ayusman/yavanika/internal/worker"
)

// Config holds configuration options for the application.
type Config struct {
	DataDir   string
	PluginDir string
	StaticDir string

	SourceLang string
	TargetLang string

	// CameraID selects the capture device. Negative selects the mock
	// source, which keeps the pipeline alive without a camera.
	CameraID int

	// RecognizerCmd and TranslatorCmd are worker binaries speaking the
	// stdio protocol. Empty selects the built-in mocks.
	RecognizerCmd string
	TranslatorCmd string

	CaptureInterval time.Duration
}

// App composes the pipeline and its surroundings for one run of the
// overlay.
type App struct {
	config   Config
	learned  *cache.Learned
	cache    *cache.Cache
	registry *plugin.Registry
	engine   *engine.Engine
	sink     *render.MemorySink
	srv      *server.Server

	recognizer recognize.Recognizer
	translator translate.Translator

	// Worker supervisors behind the core stages, nil when the mocks
	// are in use. Kept so Status can report an exhausted restart
	// budget.
	recSup *worker.Supervisor
	traSup *worker.Supervisor

	mu      sync.Mutex
	running bool

	flushStop    chan struct{}
	shutdownOnce sync.Once
}

// flushInterval bounds how long a learned translation waits in memory
// before it is durably written.
const flushInterval = time.Minute

// New builds the application. The learned store is opened, plugins are
// discovered and loaded, and the engine is assembled but not started.
func New(config Config) (*App, error) {
	a := &App{config: config, sink: render.NewMemorySink()}

	learned, err := cache.NewLearned(filepath.Join(config.DataDir, "learned.db"), cache.DefaultLearnThreshold)
	if err != nil {
		return nil, fmt.Errorf("open learned store: %w", err)
	}
	a.learned = learned
	a.cache = cache.New(cache.NewEphemeral(0, 0), learned)

	a.registry = plugin.NewRegistry(config.PluginDir)
	a.registerBuiltins()
	if err := a.loadPlugins(); err != nil {
		learned.Close()
		return nil, err
	}

	var source capture.Source
	if config.CameraID < 0 {
		source = capture.NewMockSource(0, 0)
	} else {
		source = capture.NewDeviceSource(config.CameraID)
	}

	a.recognizer = a.buildRecognizer()
	a.translator = a.buildTranslator()

	a.engine, err = engine.New(engine.Config{
		Source:          source,
		Recognizer:      a.recognizer,
		Translator:      a.translator,
		Positioner:      position.NewClamp(),
		Sink:            a.sink,
		Registry:        a.registry,
		Cache:           a.cache,
		SourceLang:      config.SourceLang,
		TargetLang:      config.TargetLang,
		CaptureInterval: config.CaptureInterval,
	})
	if err != nil {
		learned.Close()
		return nil, err
	}

	a.srv = server.New(server.Config{
		StaticDir: config.StaticDir,
		Engine:    a.engine,
		Registry:  a.registry,
		Sink:      a.sink,
	})

	a.flushStop = make(chan struct{})
	go a.flushLoop()
	return a, nil
}

// flushLoop periodically writes pending learned translations to the
// store, so a crash loses at most one interval's worth.
func (a *App) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.flushStop:
			return
		case <-ticker.C:
			if err := a.learned.Flush(); err != nil {
				log.Printf("app: flush learned store: %v", err)
			}
		}
	}
}

// registerBuiltins wires the in-process plugin entry points shipped
// with the application.
func (a *App) registerBuiltins() {
	skip := capture.NewSkipFilter()
	a.registry.RegisterFunc("frameskip", skip.Process)
}

// frameSkipManifest describes the built-in frame-skip filter. It is
// essential: static screens are the common case and skipping them is
// what keeps the pipeline cheap.
func frameSkipManifest() *plugin.Manifest {
	min, max := 0.0, 1.0
	return &plugin.Manifest{
		Name:        "frameskip",
		DisplayName: "Frame Skip Filter",
		Version:     "1.0.0",
		Type:        plugin.TypeOptimizer,
		TargetStage: plugin.StageCapture,
		Hook:        plugin.HookPost,
		Enabled:     true,
		Essential:   true,
		Isolation:   plugin.IsolationInProcess,
		Entry:       "frameskip",
		Settings: map[string]plugin.SettingSpec{
			"threshold": {Type: "float", Default: capture.DefaultSkipThreshold, Min: &min, Max: &max},
			"metric": {
				Type:    "enum",
				Default: capture.MetricByteDiff,
				Options: []string{capture.MetricByteDiff, capture.MetricAverageHash, capture.MetricHistogram},
			},
		},
	}
}

// loadPlugins loads the built-in plugins and runs discovery over the
// plugin directory. Discover loads each valid plugin from its own
// directory; broken manifests are logged there, not fatal here.
func (a *App) loadPlugins() error {
	if _, err := a.registry.Load(frameSkipManifest(), ""); err != nil {
		return fmt.Errorf("load frameskip: %w", err)
	}
	if _, err := a.registry.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	return nil
}

// buildRecognizer starts the configured recognizer worker, or falls
// back to the mock.
func (a *App) buildRecognizer() recognize.Recognizer {
	if a.config.RecognizerCmd == "" {
		log.Println("app: no recognizer worker configured, using mock")
		return recognize.NewMockRecognizer()
	}
	sup := worker.New(worker.Config{Command: a.config.RecognizerCmd})
	if err := sup.Start(); err != nil {
		log.Printf("app: recognizer worker failed to start (%v), using mock", err)
		return recognize.NewMockRecognizer()
	}
	a.recSup = sup
	return recognize.NewWorkerRecognizer(sup)
}

// buildTranslator starts the configured translator worker, or falls
// back to the mock.
func (a *App) buildTranslator() translate.Translator {
	if a.config.TranslatorCmd == "" {
		log.Println("app: no translator worker configured, using mock")
		return translate.NewMockTranslator(0.9)
	}
	sup := worker.New(worker.Config{Command: a.config.TranslatorCmd})
	if err := sup.Start(); err != nil {
		log.Printf("app: translator worker failed to start (%v), using mock", err)
		return translate.NewMockTranslator(0.9)
	}
	a.traSup = sup
	return translate.NewWorkerTranslator(sup)
}

// Engine returns the pipeline engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Registry returns the plugin registry.
func (a *App) Registry() *plugin.Registry { return a.registry }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.srv }

// Start brings the pipeline up in overlapped mode.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.running = true
	return nil
}

// Stop halts the pipeline but keeps the stores and registry alive, so
// the overlay can be toggled back on.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	return a.engine.Stop()
}

// SetEnabled toggles the pipeline. Wired to the tray toggle.
func (a *App) SetEnabled(enabled bool) {
	var err error
	if enabled {
		err = a.Start(context.Background())
	} else {
		err = a.Stop()
	}
	if err != nil {
		log.Printf("app: toggle pipeline: %v", err)
	}
}

// Status returns a short degraded-state description, empty when
// everything is healthy. Wired to the tray status line.
func (a *App) Status() string {
	if a.recSup != nil && a.recSup.Failed() {
		return "recognizer worker failed"
	}
	if a.traSup != nil && a.traSup.Failed() {
		return "translator worker failed"
	}
	for _, p := range a.registry.List() {
		if p.Failed() {
			return "plugin " + p.Manifest.Name + " failed"
		}
	}
	return ""
}

// Shutdown stops the pipeline and releases everything: plugin workers,
// the recognizer and translator, and the learned store (flushing
// pending writes).
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.flushStop)
		if err := a.Stop(); err != nil {
			log.Printf("app: stop engine: %v", err)
		}
		a.registry.Shutdown()
		if err := a.recognizer.Close(); err != nil {
			log.Printf("app: close recognizer: %v", err)
		}
		if err := a.translator.Close(); err != nil {
			log.Printf("app: close translator: %v", err)
		}
		if err := a.learned.Close(); err != nil {
			log.Printf("app: close learned store: %v", err)
		}
	})
}
