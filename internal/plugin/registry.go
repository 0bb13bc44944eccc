package plugin

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ayusman/yavanika/internal/worker"
)

// ManifestFile is the manifest file name expected in each plugin directory.
const ManifestFile = "plugin.json"

// Registry discovers, loads, and tracks plugins. The pipeline engine
// holds a Registry reference and asks it for the active plugins at each
// hook point; enable/disable are method calls on the registry, not
// global state.
type Registry struct {
	dirs          []string
	workerTimeout time.Duration

	mu            sync.RWMutex
	funcs         map[string]Func
	plugins       map[string]*Plugin
	order         []string
	masterEnabled bool
	enableSeq     int64
}

// NewRegistry creates a registry scanning the given plugin directories.
func NewRegistry(dirs ...string) *Registry {
	return &Registry{
		dirs:          dirs,
		workerTimeout: worker.DefaultTimeout,
		funcs:         make(map[string]Func),
		plugins:       make(map[string]*Plugin),
		masterEnabled: true,
	}
}

// SetWorkerTimeout overrides the request timeout used for child-process
// plugins loaded after the call.
func (r *Registry) SetWorkerTimeout(d time.Duration) {
	r.mu.Lock()
	r.workerTimeout = d
	r.mu.Unlock()
}

// RegisterFunc registers an in-process implementation under an entry
// name. Manifests with isolation "in-process" resolve their entry
// against this table.
func (r *Registry) RegisterFunc(entry string, fn Func) {
	r.mu.Lock()
	r.funcs[entry] = fn
	r.mu.Unlock()
}

// Discover scans the registry's directories for plugin subdirectories
// and loads every valid one. Invalid manifests and unresolvable entry
// points are reported and skipped; the scan itself never aborts.
// It returns the manifests of the plugins loaded by this scan.
func (r *Registry) Discover() ([]Manifest, error) {
	var loaded []Manifest
	for _, dir := range r.dirs {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return loaded, err
		}
		if !info.IsDir() {
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return loaded, err
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(dir, entry.Name())
			manifest, err := readManifest(pluginDir)
			if err != nil {
				log.Printf("plugin: skipping %s: %v", pluginDir, err)
				continue
			}
			if _, err := r.Load(manifest, pluginDir); err != nil {
				log.Printf("plugin: skipping %s: %v", pluginDir, err)
				continue
			}
			loaded = append(loaded, *manifest)
		}
	}
	return loaded, nil
}

// readManifest reads and validates the plugin.json in dir.
func readManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load resolves a manifest's implementation and registers the plugin.
// For in-process plugins the entry must name a function registered via
// RegisterFunc; for child-process plugins the entry must be an
// executable inside dir, which is spawned and init-handshaken here.
func (r *Registry) Load(m *Manifest, dir string) (*Plugin, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	p := &Plugin{
		Manifest: *m,
		Dir:      dir,
		settings: m.DefaultSettings(),
		enabled:  m.Enabled,
	}

	switch m.Isolation {
	case IsolationInProcess:
		r.mu.RLock()
		fn, ok := r.funcs[m.Entry]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no registered implementation for entry %q", m.Entry)
		}
		p.fn = fn
	case IsolationChildProcess:
		execPath := filepath.Join(dir, m.Entry)
		if _, err := os.Stat(execPath); err != nil {
			return nil, fmt.Errorf("entry executable: %w", err)
		}
		initCfg, err := json.Marshal(p.settings)
		if err != nil {
			return nil, fmt.Errorf("encode init config: %w", err)
		}
		r.mu.RLock()
		timeout := r.workerTimeout
		r.mu.RUnlock()
		sup := worker.New(worker.Config{
			Command:    execPath,
			Dir:        dir,
			InitConfig: initCfg,
			Timeout:    timeout,
			OnFailure: func() {
				p.markFailed()
				log.Printf("plugin %s: worker failed, plugin disabled", m.Name)
			},
		})
		if err := sup.Start(); err != nil {
			return nil, fmt.Errorf("start worker: %w", err)
		}
		p.sup = sup
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.plugins[m.Name]; ok {
		// Replacing an existing load (hot reload path). In-flight
		// frames holding the old instance finish with it.
		p.discovered = old.discovered
		go old.shutdown()
	} else {
		p.discovered = len(r.order)
		r.order = append(r.order, m.Name)
	}
	if p.enabled {
		r.enableSeq++
		p.enabledSeq = r.enableSeq
	}
	r.plugins[m.Name] = p
	return p, nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (*Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns all loaded plugins in discovery order.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, name := range r.order {
		if p, ok := r.plugins[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Enable marks a plugin enabled. For core-replace plugins the most
// recently enabled one wins; an existing enabled core-replace plugin on
// the same stage is logged as a conflict and shadowed.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.plugins[name]
	if !ok {
		return ErrPluginNotFound
	}

	if p.Manifest.Hook == HookCoreReplace {
		for _, other := range r.plugins {
			if other == p || other.Manifest.Hook != HookCoreReplace {
				continue
			}
			if other.Manifest.TargetStage == p.Manifest.TargetStage && other.Enabled() {
				log.Printf("plugin: core-replace conflict on stage %s: %s shadows %s",
					p.Manifest.TargetStage, name, other.Manifest.Name)
			}
		}
	}

	r.enableSeq++
	p.mu.Lock()
	p.enabled = true
	p.enabledSeq = r.enableSeq
	p.mu.Unlock()
	return nil
}

// Disable marks a plugin disabled.
func (r *Registry) Disable(name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return ErrPluginNotFound
	}
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	return nil
}

// Reload tears down one plugin (shutting down its worker if isolated)
// and re-runs discovery and load for just that plugin.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	p, ok := r.plugins[name]
	r.mu.RUnlock()
	if !ok {
		return ErrPluginNotFound
	}
	if p.Dir == "" {
		return fmt.Errorf("plugin %s: not loaded from a directory, cannot reload", name)
	}

	// The old worker is shut down and waited on before the manifest is
	// re-read, so the replacement never runs alongside the instance it
	// replaces. If the re-load fails the plugin stays registered but
	// its worker is gone; invoking it reports the failure.
	p.shutdown()

	m, err := readManifest(p.Dir)
	if err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	if m.Name != name {
		return fmt.Errorf("reload %s: manifest now names %q", name, m.Name)
	}
	if _, err := r.Load(m, p.Dir); err != nil {
		return fmt.Errorf("reload %s: %w", name, err)
	}
	return nil
}

// Unload removes a plugin from the registry and shuts down its worker.
func (r *Registry) Unload(name string) error {
	r.mu.Lock()
	p, ok := r.plugins[name]
	if !ok {
		r.mu.Unlock()
		return ErrPluginNotFound
	}
	delete(r.plugins, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	p.shutdown()
	return nil
}

// SetMasterEnabled flips the master toggle. Essential plugins ignore it.
func (r *Registry) SetMasterEnabled(enabled bool) {
	r.mu.Lock()
	r.masterEnabled = enabled
	r.mu.Unlock()
}

// MasterEnabled reports the master toggle state.
func (r *Registry) MasterEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.masterEnabled
}

// active reports whether p should run right now.
func (r *Registry) active(p *Plugin) bool {
	if p.Failed() || !p.Enabled() {
		return false
	}
	if p.Manifest.Essential {
		return true
	}
	return r.MasterEnabled()
}

// ForHook returns the active plugins bound to the given stage and hook,
// in dispatch order: essential plugins first in discovery order, then
// optional plugins by ascending priority weight, discovery order as the
// tie-break.
func (r *Registry) ForHook(stage string, hook HookPoint) []*Plugin {
	r.mu.RLock()
	var matched []*Plugin
	for _, name := range r.order {
		p := r.plugins[name]
		if p.Manifest.Hook != hook {
			continue
		}
		if hook != HookGlobal && p.Manifest.TargetStage != stage {
			continue
		}
		matched = append(matched, p)
	}
	r.mu.RUnlock()

	var out []*Plugin
	for _, p := range matched {
		if r.active(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Manifest.Essential != b.Manifest.Essential {
			return a.Manifest.Essential
		}
		if !a.Manifest.Essential && a.Manifest.Priority != b.Manifest.Priority {
			return a.Manifest.Priority < b.Manifest.Priority
		}
		return a.discovered < b.discovered
	})
	return out
}

// CoreReplace returns the core-replace plugin that should substitute
// for the stage's built-in operation, or nil. With more than one
// enabled, the most recently enabled wins and the conflict is logged.
func (r *Registry) CoreReplace(stage string) *Plugin {
	candidates := r.ForHook(stage, HookCoreReplace)
	if len(candidates) == 0 {
		return nil
	}
	winner := candidates[0]
	for _, p := range candidates[1:] {
		if p.enabledSeqSnapshot() > winner.enabledSeqSnapshot() {
			winner = p
		}
	}
	if len(candidates) > 1 {
		log.Printf("plugin: %d core-replace plugins enabled for stage %s, using %s",
			len(candidates), stage, winner.Manifest.Name)
	}
	return winner
}

func (p *Plugin) enabledSeqSnapshot() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabledSeq
}

// Shutdown tears down every loaded plugin's worker.
func (r *Registry) Shutdown() {
	for _, p := range r.List() {
		p.shutdown()
	}
}
