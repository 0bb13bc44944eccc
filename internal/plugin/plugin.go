package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/ipc"
	"github.com/ayusman/yavanika/internal/worker"
)

// Stats accumulates per-plugin runtime statistics.
type Stats struct {
	Invocations int64         `json:"invocations"`
	Errors      int64         `json:"errors"`
	LastLatency time.Duration `json:"lastLatency"`
}

// Plugin is a loaded plugin: its manifest plus the resolved
// implementation (an in-process function or a worker supervisor) and
// mutable runtime state. It lives from load to unload.
type Plugin struct {
	Manifest Manifest
	// Dir is the plugin directory the manifest was discovered in.
	// Empty for plugins loaded from a bare manifest.
	Dir string

	fn  Func
	sup *worker.Supervisor

	mu         sync.RWMutex
	enabled    bool
	failed     bool
	settings   map[string]any
	discovered int
	enabledSeq int64
	stats      Stats
}

// Enabled reports whether the plugin is currently enabled.
func (p *Plugin) Enabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// Failed reports whether the plugin has been marked failed (its worker
// exhausted the restart budget).
func (p *Plugin) Failed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failed
}

// Stats returns a copy of the accumulated statistics.
func (p *Plugin) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Settings returns a copy of the current runtime settings.
func (p *Plugin) Settings() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.settings))
	for k, v := range p.settings {
		out[k] = v
	}
	return out
}

// SetSetting validates value against the declared schema and stores it.
// The new value is observed from the next invocation on, never
// mid-invocation.
func (p *Plugin) SetSetting(name string, value any) error {
	spec, ok := p.Manifest.Settings[name]
	if !ok {
		return fmt.Errorf("plugin %s: unknown setting %q", p.Manifest.Name, name)
	}
	if err := validateSetting(spec, value); err != nil {
		return fmt.Errorf("plugin %s: setting %q: %w", p.Manifest.Name, name, err)
	}
	p.mu.Lock()
	p.settings[name] = value
	p.mu.Unlock()
	return nil
}

// Supervisor returns the worker supervisor backing this plugin, or nil
// for in-process plugins.
func (p *Plugin) Supervisor() *worker.Supervisor {
	return p.sup
}

// Invoke runs the plugin against ctx and records its statistics.
// Settings are snapshotted on entry. For child-process plugins the
// relevant context slices cross the wire and results are merged back.
func (p *Plugin) Invoke(ctx *frame.Context) error {
	p.mu.Lock()
	settings := make(map[string]any, len(p.settings))
	for k, v := range p.settings {
		settings[k] = v
	}
	p.stats.Invocations++
	p.mu.Unlock()

	start := time.Now()
	var err error
	if p.fn != nil {
		err = p.fn(ctx, settings)
	} else {
		err = p.invokeWorker(ctx)
	}
	elapsed := time.Since(start)

	p.mu.Lock()
	p.stats.LastLatency = elapsed
	if err != nil {
		p.stats.Errors++
	}
	p.mu.Unlock()
	return err
}

// invokeWorker round-trips the context through the plugin's child
// process. Absent result fields leave the context untouched.
func (p *Plugin) invokeWorker(ctx *frame.Context) error {
	if p.sup == nil {
		return fmt.Errorf("plugin %s: no implementation resolved", p.Manifest.Name)
	}

	payload := ipc.ProcessPayload{
		Image:        ipc.EncodeImage(ctx.Frame()),
		Regions:      ctx.Regions(),
		Translations: ctx.Translations(),
	}
	if f := ctx.Frame(); f != nil {
		payload.Seq = f.Seq
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("plugin %s: encode payload: %w", p.Manifest.Name, err)
	}

	result, err := p.sup.Send(data)
	if err != nil {
		if errors.Is(err, worker.ErrFailed) {
			p.markFailed()
		}
		return fmt.Errorf("plugin %s: %w", p.Manifest.Name, err)
	}
	if len(result) == 0 {
		return nil
	}

	var out ipc.ProcessPayload
	if err := json.Unmarshal(result, &out); err != nil {
		return fmt.Errorf("plugin %s: decode result: %w", p.Manifest.Name, err)
	}
	if out.Regions != nil {
		ctx.SetRegions(out.Regions)
	}
	if out.Translations != nil {
		ctx.SetTranslations(out.Translations)
	}
	if out.Skip != nil {
		ctx.SetSkip(*out.Skip)
	}
	return nil
}

// markFailed flips the plugin into its failed state. Failed plugins
// are excluded from hook dispatch until reloaded.
func (p *Plugin) markFailed() {
	p.mu.Lock()
	p.failed = true
	p.mu.Unlock()
}

// shutdown tears down the plugin's worker, if any.
func (p *Plugin) shutdown() {
	if p.sup != nil {
		p.sup.Shutdown()
	}
}
