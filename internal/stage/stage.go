// Package stage implements one named pipeline step and its hook
// dispatch: pre plugins, the built-in core operation (or its
// core-replace substitute), and post plugins. Plugin failures are
// contained at the dispatch boundary; core failures propagate as
// per-frame errors.
package stage

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/plugin"
)

// CoreFunc is a stage's built-in primary operation.
type CoreFunc func(ctx *frame.Context) error

// CoreError marks a failure of a stage's primary operation (built-in
// or core-replace). It is fatal for the frame, not for the pipeline.
type CoreError struct {
	Stage string
	Err   error
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("stage %s: core operation failed: %v", e.Stage, e.Err)
}

func (e *CoreError) Unwrap() error { return e.Err }

// Stage is one named pipeline step bound to a plugin registry.
type Stage struct {
	name     string
	core     CoreFunc
	registry *plugin.Registry

	coreRuns atomic.Int64
	runs     atomic.Int64
}

// New creates a stage. The registry may be nil, in which case only the
// core operation runs.
func New(name string, core CoreFunc, registry *plugin.Registry) *Stage {
	return &Stage{name: name, core: core, registry: registry}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// CoreInvocations returns how many times the core operation (built-in
// or replacement) has actually run. Skipped frames do not count.
func (s *Stage) CoreInvocations() int64 { return s.coreRuns.Load() }

// Runs returns how many contexts have entered the stage.
func (s *Stage) Runs() int64 { return s.runs.Load() }

// Run drives one context through the stage.
//
// All pre plugins run in dispatch order, even after one of them sets
// the skip flag. With skip set, the core operation and all post plugins
// are bypassed. Plugin errors and panics are logged and treated as
// no-ops; a core failure is returned as a CoreError.
func (s *Stage) Run(ctx *frame.Context) error {
	s.runs.Add(1)

	for _, p := range s.plugins(plugin.HookPre) {
		s.contain(p, ctx)
	}

	if ctx.Skip() {
		return nil
	}

	if err := s.runCore(ctx); err != nil {
		return &CoreError{Stage: s.name, Err: err}
	}

	if ctx.Skip() {
		return nil
	}

	for _, p := range s.plugins(plugin.HookPost) {
		s.contain(p, ctx)
	}
	return nil
}

// runCore invokes the core-replace plugin if one is enabled, the
// built-in operation otherwise.
func (s *Stage) runCore(ctx *frame.Context) error {
	s.coreRuns.Add(1)
	if s.registry != nil {
		if rep := s.registry.CoreReplace(s.name); rep != nil {
			return rep.Invoke(ctx)
		}
	}
	if s.core == nil {
		return nil
	}
	return s.core(ctx)
}

// contain invokes one hook plugin, absorbing errors and panics so a
// broken optimizer cannot halt the pipeline. The context is treated as
// unchanged on failure.
func (s *Stage) contain(p *plugin.Plugin, ctx *frame.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("stage %s: plugin %s panicked: %v", s.name, p.Manifest.Name, r)
		}
	}()
	if err := p.Invoke(ctx); err != nil {
		log.Printf("stage %s: plugin %s: %v", s.name, p.Manifest.Name, err)
	}
}

func (s *Stage) plugins(hook plugin.HookPoint) []*plugin.Plugin {
	if s.registry == nil {
		return nil
	}
	return s.registry.ForHook(s.name, hook)
}
