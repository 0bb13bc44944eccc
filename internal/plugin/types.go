// Package plugin provides manifest-driven plugin discovery, loading,
// and lifecycle management for the Yavanika pipeline. Plugins attach to
// a stage at a hook point and run either in-process (a registered Go
// function) or in an isolated child process behind a worker supervisor.
package plugin

import (
	"errors"
	"fmt"

	"github.com/ayusman/yavanika/internal/frame"
)

// Pipeline stage names. Manifest target_stage must be one of these.
const (
	StageCapture   = "capture"
	StageRecognize = "recognize"
	StageTranslate = "translate"
	StagePosition  = "position"
	StageRender    = "render"
)

// Stages lists the pipeline stages in execution order.
var Stages = []string{StageCapture, StageRecognize, StageTranslate, StagePosition, StageRender}

// HookPoint is where a plugin attaches to its target stage.
type HookPoint string

// Hook points.
const (
	HookPre         HookPoint = "pre"
	HookPost        HookPoint = "post"
	HookCoreReplace HookPoint = "core-replace"
	HookGlobal      HookPoint = "global"
)

// Type categorizes what a plugin implements.
type Type string

// Plugin types.
const (
	TypeCapture   Type = "capture"
	TypeRecognize Type = "recognize"
	TypeTranslate Type = "translate"
	TypeOptimizer Type = "optimizer"
)

// Isolation selects where a plugin's implementation runs.
type Isolation string

// Isolation modes.
const (
	IsolationInProcess    Isolation = "in-process"
	IsolationChildProcess Isolation = "child-process"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Func is the signature of an in-process plugin implementation. It
// receives the frame context and a snapshot of the plugin's settings
// taken when the invocation started; settings changed mid-invocation
// apply from the next frame on.
type Func func(ctx *frame.Context, settings map[string]any) error

// SettingSpec declares one setting in a manifest: its type, default,
// and bounds. Runtime values are validated against it.
type SettingSpec struct {
	Type        string   `json:"type"` // int, float, bool, string, enum
	Default     any      `json:"default"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Options     []string `json:"options,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Manifest is the static descriptor read from a plugin directory's
// plugin.json. It is immutable once loaded.
type Manifest struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"display_name"`
	Version     string                 `json:"version"`
	Type        Type                   `json:"type"`
	TargetStage string                 `json:"target_stage"`
	Hook        HookPoint              `json:"hook"`
	Enabled     bool                   `json:"enabled"`
	Essential   bool                   `json:"essential"`
	Priority    int                    `json:"priority"`
	Settings    map[string]SettingSpec `json:"settings,omitempty"`
	Isolation   Isolation              `json:"isolation"`
	Entry       string                 `json:"entry"`
}

// Validate checks the manifest for the schema errors that disqualify a
// plugin at discovery time.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return errors.New("manifest: missing name")
	}
	switch m.Type {
	case TypeCapture, TypeRecognize, TypeTranslate, TypeOptimizer:
	case "":
		return errors.New("manifest: missing type")
	default:
		return fmt.Errorf("manifest: invalid type %q", m.Type)
	}
	switch m.Hook {
	case HookPre, HookPost, HookCoreReplace, HookGlobal:
	case "":
		return errors.New("manifest: missing hook")
	default:
		return fmt.Errorf("manifest: invalid hook %q", m.Hook)
	}
	if m.Hook != HookGlobal && !validStage(m.TargetStage) {
		return fmt.Errorf("manifest: invalid target_stage %q", m.TargetStage)
	}
	switch m.Isolation {
	case IsolationInProcess, IsolationChildProcess:
	case "":
		return errors.New("manifest: missing isolation")
	default:
		return fmt.Errorf("manifest: invalid isolation %q", m.Isolation)
	}
	if m.Entry == "" {
		return errors.New("manifest: missing entry")
	}
	for name, spec := range m.Settings {
		if spec.Default == nil {
			return fmt.Errorf("manifest: setting %q has no default", name)
		}
		if err := validateSetting(spec, spec.Default); err != nil {
			return fmt.Errorf("manifest: setting %q default: %w", name, err)
		}
	}
	return nil
}

// DefaultSettings materializes the declared defaults into a runtime
// settings map.
func (m *Manifest) DefaultSettings() map[string]any {
	out := make(map[string]any, len(m.Settings))
	for name, spec := range m.Settings {
		out[name] = spec.Default
	}
	return out
}

func validStage(s string) bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// validateSetting checks one value against its spec: declared type,
// numeric bounds, enum membership.
func validateSetting(spec SettingSpec, v any) error {
	switch spec.Type {
	case "int", "float":
		n, ok := asFloat(v)
		if !ok {
			return fmt.Errorf("want %s, got %T", spec.Type, v)
		}
		if spec.Type == "int" && n != float64(int64(n)) {
			return fmt.Errorf("want int, got %v", v)
		}
		if spec.Min != nil && n < *spec.Min {
			return fmt.Errorf("value %v below minimum %v", n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fmt.Errorf("value %v above maximum %v", n, *spec.Max)
		}
	case "bool":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want bool, got %T", v)
		}
	case "string":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case "enum":
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want enum string, got %T", v)
		}
		for _, opt := range spec.Options {
			if s == opt {
				return nil
			}
		}
		return fmt.Errorf("value %q not in options %v", s, spec.Options)
	default:
		return fmt.Errorf("unknown setting type %q", spec.Type)
	}
	return nil
}

// asFloat widens the numeric types that reach us from JSON decoding
// and Go callers.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
