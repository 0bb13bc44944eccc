package stage

import (
	"errors"
	"testing"

	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/plugin"
)

// loadHook registers fn under a unique entry and loads an enabled
// plugin bound to the given stage and hook.
func loadHook(t *testing.T, r *plugin.Registry, name, stage string, hook plugin.HookPoint, fn plugin.Func) {
	t.Helper()
	r.RegisterFunc(name, fn)
	_, err := r.Load(&plugin.Manifest{
		Name: name, Type: plugin.TypeOptimizer, TargetStage: stage,
		Hook: hook, Enabled: true, Isolation: plugin.IsolationInProcess, Entry: name,
	}, "")
	if err != nil {
		t.Fatalf("Load(%s) error = %v", name, err)
	}
}

func TestStage_RunOrder(t *testing.T) {
	r := plugin.NewRegistry()
	var order []string

	loadHook(t, r, "pre-1", "recognize", plugin.HookPre, func(ctx *frame.Context, _ map[string]any) error {
		order = append(order, "pre-1")
		return nil
	})
	loadHook(t, r, "post-1", "recognize", plugin.HookPost, func(ctx *frame.Context, _ map[string]any) error {
		order = append(order, "post-1")
		return nil
	})

	s := New("recognize", func(ctx *frame.Context) error {
		order = append(order, "core")
		return nil
	}, r)

	if err := s.Run(frame.NewContext(nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"pre-1", "core", "post-1"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestStage_SkipSetByPre(t *testing.T) {
	r := plugin.NewRegistry()
	var order []string

	loadHook(t, r, "skipper", "capture", plugin.HookPre, func(ctx *frame.Context, _ map[string]any) error {
		order = append(order, "skipper")
		ctx.SetSkip(true)
		return nil
	})
	// A later pre plugin must still run after skip is set.
	loadHook(t, r, "late-pre", "capture", plugin.HookPre, func(ctx *frame.Context, _ map[string]any) error {
		order = append(order, "late-pre")
		return nil
	})
	loadHook(t, r, "post", "capture", plugin.HookPost, func(ctx *frame.Context, _ map[string]any) error {
		order = append(order, "post")
		return nil
	})

	coreRan := false
	s := New("capture", func(ctx *frame.Context) error {
		coreRan = true
		return nil
	}, r)

	ctx := frame.NewContext(nil)
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(order) != 2 || order[0] != "skipper" || order[1] != "late-pre" {
		t.Errorf("order = %v, want [skipper late-pre]", order)
	}
	if coreRan {
		t.Error("core ran despite skip")
	}
	if s.CoreInvocations() != 0 {
		t.Errorf("CoreInvocations() = %d, want 0", s.CoreInvocations())
	}
	if !ctx.Skip() {
		t.Error("skip flag lost")
	}
}

func TestStage_SkipSetByCoreBypassesPost(t *testing.T) {
	r := plugin.NewRegistry()
	postRan := false
	loadHook(t, r, "post", "capture", plugin.HookPost, func(ctx *frame.Context, _ map[string]any) error {
		postRan = true
		return nil
	})

	s := New("capture", func(ctx *frame.Context) error {
		ctx.SetSkip(true)
		return nil
	}, r)

	if err := s.Run(frame.NewContext(nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if postRan {
		t.Error("post plugin ran despite skip set by core")
	}
}

func TestStage_PluginErrorContained(t *testing.T) {
	r := plugin.NewRegistry()
	loadHook(t, r, "broken", "translate", plugin.HookPre, func(ctx *frame.Context, _ map[string]any) error {
		return errors.New("optimizer exploded")
	})

	coreRan := false
	s := New("translate", func(ctx *frame.Context) error {
		coreRan = true
		return nil
	}, r)

	if err := s.Run(frame.NewContext(nil)); err != nil {
		t.Fatalf("Run() error = %v, want plugin error contained", err)
	}
	if !coreRan {
		t.Error("core did not run after contained plugin error")
	}

	p, _ := r.Get("broken")
	if stats := p.Stats(); stats.Errors != 1 {
		t.Errorf("plugin Errors = %d, want 1", stats.Errors)
	}
}

func TestStage_PluginPanicContained(t *testing.T) {
	r := plugin.NewRegistry()
	loadHook(t, r, "panicky", "translate", plugin.HookPost, func(ctx *frame.Context, _ map[string]any) error {
		panic("plugin bug")
	})

	s := New("translate", nil, r)
	if err := s.Run(frame.NewContext(nil)); err != nil {
		t.Fatalf("Run() error = %v, want panic contained", err)
	}
}

func TestStage_CoreErrorPropagates(t *testing.T) {
	s := New("recognize", func(ctx *frame.Context) error {
		return errors.New("model crashed")
	}, nil)

	err := s.Run(frame.NewContext(nil))
	var coreErr *CoreError
	if !errors.As(err, &coreErr) {
		t.Fatalf("Run() error = %v, want CoreError", err)
	}
	if coreErr.Stage != "recognize" {
		t.Errorf("CoreError.Stage = %q, want recognize", coreErr.Stage)
	}
}

func TestStage_CoreReplace(t *testing.T) {
	r := plugin.NewRegistry()
	replaced := false
	r.RegisterFunc("replacement", func(ctx *frame.Context, _ map[string]any) error {
		replaced = true
		return nil
	})
	r.Load(&plugin.Manifest{
		Name: "replacement", Type: plugin.TypeTranslate, TargetStage: "translate",
		Hook: plugin.HookCoreReplace, Enabled: true,
		Isolation: plugin.IsolationInProcess, Entry: "replacement",
	}, "")

	builtinRan := false
	s := New("translate", func(ctx *frame.Context) error {
		builtinRan = true
		return nil
	}, r)

	if err := s.Run(frame.NewContext(nil)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !replaced {
		t.Error("core-replace plugin did not run")
	}
	if builtinRan {
		t.Error("built-in core ran despite core-replace plugin")
	}
	if s.CoreInvocations() != 1 {
		t.Errorf("CoreInvocations() = %d, want 1", s.CoreInvocations())
	}
}

func TestStage_CoreReplaceErrorPropagates(t *testing.T) {
	r := plugin.NewRegistry()
	r.RegisterFunc("bad-replacement", func(ctx *frame.Context, _ map[string]any) error {
		return errors.New("replacement broke")
	})
	r.Load(&plugin.Manifest{
		Name: "bad-replacement", Type: plugin.TypeTranslate, TargetStage: "translate",
		Hook: plugin.HookCoreReplace, Enabled: true,
		Isolation: plugin.IsolationInProcess, Entry: "bad-replacement",
	}, "")

	s := New("translate", nil, r)
	err := s.Run(frame.NewContext(nil))
	var coreErr *CoreError
	if !errors.As(err, &coreErr) {
		t.Fatalf("Run() error = %v, want CoreError from core-replace", err)
	}
}
