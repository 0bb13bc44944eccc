// Package engine wires the five pipeline stages, the plugin registry,
// the translation cache and the scheduler into one runnable pipeline.
// It supports a sequential mode, where Step drives one frame start to
// finish, and an overlapped mode, where a capture ticker admits frames
// that then traverse the stages as scheduler tasks with several frames
// in flight at once.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/yavanika/internal/cache"
	"github.com/ayusman/yavanika/internal/capture"
	"github.com/ayusman/yavanika/internal/frame"
	"github.com/ayusman/yavanika/internal/plugin"
	"github.com/ayusman/yavanika/internal/position"
	"github.com/ayusman/yavanika/internal/recognize"
	"github.com/ayusman/yavanika/internal/render"
	"github.com/ayusman/yavanika/internal/sched"
	"github.com/ayusman/yavanika/internal/stage"
	"github.com/ayusman/yavanika/internal/translate"
)

// Defaults for overlapped mode.
const (
	DefaultMaxInFlight     = 4
	DefaultQueueCap        = 10
	DefaultCaptureInterval = 100 * time.Millisecond
)

// ErrNotRunning is returned by Stop when the engine was never started.
var ErrNotRunning = errors.New("engine is not running")

// Config assembles an engine. Source, Recognizer, Translator and Sink
// are required; everything else has a usable default.
type Config struct {
	Source     capture.Source
	Recognizer recognize.Recognizer
	Translator translate.Translator
	Positioner position.Positioner
	Sink       render.Sink

	Registry *plugin.Registry
	Cache    *cache.Cache

	SourceLang string
	TargetLang string

	// Overlapped mode.
	Workers         int
	MaxInFlight     int
	QueueCap        int
	CaptureInterval time.Duration
}

// Engine drives frames through capture, recognize, translate, position
// and render.
type Engine struct {
	cfg        Config
	stages     [5]*stage.Stage
	registry   *plugin.Registry
	translator translate.Translator
	cached     *translate.Cached

	runMu   sync.Mutex
	pool    *sched.Pool
	ticker  *time.Ticker
	cancel  context.CancelFunc
	loopEnd chan struct{}
	running atomic.Bool

	seq      atomic.Int64
	inFlight atomic.Int64

	mu          sync.RWMutex
	lastOutputs *frame.Outputs
	startedAt   time.Time

	processed atomic.Int64
	skipped   atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64

	latency [5]stageLatency
}

type stageLatency struct {
	totalNS atomic.Int64
	count   atomic.Int64
}

// New builds an engine from cfg. The translator is wrapped with the
// cache tiers when a cache is configured.
func New(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, errors.New("engine: capture source is required")
	}
	if cfg.Recognizer == nil {
		return nil, errors.New("engine: recognizer is required")
	}
	if cfg.Translator == nil {
		return nil, errors.New("engine: translator is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("engine: output sink is required")
	}
	if cfg.Positioner == nil {
		cfg.Positioner = position.NewClamp()
	}
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	if cfg.QueueCap < 1 {
		cfg.QueueCap = DefaultQueueCap
	}
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = DefaultCaptureInterval
	}

	e := &Engine{
		cfg:        cfg,
		registry:   cfg.Registry,
		translator: cfg.Translator,
	}
	if cfg.Cache != nil {
		e.cached = translate.NewCached(cfg.Translator, cfg.Cache)
		e.translator = e.cached
	}

	e.stages[0] = stage.New(plugin.StageCapture, e.captureCore, cfg.Registry)
	e.stages[1] = stage.New(plugin.StageRecognize, e.recognizeCore, cfg.Registry)
	e.stages[2] = stage.New(plugin.StageTranslate, e.translateCore, cfg.Registry)
	e.stages[3] = stage.New(plugin.StagePosition, e.positionCore, cfg.Registry)
	e.stages[4] = stage.New(plugin.StageRender, e.renderCore, cfg.Registry)
	return e, nil
}

// Stage returns the stage with the given name, or nil.
func (e *Engine) Stage(name string) *stage.Stage {
	for _, s := range e.stages {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// Step runs exactly one frame through the whole pipeline, sequential
// mode. A skipped frame re-presents the previous outputs; a core
// failure presents a failed-frame record. Both keep the pipeline
// alive, so Step only returns the error for inspection.
func (e *Engine) Step() (*frame.Outputs, error) {
	ctx := frame.NewContext(nil)
	start := time.Now()

	var coreErr error
	for i, s := range e.stages {
		if err := e.runStage(i, s, ctx); err != nil {
			coreErr = err
			break
		}
		if ctx.Skip() {
			break
		}
	}
	out := e.finish(ctx, start, coreErr)
	e.runGlobalHooks(ctx)
	return out, coreErr
}

// Start switches the engine into overlapped mode: a ticker admits a
// frame every CaptureInterval, the scheduler pool carries each frame
// through the stages, and up to MaxInFlight frames overlap. Frames
// arriving while the pipeline is saturated are dropped at capture.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running.Load() {
		return errors.New("engine: already running")
	}
	if err := e.cfg.Source.Open(); err != nil {
		return fmt.Errorf("engine: open source: %w", err)
	}

	ctx, e.cancel = context.WithCancel(ctx)
	workers := e.cfg.Workers
	if workers < 1 {
		workers = e.cfg.MaxInFlight
	}
	e.pool = sched.NewPool(workers)
	e.pool.Start(ctx)
	e.ticker = time.NewTicker(e.cfg.CaptureInterval)
	e.loopEnd = make(chan struct{})
	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	go e.captureLoop(ctx)
	e.running.Store(true)
	return nil
}

// Stop halts admission, waits for the capture loop, and stops the
// worker pool. Frames already in flight finish their current task;
// later tasks observe the stop and are abandoned.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running.Load() {
		return ErrNotRunning
	}
	e.running.Store(false)
	e.cancel()
	e.ticker.Stop()
	<-e.loopEnd
	e.pool.Stop()
	if err := e.cfg.Source.Close(); err != nil {
		log.Printf("engine: close source: %v", err)
	}
	return nil
}

// Running reports whether overlapped mode is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func (e *Engine) captureLoop(ctx context.Context) {
	defer close(e.loopEnd)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ticker.C:
			e.admit(ctx)
		}
	}
}

// admit starts one frame's traversal, or drops it when the pipeline is
// saturated. Backpressure acts here and only here; once admitted, a
// frame always runs to a presented outcome.
func (e *Engine) admit(ctx context.Context) {
	if e.inFlight.Load() >= int64(e.cfg.MaxInFlight) || e.pool.Queued() >= e.cfg.QueueCap {
		e.dropped.Add(1)
		return
	}
	e.inFlight.Add(1)
	e.pool.Submit(sched.Task{
		Priority: sched.PriorityNormal,
		Run:      e.stageTask(ctx, frame.NewContext(nil), 0, time.Now()),
	})
}

// stageTask returns the scheduler task that runs stage index i for one
// frame and spawns the next stage as a continuation on the same worker.
func (e *Engine) stageTask(ctx context.Context, fc *frame.Context, i int, start time.Time) func(*sched.Worker) {
	return func(w *sched.Worker) {
		if ctx.Err() != nil {
			e.inFlight.Add(-1)
			return
		}
		err := e.runStage(i, e.stages[i], fc)
		if err == nil && !fc.Skip() && i+1 < len(e.stages) {
			w.Spawn(sched.Task{
				Priority: sched.PriorityNormal,
				Run:      e.stageTask(ctx, fc, i+1, start),
			})
			return
		}
		e.finish(fc, start, err)
		e.runGlobalHooks(fc)
		e.inFlight.Add(-1)
	}
}

func (e *Engine) runStage(i int, s *stage.Stage, ctx *frame.Context) error {
	begin := time.Now()
	err := s.Run(ctx)
	e.latency[i].totalNS.Add(int64(time.Since(begin)))
	e.latency[i].count.Add(1)
	return err
}

// finish turns the traversal outcome into Outputs and presents them.
// Skips re-present the previous frame's results so the overlay does
// not flicker on static content.
func (e *Engine) finish(ctx *frame.Context, start time.Time, coreErr error) *frame.Outputs {
	f := ctx.Frame()
	out := &frame.Outputs{Elapsed: time.Since(start)}
	if f != nil {
		out.Seq = f.Seq
		out.CapturedAt = f.CapturedAt
	}

	switch {
	case coreErr != nil:
		out.Failed = true
		out.Error = coreErr.Error()
		e.failed.Add(1)
		log.Printf("engine: frame %d failed: %v", out.Seq, coreErr)
	case ctx.Skip():
		out.Skipped = true
		e.mu.RLock()
		if prev := e.lastOutputs; prev != nil {
			out.Regions = prev.Regions
			out.Translations = prev.Translations
		}
		e.mu.RUnlock()
		e.skipped.Add(1)
	default:
		out.Regions = ctx.Regions()
		out.Translations = ctx.Translations()
		e.mu.Lock()
		e.lastOutputs = out
		e.mu.Unlock()
	}
	e.processed.Add(1)

	if err := e.cfg.Sink.Present(out); err != nil {
		log.Printf("engine: present frame %d: %v", out.Seq, err)
	}
	return out
}

// runGlobalHooks invokes every active global plugin once per frame,
// after the traversal. Failures are contained like any hook failure.
func (e *Engine) runGlobalHooks(ctx *frame.Context) {
	if e.registry == nil {
		return
	}
	for _, p := range e.registry.ForHook("", plugin.HookGlobal) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("engine: global plugin %s panicked: %v", p.Manifest.Name, r)
				}
			}()
			if err := p.Invoke(ctx); err != nil {
				log.Printf("engine: global plugin %s: %v", p.Manifest.Name, err)
			}
		}()
	}
}

// LastOutputs returns the outputs of the most recent fully processed
// frame, or nil.
func (e *Engine) LastOutputs() *frame.Outputs {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastOutputs
}

// Stage cores.

func (e *Engine) captureCore(ctx *frame.Context) error {
	f, err := e.cfg.Source.Read()
	if err != nil {
		return err
	}
	f.Seq = e.seq.Add(1)
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	ctx.SetFrame(f)
	return nil
}

func (e *Engine) recognizeCore(ctx *frame.Context) error {
	f := ctx.Frame()
	if f == nil {
		return errors.New("no frame in context")
	}
	regions, err := e.cfg.Recognizer.Recognize(f)
	if err != nil {
		return err
	}
	ctx.SetRegions(regions)
	return nil
}

func (e *Engine) translateCore(ctx *frame.Context) error {
	regions := ctx.Regions()
	translations := make([]frame.Translation, 0, len(regions))
	for _, r := range regions {
		if r.Text == "" {
			continue
		}
		res, err := e.translator.Translate(r.Text, e.cfg.SourceLang, e.cfg.TargetLang)
		if err != nil {
			return fmt.Errorf("translate %q: %w", r.Text, err)
		}
		translations = append(translations, frame.Translation{
			Region:     r,
			Text:       res.Text,
			SourceLang: e.cfg.SourceLang,
			TargetLang: e.cfg.TargetLang,
			Confidence: res.Confidence,
		})
	}
	ctx.SetTranslations(translations)
	return nil
}

func (e *Engine) positionCore(ctx *frame.Context) error {
	f := ctx.Frame()
	w, h := capture.DefaultWidth, capture.DefaultHeight
	if f != nil {
		w, h = f.Width, f.Height
	}
	ctx.SetTranslations(e.cfg.Positioner.Position(ctx.Translations(), w, h))
	return nil
}

func (e *Engine) renderCore(ctx *frame.Context) error {
	// Assembly and presentation happen in finish so skipped and failed
	// frames are presented too. The render stage exists for its hooks.
	return nil
}
