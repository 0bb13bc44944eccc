package engine

import (
	"time"

	"github.com/ayusman/yavanika/internal/plugin"
)

// Metrics is a point-in-time snapshot of pipeline throughput.
type Metrics struct {
	FramesProcessed int64   `json:"framesProcessed"`
	FramesSkipped   int64   `json:"framesSkipped"`
	FramesDropped   int64   `json:"framesDropped"`
	FramesFailed    int64   `json:"framesFailed"`
	InFlight        int64   `json:"inFlight"`
	FPS             float64 `json:"fps"`
	CacheHitRate    float64 `json:"cacheHitRate"`

	// Average wall time per stage, milliseconds.
	StageLatencyMS map[string]float64 `json:"stageLatencyMs"`
}

// Metrics returns the current counters. FPS is measured over the time
// since Start; it is zero in sequential mode.
func (e *Engine) Metrics() Metrics {
	m := Metrics{
		FramesProcessed: e.processed.Load(),
		FramesSkipped:   e.skipped.Load(),
		FramesDropped:   e.dropped.Load(),
		FramesFailed:    e.failed.Load(),
		InFlight:        e.inFlight.Load(),
		StageLatencyMS:  make(map[string]float64, len(e.stages)),
	}

	for i, s := range e.stages {
		count := e.latency[i].count.Load()
		if count == 0 {
			continue
		}
		total := time.Duration(e.latency[i].totalNS.Load())
		m.StageLatencyMS[s.Name()] = float64(total.Microseconds()) / float64(count) / 1e3
	}

	if e.cfg.Cache != nil {
		m.CacheHitRate = e.cfg.Cache.HitRate()
	}

	e.mu.RLock()
	started := e.startedAt
	e.mu.RUnlock()
	if !started.IsZero() {
		if elapsed := time.Since(started).Seconds(); elapsed > 0 {
			m.FPS = float64(m.FramesProcessed) / elapsed
		}
	}
	return m
}

// StageNames lists the stages in execution order, for metrics readers.
func StageNames() []string {
	out := make([]string, len(plugin.Stages))
	copy(out, plugin.Stages)
	return out
}
