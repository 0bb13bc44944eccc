// Package render is the pipeline's output boundary. The render stage
// assembles the frame's outputs and hands them to a Sink; the actual
// overlay surface (window compositor, subtitle burner, stream muxer)
// implements Sink outside the pipeline.
package render

import (
	"sync"

	"github.com/ayusman/yavanika/internal/frame"
)

// Sink receives the finished outputs of each frame.
type Sink interface {
	Present(out *frame.Outputs) error
}

// MemorySink retains the most recent outputs. It is the default sink
// for headless runs and tests; the HTTP layer reads it for the
// outputs stream.
type MemorySink struct {
	mu   sync.RWMutex
	last *frame.Outputs
	seen int64
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Present stores out as the latest result.
func (m *MemorySink) Present(out *frame.Outputs) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = out
	m.seen++
	return nil
}

// Last returns the most recent outputs, or nil.
func (m *MemorySink) Last() *frame.Outputs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Presented reports how many outputs have been delivered.
func (m *MemorySink) Presented() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen
}

// FuncSink adapts a function to the Sink interface.
type FuncSink func(out *frame.Outputs) error

// Present calls the function.
func (f FuncSink) Present(out *frame.Outputs) error { return f(out) }
