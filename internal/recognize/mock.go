package recognize

import (
	"fmt"
	"sync"

	"github.com/ayusman/yavanika/internal/frame"
)

// MockRecognizer returns configurable regions without running a model.
// With no regions configured it derives one deterministic region per
// frame so pipelines have something to translate.
type MockRecognizer struct {
	mu      sync.Mutex
	regions []frame.Region
	err     error
	calls   int
}

// NewMockRecognizer creates a mock with the default derived output.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{}
}

// SetRegions fixes the regions returned for every frame.
func (m *MockRecognizer) SetRegions(regions []frame.Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions = regions
}

// SetError forces Recognize to fail.
func (m *MockRecognizer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Recognize ran.
func (m *MockRecognizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Recognize returns the configured regions, or one derived region
// naming the frame sequence.
func (m *MockRecognizer) Recognize(f *frame.Frame) ([]frame.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.regions != nil {
		out := make([]frame.Region, len(m.regions))
		copy(out, m.regions)
		return out, nil
	}
	return []frame.Region{{
		X: 10, Y: 10, Width: 100, Height: 20,
		Text:       fmt.Sprintf("frame %d", f.Seq),
		Confidence: 0.99,
	}}, nil
}

// Close is a no-op.
func (m *MockRecognizer) Close() error { return nil }
