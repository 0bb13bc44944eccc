package capture

import (
	"sync"
	"time"

	"github.com/ayusman/yavanika/internal/frame"
)

// MockSource generates synthetic frames for testing and for running
// the pipeline without capture hardware. By default every frame is a
// solid fill whose color advances with the sequence number; calling
// Repeat freezes the fill so consecutive frames are byte-identical,
// which exercises the frame-skip path.
type MockSource struct {
	mu     sync.Mutex
	open   bool
	seq    int64
	width  int
	height int
	repeat bool
	fill   byte
}

// NewMockSource creates a mock source. Non-positive dimensions select
// the defaults.
func NewMockSource(width, height int) *MockSource {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &MockSource{width: width, height: height}
}

// Open marks the source ready.
func (m *MockSource) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
	return nil
}

// Close marks the source closed.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

// Repeat controls whether subsequent frames repeat the current fill.
func (m *MockSource) Repeat(repeat bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repeat = repeat
}

// Read returns the next synthetic frame.
func (m *MockSource) Read() (*frame.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.open {
		return nil, ErrSourceNotOpen
	}

	m.seq++
	if !m.repeat {
		m.fill = byte(m.seq)
	}

	pixels := make([]byte, m.width*m.height*3)
	for i := range pixels {
		pixels[i] = m.fill
	}
	return &frame.Frame{
		Seq:        m.seq,
		CapturedAt: time.Now(),
		Width:      m.width,
		Height:     m.height,
		Channels:   3,
		Pixels:     pixels,
	}, nil
}
