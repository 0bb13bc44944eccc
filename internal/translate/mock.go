package translate

import (
	"strings"
	"sync"
)

// MockTranslator is a deterministic stand-in for the real engine. It
// uppercases the input and brackets it with the language pair, so
// tests can assert exact output without a model.
type MockTranslator struct {
	mu         sync.Mutex
	confidence float64
	err        error
	calls      int
}

// NewMockTranslator creates a mock reporting the given confidence.
func NewMockTranslator(confidence float64) *MockTranslator {
	return &MockTranslator{confidence: confidence}
}

// SetError forces Translate to fail.
func (m *MockTranslator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Translate ran.
func (m *MockTranslator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Translate returns a deterministic pseudo-translation.
func (m *MockTranslator) Translate(text, sourceLang, targetLang string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return Result{}, m.err
	}
	return Result{
		Text:       "[" + sourceLang + ">" + targetLang + "] " + strings.ToUpper(text),
		Confidence: m.confidence,
	}, nil
}

// Close is a no-op.
func (m *MockTranslator) Close() error { return nil }
