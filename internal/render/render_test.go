package render

import (
	"errors"
	"testing"

	"github.com/ayusman/yavanika/internal/frame"
)

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	if s.Last() != nil {
		t.Fatal("empty sink returned outputs")
	}
	if s.Presented() != 0 {
		t.Fatalf("Presented = %d, want 0", s.Presented())
	}

	first := &frame.Outputs{Seq: 1}
	second := &frame.Outputs{Seq: 2}
	if err := s.Present(first); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if err := s.Present(second); err != nil {
		t.Fatalf("Present() error = %v", err)
	}

	if got := s.Last(); got != second {
		t.Errorf("Last() = %+v, want seq 2", got)
	}
	if s.Presented() != 2 {
		t.Errorf("Presented = %d, want 2", s.Presented())
	}
}

func TestFuncSink(t *testing.T) {
	var seen int64
	sink := FuncSink(func(out *frame.Outputs) error {
		seen = out.Seq
		return nil
	})
	if err := sink.Present(&frame.Outputs{Seq: 7}); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if seen != 7 {
		t.Errorf("sink saw seq %d, want 7", seen)
	}

	boom := errors.New("display gone")
	failing := FuncSink(func(*frame.Outputs) error { return boom })
	if err := failing.Present(&frame.Outputs{}); !errors.Is(err, boom) {
		t.Errorf("Present() error = %v, want %v", err, boom)
	}
}
