package position

import (
	"testing"

	"github.com/ayusman/yavanika/internal/frame"
)

func TestClamp_Position(t *testing.T) {
	c := NewClamp()

	in := []frame.Translation{
		{Region: frame.Region{X: -5, Y: 10, Width: 50, Height: 20}, Text: "left edge"},
		{Region: frame.Region{X: 620, Y: 470, Width: 50, Height: 20}, Text: "bottom right"},
		{Region: frame.Region{X: 100, Y: 100, Width: 50, Height: 20}, Text: "inside"},
	}

	out := c.Position(in, 640, 480)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}

	if out[0].Region.X != 0 {
		t.Errorf("left-edge X = %d, want 0", out[0].Region.X)
	}
	if out[1].Region.X != 590 || out[1].Region.Y != 460 {
		t.Errorf("bottom-right region = %+v, want X=590 Y=460", out[1].Region)
	}
	if out[2].Region != in[2].Region {
		t.Errorf("interior region changed: %+v", out[2].Region)
	}

	// Input is not mutated.
	if in[0].Region.X != -5 {
		t.Error("Position mutated its input")
	}
}

func TestClamp_OversizedBox(t *testing.T) {
	c := NewClamp()
	out := c.Position([]frame.Translation{
		{Region: frame.Region{X: 10, Y: 10, Width: 1000, Height: 900}},
	}, 640, 480)

	r := out[0].Region
	if r.Width != 640 || r.Height != 480 || r.X != 0 || r.Y != 0 {
		t.Errorf("oversized box clamped to %+v, want full frame", r)
	}
}

func TestClamp_Empty(t *testing.T) {
	c := NewClamp()
	if out := c.Position(nil, 640, 480); len(out) != 0 {
		t.Errorf("Position(nil) = %v, want empty", out)
	}
}
