// Package position places translated text boxes on the output frame.
// The documented collision-avoidance layout is a stage-local concern
// supplied by the embedding application or a plugin; the built-in
// positioner only clamps boxes into the frame bounds.
package position

import (
	"github.com/ayusman/yavanika/internal/frame"
)

// Positioner adjusts translation boxes for rendering.
type Positioner interface {
	Position(translations []frame.Translation, width, height int) []frame.Translation
}

// Clamp is the built-in positioner: boxes are shifted to stay inside
// the frame, nothing else.
type Clamp struct{}

// NewClamp creates the built-in positioner.
func NewClamp() *Clamp {
	return &Clamp{}
}

// Position clamps every box into [0,width) x [0,height).
func (c *Clamp) Position(translations []frame.Translation, width, height int) []frame.Translation {
	out := make([]frame.Translation, len(translations))
	for i, tr := range translations {
		r := tr.Region
		if r.Width > width {
			r.Width = width
		}
		if r.Height > height {
			r.Height = height
		}
		if r.X < 0 {
			r.X = 0
		}
		if r.Y < 0 {
			r.Y = 0
		}
		if r.X+r.Width > width {
			r.X = width - r.Width
		}
		if r.Y+r.Height > height {
			r.Y = height - r.Height
		}
		tr.Region = r
		out[i] = tr
	}
	return out
}
