// Package capture provides frame sources for the Yavanika pipeline and
// the frame-skip filter that short-circuits work on near-identical
// consecutive frames. The real sources capture via GoCV (OpenCV); the
// mock source generates synthetic frames so everything downstream runs
// without a camera or display grab.
package capture

import (
	"errors"

	"github.com/ayusman/yavanika/internal/frame"
)

// Default capture settings.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrSourceNotOpen is returned when reading from a source that is not open.
var ErrSourceNotOpen = errors.New("capture source is not open")

// Source produces frames for the pipeline. Read assigns the sequence
// number and capture timestamp; the returned frame is owned by the
// caller and never reused by the source.
type Source interface {
	Open() error
	Close() error
	Read() (*frame.Frame, error)
}
