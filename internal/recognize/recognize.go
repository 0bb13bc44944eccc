// Package recognize defines the text recognition boundary of the
// pipeline. The actual OCR model lives behind the Recognizer interface:
// in production a child-process worker, in tests and headless runs the
// mock. Model quality and accuracy are the implementation's concern,
// not the pipeline's.
package recognize

import (
	"github.com/ayusman/yavanika/internal/frame"
)

// Recognizer extracts text regions from a frame.
type Recognizer interface {
	Recognize(f *frame.Frame) ([]frame.Region, error)
	Close() error
}
