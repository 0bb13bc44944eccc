// Package frame defines the per-frame data types that flow through the
// Yavanika translation pipeline: the captured frame itself, the text
// regions produced by recognition, the translations attached to them,
// and the context object that carries everything stage to stage.
package frame

import "time"

// Frame is a captured image buffer with its pipeline metadata.
// A Frame is owned by exactly one pipeline context and is never
// mutated after capture.
type Frame struct {
	// Seq is a monotonically increasing sequence number assigned at capture.
	Seq int64
	// CapturedAt is the capture timestamp.
	CapturedAt time.Time
	// Width and Height are the frame dimensions in pixels.
	Width  int
	Height int
	// Channels is the number of color channels (3 for BGR, 4 for BGRA).
	Channels int
	// Pixels holds the raw image bytes, row-major, Width*Height*Channels long.
	Pixels []byte
}

// Region is a rectangle of recognized text within a frame.
type Region struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Translation pairs a recognized region with its translated text.
type Translation struct {
	Region     Region  `json:"region"`
	Text       string  `json:"text"`
	SourceLang string  `json:"sourceLang"`
	TargetLang string  `json:"targetLang"`
	Confidence float64 `json:"confidence"`
}

// Outputs is the result of driving one frame through the pipeline.
// It is what the render stage hands to the embedding application.
type Outputs struct {
	Seq          int64         `json:"seq"`
	CapturedAt   time.Time     `json:"capturedAt"`
	Skipped      bool          `json:"skipped"`
	Failed       bool          `json:"failed"`
	Error        string        `json:"error,omitempty"`
	Regions      []Region      `json:"regions"`
	Translations []Translation `json:"translations"`
	Elapsed      time.Duration `json:"elapsed"`
}
