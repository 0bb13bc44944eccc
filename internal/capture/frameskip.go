package capture

import (
	"fmt"
	"sync"

	"github.com/ayusman/yavanika/internal/frame"
)

// Frame-skip defaults. The filter runs as a capture-stage post plugin:
// a frame similar enough to its predecessor sets the skip flag, and
// every downstream stage reuses the last good outputs instead of
// recomputing them.
const (
	// DefaultSkipThreshold is the similarity at or above which a frame
	// is skipped.
	DefaultSkipThreshold = 0.95
	// hashSize is the downsample edge for the average-hash metric (8x8).
	hashSize = 8
	// histogramBins is the bin count for the histogram metric.
	histogramBins = 64
)

// Similarity metric names, selectable via the "metric" plugin setting.
const (
	MetricByteDiff    = "byte-diff"
	MetricAverageHash = "average-hash"
	MetricHistogram   = "histogram"
)

// SkipFilter compares successive frames and short-circuits the
// pipeline when they are near-identical. It retains the previous frame
// across invocations; settings (threshold, metric) arrive per
// invocation from the plugin layer.
type SkipFilter struct {
	mu   sync.Mutex
	prev *frame.Frame
}

// NewSkipFilter creates an empty filter; the first frame it sees is
// never skipped.
func NewSkipFilter() *SkipFilter {
	return &SkipFilter{}
}

// Process is the plugin entry point (capture-stage post hook). It
// reads "threshold" and "metric" from the settings snapshot.
func (s *SkipFilter) Process(ctx *frame.Context, settings map[string]any) error {
	threshold := DefaultSkipThreshold
	if v, ok := settings["threshold"].(float64); ok {
		threshold = v
	}
	metric := MetricByteDiff
	if v, ok := settings["metric"].(string); ok {
		metric = v
	}

	current := ctx.Frame()
	if current == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prev != nil {
		sim, err := Similarity(metric, current, s.prev)
		if err != nil {
			return err
		}
		if sim >= threshold {
			// Keep the previous frame as the comparison baseline so a
			// slow drift across many frames is eventually noticed.
			ctx.SetSkip(true)
			return nil
		}
	}
	s.prev = current
	ctx.SetSkip(false)
	return nil
}

// Reset forgets the retained frame.
func (s *SkipFilter) Reset() {
	s.mu.Lock()
	s.prev = nil
	s.mu.Unlock()
}

// Similarity computes a [0,1] similarity between two frames using the
// named metric. Frames with mismatched geometry score 0.
func Similarity(metric string, a, b *frame.Frame) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels {
		return 0, nil
	}
	switch metric {
	case MetricByteDiff:
		return byteSimilarity(a, b), nil
	case MetricAverageHash:
		return hashSimilarity(a, b), nil
	case MetricHistogram:
		return histogramSimilarity(a, b), nil
	default:
		return 0, fmt.Errorf("capture: unknown similarity metric %q", metric)
	}
}

// byteSimilarity is the fraction of bytes that match exactly.
func byteSimilarity(a, b *frame.Frame) float64 {
	if len(a.Pixels) != len(b.Pixels) || len(a.Pixels) == 0 {
		return 0
	}
	same := 0
	for i := range a.Pixels {
		if a.Pixels[i] == b.Pixels[i] {
			same++
		}
	}
	return float64(same) / float64(len(a.Pixels))
}

// hashSimilarity compares 64-bit average hashes: downsample to an 8x8
// grayscale grid, threshold each cell against the grid mean, and score
// by matching bits.
func hashSimilarity(a, b *frame.Frame) float64 {
	ha := averageHash(a)
	hb := averageHash(b)
	diff := ha ^ hb
	matching := 64
	for diff != 0 {
		matching--
		diff &= diff - 1
	}
	return float64(matching) / 64
}

// averageHash reduces a frame to a 64-bit perceptual fingerprint.
func averageHash(f *frame.Frame) uint64 {
	var cells [hashSize * hashSize]uint64
	cellW := f.Width / hashSize
	cellH := f.Height / hashSize
	if cellW == 0 || cellH == 0 {
		return 0
	}

	for cy := 0; cy < hashSize; cy++ {
		for cx := 0; cx < hashSize; cx++ {
			var sum, count uint64
			for y := cy * cellH; y < (cy+1)*cellH; y++ {
				row := y * f.Width * f.Channels
				for x := cx * cellW; x < (cx+1)*cellW; x++ {
					sum += uint64(luma(f, row+x*f.Channels))
					count++
				}
			}
			cells[cy*hashSize+cx] = sum / count
		}
	}

	var mean uint64
	for _, c := range cells {
		mean += c
	}
	mean /= uint64(len(cells))

	var hash uint64
	for i, c := range cells {
		if c >= mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

// histogramSimilarity intersects normalized grayscale histograms.
func histogramSimilarity(a, b *frame.Frame) float64 {
	ha := histogram(a)
	hb := histogram(b)

	total := a.Width * a.Height
	if total == 0 {
		return 0
	}
	var overlap float64
	for i := range ha {
		overlap += float64(min(ha[i], hb[i]))
	}
	return overlap / float64(total)
}

// histogram counts pixels per luma bin.
func histogram(f *frame.Frame) [histogramBins]int {
	var bins [histogramBins]int
	step := 256 / histogramBins
	for y := 0; y < f.Height; y++ {
		row := y * f.Width * f.Channels
		for x := 0; x < f.Width; x++ {
			bins[int(luma(f, row+x*f.Channels))/step]++
		}
	}
	return bins
}

// luma approximates pixel brightness at byte offset i.
func luma(f *frame.Frame, i int) byte {
	if f.Channels < 3 {
		return f.Pixels[i]
	}
	// BGR order; integer weights summing to 256.
	b := int(f.Pixels[i])
	g := int(f.Pixels[i+1])
	r := int(f.Pixels[i+2])
	return byte((29*b + 150*g + 77*r) >> 8)
}
