// Package detect implements shot-boundary detection over a sampled frame
// stream. The frame-pair metric combines a normalized luminance histogram
// distance with a mean absolute pixel difference; boundaries closer together
// than the configured minimum scene duration are suppressed.
package detect

import (
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-parse/internal/media"
)

// Metric weights for the combined frame-pair difference.
const (
	histogramWeight = 0.6
	pixelWeight     = 0.4
)

// Detector consumes sampled frames in timestamp order and accumulates the
// ordered list of shot-boundary timestamps. It retains only the previous
// frame's luminance plane between iterations.
type Detector struct {
	threshold        float64
	minSceneDuration float64

	prev         []uint8
	lastBoundary float64
	boundaries   []float64
}

// New creates a Detector. threshold is in [0,1]; larger means fewer, more
// conservative cuts, and a threshold of 1 records no boundaries. minSceneDuration suppresses boundaries closer than that
// many seconds to the previous one.
func New(threshold, minSceneDuration float64) *Detector {
	return &Detector{
		threshold:        threshold,
		minSceneDuration: minSceneDuration,
	}
}

// Observe feeds the next sampled frame. It returns true when the frame
// starts a new shot. The stream's first frame never reports a boundary: the
// timestamp 0.0 is an implicit boundary added by the manifest builder.
func (d *Detector) Observe(f *media.Frame) bool {
	luma := f.Luma()
	prev := d.prev
	d.prev = luma

	if prev == nil {
		return false
	}

	diff := Difference(prev, luma)
	if diff < d.threshold || d.threshold >= 1 {
		return false
	}
	if f.Timestamp-d.lastBoundary < d.minSceneDuration {
		log.Debug().
			Float64("timestamp", f.Timestamp).
			Float64("difference", diff).
			Msg("Boundary suppressed by minimum scene duration")
		return false
	}

	d.lastBoundary = f.Timestamp
	d.boundaries = append(d.boundaries, f.Timestamp)
	log.Debug().
		Float64("timestamp", f.Timestamp).
		Float64("difference", diff).
		Msg("Shot boundary detected")
	return true
}

// Boundaries returns the strictly increasing boundary timestamps recorded so
// far. The slice is owned by the detector.
func (d *Detector) Boundaries() []float64 {
	return d.boundaries
}

// Difference returns the combined dissimilarity of two luminance planes in
// [0,1]: 0.6 times the halved L1 histogram distance plus 0.4 times the mean
// absolute pixel difference. Planes of different sizes (a mid-stream
// resolution change) compare as completely different; empty planes compare
// as identical.
func Difference(a, b []uint8) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		return 1.0
	}
	return histogramWeight*histogramDifference(a, b) + pixelWeight*pixelDifference(a, b)
}

// histogramDifference is the L1 distance between the 256-bin normalized
// histograms, halved into [0,1].
func histogramDifference(a, b []uint8) float64 {
	var histA, histB [256]float64
	for _, v := range a {
		histA[v]++
	}
	for _, v := range b {
		histB[v]++
	}

	total := float64(len(a))
	var diff float64
	for i := 0; i < 256; i++ {
		diff += abs(histA[i]/total - histB[i]/total)
	}
	return diff / 2
}

// pixelDifference is the mean absolute luminance delta normalized into [0,1].
func pixelDifference(a, b []uint8) float64 {
	var sum uint64
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return float64(sum) / (float64(len(a)) * 255.0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
