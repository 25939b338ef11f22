package detect

import (
	"math"
	"testing"

	"github.com/fpang/video-parse/internal/media"
)

// uniformFrame builds a frame whose every pixel has the same gray value.
func uniformFrame(ts float64, w, h int, gray uint8) *media.Frame {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = gray
	}
	return &media.Frame{Timestamp: ts, Width: w, Height: h, Pix: pix}
}

func TestDifferenceIdenticalFrames(t *testing.T) {
	a := uniformFrame(0, 16, 16, 128).Luma()
	b := uniformFrame(0, 16, 16, 128).Luma()
	if d := Difference(a, b); d != 0 {
		t.Errorf("Difference(identical) = %v, want 0", d)
	}
}

func TestDifferenceDisjointHistograms(t *testing.T) {
	// Every pixel moves from 0 to 255: histogram distance 1.0, pixel
	// difference 1.0, combined 0.6*1 + 0.4*1 = 1.0.
	a := uniformFrame(0, 16, 16, 0).Luma()
	b := uniformFrame(0, 16, 16, 255).Luma()
	if d := Difference(a, b); math.Abs(d-1.0) > 1e-9 {
		t.Errorf("Difference(black, white) = %v, want 1.0", d)
	}
}

func TestDifferenceKnownValue(t *testing.T) {
	// 100 → 200 on every pixel: disjoint histograms (hist term 1.0) and a
	// mean pixel delta of 100/255.
	a := uniformFrame(0, 10, 10, 100).Luma()
	b := uniformFrame(0, 10, 10, 200).Luma()
	want := 0.6*1.0 + 0.4*(100.0/255.0)
	if d := Difference(a, b); math.Abs(d-want) > 1e-9 {
		t.Errorf("Difference = %v, want %v", d, want)
	}
}

func TestDifferenceDegenerateInputs(t *testing.T) {
	if d := Difference(nil, nil); d != 0 {
		t.Errorf("Difference(nil, nil) = %v, want 0", d)
	}
	if d := Difference([]uint8{1, 2}, []uint8{1, 2, 3}); d != 1.0 {
		t.Errorf("Difference(mismatched sizes) = %v, want 1.0", d)
	}
}

func TestDifferenceSymmetric(t *testing.T) {
	a := uniformFrame(0, 8, 8, 40).Luma()
	b := uniformFrame(0, 8, 8, 90).Luma()
	if d1, d2 := Difference(a, b), Difference(b, a); math.Abs(d1-d2) > 1e-12 {
		t.Errorf("Difference not symmetric: %v vs %v", d1, d2)
	}
}

// runDetector feeds a sequence of uniform frames and returns the boundaries.
// Each entry is (timestamp, gray value).
func runDetector(threshold, minScene float64, seq [][2]float64) []float64 {
	d := New(threshold, minScene)
	for _, fr := range seq {
		d.Observe(uniformFrame(fr[0], 16, 16, uint8(fr[1])))
	}
	return d.Boundaries()
}

func TestDetectorSingleHardCut(t *testing.T) {
	// 2 samples/s, a hard cut at t=8.0.
	var seq [][2]float64
	for ts := 0.0; ts < 20.0; ts += 0.5 {
		gray := 30.0
		if ts >= 8.0 {
			gray = 220.0
		}
		seq = append(seq, [2]float64{ts, gray})
	}

	got := runDetector(0.3, 1.0, seq)
	if len(got) != 1 {
		t.Fatalf("boundaries = %v, want exactly one", got)
	}
	if math.Abs(got[0]-8.0) > 0.5 {
		t.Errorf("boundary at %v, want 8.0 ± 0.5", got[0])
	}
}

func TestDetectorStaticVideoNoBoundaries(t *testing.T) {
	var seq [][2]float64
	for ts := 0.0; ts < 10.0; ts += 0.5 {
		seq = append(seq, [2]float64{ts, 128})
	}
	if got := runDetector(0.3, 1.0, seq); len(got) != 0 {
		t.Errorf("static video boundaries = %v, want none", got)
	}
}

func TestDetectorMinSceneDurationSuppression(t *testing.T) {
	// The cut at t=8 is suppressed when min_scene_duration exceeds the
	// distance from the last boundary (implicitly 0).
	var seq [][2]float64
	for ts := 0.0; ts < 20.0; ts += 0.5 {
		gray := 30.0
		if ts >= 8.0 {
			gray = 220.0
		}
		seq = append(seq, [2]float64{ts, gray})
	}
	if got := runDetector(0.3, 10.0, seq); len(got) != 0 {
		t.Errorf("boundaries = %v, want cut suppressed (8s < 10s floor)", got)
	}
}

func TestDetectorStrobeFiltering(t *testing.T) {
	// 5 samples/s over 5 seconds, alternating dark/bright every sample.
	// Every pair exceeds the threshold but the duration floor admits at
	// most one boundary per second.
	var seq [][2]float64
	for i := 0; i < 25; i++ {
		gray := 20.0
		if i%2 == 1 {
			gray = 240.0
		}
		seq = append(seq, [2]float64{float64(i) * 0.2, gray})
	}
	got := runDetector(0.25, 1.0, seq)
	if len(got) > 5 {
		t.Errorf("strobe produced %d boundaries, want ≤ 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i]-got[i-1] < 1.0 {
			t.Errorf("boundaries %v and %v closer than the duration floor", got[i-1], got[i])
		}
	}
}

func TestDetectorOnlyFirstOfCloseCutsRecorded(t *testing.T) {
	seq := [][2]float64{
		{0.0, 10},
		{0.5, 10},
		{1.0, 200}, // first cut
		{1.5, 10},  // second flip inside the window
		{2.0, 10},
	}
	got := runDetector(0.3, 1.0, seq)
	if len(got) != 1 || got[0] != 1.0 {
		t.Errorf("boundaries = %v, want [1.0]", got)
	}
}

func TestDetectorThresholdZeroEveryPairWithinFloor(t *testing.T) {
	// threshold=0: every sampled pair is a boundary candidate, limited
	// only by min_scene_duration.
	var seq [][2]float64
	for ts := 0.0; ts <= 4.0; ts += 0.5 {
		seq = append(seq, [2]float64{ts, 128})
	}
	got := runDetector(0, 1.0, seq)
	want := []float64{1.0, 2.0, 3.0, 4.0}
	if len(got) != len(want) {
		t.Fatalf("boundaries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("boundary[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDetectorThresholdOneNeverCuts(t *testing.T) {
	// threshold=1 records no boundary, even for the maximal black-to-white
	// difference of exactly 1.0 at t=2.5.
	seq := [][2]float64{{0, 0}, {0.5, 100}, {1.0, 0}, {1.5, 100}, {2.0, 0}, {2.5, 255}}
	if got := runDetector(1.0, 0, seq); len(got) != 0 {
		t.Errorf("threshold=1 boundaries = %v, want none", got)
	}
}

func TestDetectorThresholdMonotonicity(t *testing.T) {
	// Higher threshold must yield a subsequence of the lower threshold's
	// boundaries.
	var seq [][2]float64
	grays := []float64{10, 10, 60, 60, 200, 200, 90, 90, 250, 250, 30, 30}
	for i, g := range grays {
		seq = append(seq, [2]float64{float64(i) * 0.5, g})
	}

	low := runDetector(0.1, 0, seq)
	high := runDetector(0.8, 0, seq)

	if len(high) > len(low) {
		t.Fatalf("higher threshold found more boundaries: %v vs %v", high, low)
	}
	// Subsequence check.
	j := 0
	for _, b := range high {
		for j < len(low) && low[j] != b {
			j++
		}
		if j == len(low) {
			t.Fatalf("boundary %v from high threshold missing in low-threshold result %v", b, low)
		}
		j++
	}
}

func TestDetectorMinDurationMonotonicity(t *testing.T) {
	var seq [][2]float64
	grays := []float64{10, 200, 10, 200, 10, 200, 10, 200}
	for i, g := range grays {
		seq = append(seq, [2]float64{float64(i) * 0.5, g})
	}

	counts := make([]int, 0, 3)
	for _, minScene := range []float64{0, 1.0, 2.5} {
		counts = append(counts, len(runDetector(0.3, minScene, seq)))
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[i-1] {
			t.Errorf("scene count grew when min_scene_duration increased: %v", counts)
		}
	}
}

func TestDetectorBoundariesStrictlyIncreasing(t *testing.T) {
	var seq [][2]float64
	for i := 0; i < 40; i++ {
		gray := 10.0
		if (i/4)%2 == 1 {
			gray = 230.0
		}
		seq = append(seq, [2]float64{float64(i) * 0.25, gray})
	}
	got := runDetector(0.2, 0.5, seq)
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("boundaries not strictly increasing: %v", got)
		}
	}
}
