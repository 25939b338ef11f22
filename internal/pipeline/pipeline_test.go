package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fpang/video-parse/internal/detect"
	"github.com/fpang/video-parse/internal/manifest"
	"github.com/fpang/video-parse/internal/media"
)

// sliceSource replays a fixed frame sequence.
type sliceSource struct {
	frames []*media.Frame
	pos    int
}

func (s *sliceSource) Next() (*media.Frame, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

// sequence builds uniform frames sampled at 2 fps with the given gray values.
func sequence(grays ...uint8) []*media.Frame {
	frames := make([]*media.Frame, 0, len(grays))
	for i, g := range grays {
		frames = append(frames, grayFrame(float64(i)*0.5, 16, 16, g))
	}
	return frames
}

func TestConsumeFramesFusedPass(t *testing.T) {
	dir := t.TempDir()
	detector := detect.New(0.3, 1.0)
	emitter := newKeyframeEmitter(dir)

	// One hard cut: dark for 2s, bright afterwards.
	src := &sliceSource{frames: sequence(20, 20, 20, 20, 230, 230, 230, 230)}
	sampled, err := consumeFrames(src, detector, emitter)
	if err != nil {
		t.Fatal(err)
	}

	if sampled != 8 {
		t.Errorf("sampled = %d, want 8", sampled)
	}
	bounds := detector.Boundaries()
	if len(bounds) != 1 || bounds[0] != 2.0 {
		t.Fatalf("boundaries = %v, want [2.0]", bounds)
	}
	// One keyframe per shot: the first frame plus the cut's triggering frame.
	if emitter.count() != len(bounds)+1 {
		t.Errorf("keyframes = %d, want %d", emitter.count(), len(bounds)+1)
	}
	for _, name := range []string{"keyframe_0000.jpg", "keyframe_0001.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing keyframe %s: %v", name, err)
		}
	}
}

func TestConsumeFramesStaticVideoSingleShot(t *testing.T) {
	dir := t.TempDir()
	detector := detect.New(0.3, 1.0)
	emitter := newKeyframeEmitter(dir)

	src := &sliceSource{frames: sequence(128, 128, 128, 128, 128)}
	if _, err := consumeFrames(src, detector, emitter); err != nil {
		t.Fatal(err)
	}
	if len(detector.Boundaries()) != 0 {
		t.Errorf("boundaries = %v, want none", detector.Boundaries())
	}
	if emitter.count() != 1 {
		t.Errorf("keyframes = %d, want 1", emitter.count())
	}
}

func TestConsumeFramesSingleFrame(t *testing.T) {
	dir := t.TempDir()
	detector := detect.New(0.3, 1.0)
	emitter := newKeyframeEmitter(dir)

	src := &sliceSource{frames: sequence(77)}
	sampled, err := consumeFrames(src, detector, emitter)
	if err != nil {
		t.Fatal(err)
	}
	if sampled != 1 || emitter.count() != 1 {
		t.Errorf("sampled = %d, keyframes = %d, want 1 and 1", sampled, emitter.count())
	}
}

func TestConsumeFramesKeyframeCountMatchesScenes(t *testing.T) {
	dir := t.TempDir()
	detector := detect.New(0.3, 1.0)
	emitter := newKeyframeEmitter(dir)

	// Three segments: dark, bright, dark.
	src := &sliceSource{frames: sequence(10, 10, 10, 240, 240, 240, 15, 15, 15)}
	if _, err := consumeFrames(src, detector, emitter); err != nil {
		t.Fatal(err)
	}

	scenes := manifest.BuildScenes(detector.Boundaries(), 4.5)
	if len(scenes) != emitter.count() {
		t.Errorf("scenes = %d, keyframes = %d; counts must match", len(scenes), emitter.count())
	}
}

func TestRunRejectsMissingInput(t *testing.T) {
	_, err := Run(context.Background(), Options{
		InputPath: filepath.Join(t.TempDir(), "missing.mp4"),
		OutputDir: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for missing input")
	}
	if !errors.Is(err, media.ErrMediaNotFound) {
		t.Errorf("error = %v, want ErrMediaNotFound", err)
	}
}
