package pipeline

import (
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-parse/internal/manifest"
	"github.com/fpang/video-parse/internal/media"
)

// keyframeJPEGQuality is fixed so keyframes are byte-identical run to run.
const keyframeJPEGQuality = 90

// keyframeEmitter writes one representative JPEG still per shot, in shot
// index order. It is fed from the same sampled stream as the detector: the
// representative frame for a shot is the first sampled frame at or after its
// start boundary, so the detector's triggering frame is written directly and
// no second decode pass is needed.
type keyframeEmitter struct {
	outputDir string
	files     []string
}

func newKeyframeEmitter(outputDir string) *keyframeEmitter {
	return &keyframeEmitter{outputDir: outputDir}
}

// emit writes f as the next shot's keyframe. Any write error is fatal to the
// run: the manifest invariant requires every referenced keyframe on disk.
func (e *keyframeEmitter) emit(f *media.Frame) error {
	name := fmt.Sprintf(manifest.KeyframePattern, len(e.files))
	path := filepath.Join(e.outputDir, name)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create keyframe %s: %w", name, err)
	}

	if err := jpeg.Encode(out, f.Image(), &jpeg.Options{Quality: keyframeJPEGQuality}); err != nil {
		out.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode keyframe %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write keyframe %s: %w", name, err)
	}

	e.files = append(e.files, name)
	log.Debug().
		Str("file", name).
		Float64("timestamp", f.Timestamp).
		Msg("Keyframe written")
	return nil
}

func (e *keyframeEmitter) count() int {
	return len(e.files)
}
