// Package pipeline orchestrates one video analysis run: decoded-frame
// acquisition, shot-boundary detection fused with keyframe emission, audio
// demux on a parallel worker, and manifest assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/video-parse/internal/config"
	"github.com/fpang/video-parse/internal/detect"
	"github.com/fpang/video-parse/internal/manifest"
	"github.com/fpang/video-parse/internal/media"
	"github.com/fpang/video-parse/internal/webhook"
)

// Options bundles the inputs of one run. Params is resolved by the caller
// once per invocation; the pipeline never reads environment or config files
// while processing.
type Options struct {
	InputPath string
	OutputDir string
	Params    config.Params

	// WebhookSecret signs the optional completion notification.
	WebhookSecret string
}

// Result summarizes a completed run.
type Result struct {
	OutputDir     string
	Manifest      *manifest.Manifest
	SampledFrames int
	KeyframeFiles []string
	AudioFile     string
	Elapsed       time.Duration
}

// Run executes the full pipeline. Fatal errors unwind with a single error
// naming the failing stage; the manifest is written last, only after every
// referenced artifact is committed to disk.
func Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	log.Info().
		Str("input", opts.InputPath).
		Str("output", opts.OutputDir).
		Float64("threshold", opts.Params.Threshold).
		Float64("min_scene_duration", opts.Params.MinSceneDuration).
		Float64("sample_rate", opts.Params.SampleRate).
		Msg("Starting video analysis")

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	if err := removeStaleArtifacts(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}

	info, err := media.Probe(ctx, opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// The audio demuxer has no data dependency on the detector; it runs on
	// its own worker while the visual pass streams frames.
	g, gctx := errgroup.WithContext(ctx)
	var audio *media.AudioResult
	g.Go(func() error {
		res, audioErr := media.ExtractAudio(gctx, info, opts.OutputDir)
		if audioErr != nil {
			if opts.Params.StrictAudio {
				return fmt.Errorf("audio: %w", audioErr)
			}
			log.Warn().Err(audioErr).Msg("Audio extraction failed — continuing without audio artifact")
			return nil
		}
		audio = res
		return nil
	})

	detector := detect.New(opts.Params.Threshold, opts.Params.MinSceneDuration)
	emitter := newKeyframeEmitter(opts.OutputDir)

	sampled, err := runVisualPass(gctx, info, opts.Params.SampleRate, detector, emitter)
	if err != nil {
		// Make sure the audio worker is not left behind on a failed run.
		_ = g.Wait()
		return nil, err
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	audioFile := ""
	if audio != nil {
		audioFile = audio.Filename
	}

	m := manifest.New(info, detector.Boundaries(), audioFile)
	if m.SceneCount != emitter.count() {
		return nil, fmt.Errorf("manifest: emitted %d keyframes for %d scenes", emitter.count(), m.SceneCount)
	}
	if err := m.Write(opts.OutputDir); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	result := &Result{
		OutputDir:     opts.OutputDir,
		Manifest:      m,
		SampledFrames: sampled,
		KeyframeFiles: emitter.files,
		AudioFile:     audioFile,
		Elapsed:       time.Since(start),
	}

	log.Info().
		Int("scene_count", m.SceneCount).
		Int("sampled_frames", sampled).
		Str("audio_file", audioFile).
		Dur("elapsed", result.Elapsed).
		Msg("Video analysis complete")

	notify(ctx, opts, result)

	return result, nil
}

// removeStaleArtifacts clears a previous run's outputs from the directory.
// A shorter re-run must not leave extra keyframes behind: every keyframe on
// disk has to belong to the manifest about to be written.
func removeStaleArtifacts(dir string) error {
	for _, pattern := range []string{"keyframe_*.jpg", "audio.*", manifest.Filename} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		for _, path := range matches {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove stale %s: %w", filepath.Base(path), err)
			}
		}
	}
	return nil
}

// frameSource abstracts the decoder for the fused visual pass.
type frameSource interface {
	Next() (*media.Frame, error)
	Close() error
}

// runVisualPass opens the decoder and streams sampled frames through the
// detector and emitter as one fused pass.
func runVisualPass(ctx context.Context, info *media.Info, sampleRate float64, detector *detect.Detector, emitter *keyframeEmitter) (int, error) {
	frames, err := media.OpenFrames(ctx, info, sampleRate)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	defer frames.Close()

	sampled, err := consumeFrames(frames, detector, emitter)
	if err != nil {
		return sampled, err
	}
	if sampled == 0 {
		return 0, fmt.Errorf("decode: %w: no frames decoded from %s", media.ErrUnsupportedMedia, info.Path)
	}
	return sampled, nil
}

// consumeFrames drives the detector and emitter over the frame stream. The
// first sampled frame opens shot 0; each detected boundary's triggering
// frame (the first frame at or after the cut) is the next shot's keyframe.
func consumeFrames(frames frameSource, detector *detect.Detector, emitter *keyframeEmitter) (int, error) {
	sampled := 0
	for {
		f, err := frames.Next()
		if errors.Is(err, io.EOF) {
			return sampled, nil
		}
		if err != nil {
			return sampled, fmt.Errorf("decode: %w", err)
		}
		sampled++

		boundary := detector.Observe(f)
		if sampled == 1 || boundary {
			if err := emitter.emit(f); err != nil {
				return sampled, fmt.Errorf("keyframe: %w", err)
			}
		}
	}
}

// notify posts the completion webhook when one is configured. Failures are
// reported but never affect the run's outcome.
func notify(ctx context.Context, opts Options, result *Result) {
	if opts.Params.WebhookURL == "" {
		return
	}

	n := webhook.NewNotifier(opts.Params.WebhookURL, opts.WebhookSecret)
	payload := webhook.Payload{
		Status:        "success",
		InputVideo:    opts.InputPath,
		OutputDir:     opts.OutputDir,
		SceneCount:    result.Manifest.SceneCount,
		KeyframeCount: len(result.KeyframeFiles),
		AudioFile:     result.AudioFile,
		Metadata:      result.Manifest,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := n.Notify(ctx, payload); err != nil {
		log.Warn().Err(err).Str("url", opts.Params.WebhookURL).Msg("Webhook notification failed")
	}
}
