package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog/log"
)

// sampler implements the time-based emission policy: a frame is admitted
// when its timestamp has reached next_emit_time, which then advances by the
// sampling interval. Time-based rather than modulo-based so variable-rate
// sources behave correctly.
type sampler struct {
	interval float64
	next     float64
}

func newSampler(sampleRate float64) sampler {
	return sampler{interval: 1.0 / sampleRate}
}

func (s *sampler) admit(ts float64) bool {
	const eps = 1e-9
	if ts+eps < s.next {
		return false
	}
	for s.next <= ts+eps {
		s.next += s.interval
	}
	return true
}

// FrameReader is a lazy, finite, single-pass sequence of sampled frames
// decoded from the source. It runs ffmpeg as a child process writing raw
// RGB24 pictures to a pipe and applies the sampling policy as they arrive.
//
// The rawvideo pipe carries no presentation timestamps, so each decoded
// picture is assigned frame_index / native_fps.
type FrameReader struct {
	info   *Info
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer

	frameSize  int
	frameIndex int
	emitted    int
	s          sampler
	discard    []byte
	done       bool
}

// OpenFrames starts the decoder and returns a FrameReader delivering frames
// at the given cadence. sampleRate must be positive; rates at or above the
// native frame rate deliver every decoded frame. The caller must Close the
// reader.
func OpenFrames(ctx context.Context, info *Info, sampleRate float64) (*FrameReader, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %v", ErrDecoderInit, sampleRate)
	}

	ffmpeg, _, err := lookupTools()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderInit, err)
	}

	cmd := exec.CommandContext(ctx, ffmpeg,
		"-nostdin",
		"-loglevel", "error",
		"-i", info.Path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	r := &FrameReader{
		info:      info,
		cmd:       cmd,
		frameSize: info.Width * info.Height * 3,
		s:         newSampler(sampleRate),
	}
	cmd.Stderr = &r.stderr

	r.stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrDecoderInit, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderInit, err)
	}

	log.Debug().
		Str("path", info.Path).
		Float64("sample_rate", sampleRate).
		Int("frame_bytes", r.frameSize).
		Msg("Decoder started")

	return r, nil
}

// Next returns the next sampled frame. It returns io.EOF on clean end of
// stream. Individual short reads at the tail are dropped; a decoder process
// that exits with an error before producing any frame is reported as a
// decoder failure.
func (r *FrameReader) Next() (*Frame, error) {
	if r.done {
		return nil, io.EOF
	}

	for {
		ts := float64(r.frameIndex) / r.info.FPS

		if !r.s.admit(ts) {
			// Skipped frame: drain its bytes into a reusable buffer.
			if r.discard == nil {
				r.discard = make([]byte, r.frameSize)
			}
			if err := r.readFrame(r.discard); err != nil {
				return nil, err
			}
			r.frameIndex++
			continue
		}

		pix := make([]byte, r.frameSize)
		if err := r.readFrame(pix); err != nil {
			return nil, err
		}
		r.frameIndex++
		r.emitted++
		return &Frame{
			Timestamp: ts,
			Width:     r.info.Width,
			Height:    r.info.Height,
			Pix:       pix,
		}, nil
	}
}

// readFrame fills buf with exactly one frame's bytes or finishes the stream.
func (r *FrameReader) readFrame(buf []byte) error {
	n, err := io.ReadFull(r.stdout, buf)
	if err == nil {
		return nil
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		log.Warn().Int("bytes", n).Msg("Dropping truncated frame at end of stream")
	} else if !errors.Is(err, io.EOF) {
		r.done = true
		return fmt.Errorf("decoder read: %w", err)
	}
	return r.finish()
}

// finish waits for the decoder process and translates its exit status into a
// clean EOF or a hard failure. A process that produced frames but grumbled on
// trailing packets is treated as clean; one that never produced a frame is a
// decode-context failure.
func (r *FrameReader) finish() error {
	r.done = true
	err := r.cmd.Wait()
	stderr := r.stderr.String()

	if err != nil {
		if r.emitted == 0 && r.frameIndex == 0 {
			return fmt.Errorf("%w: %v: %s", ErrDecoderInit, err, firstLine(stderr))
		}
		log.Warn().
			Str("path", r.info.Path).
			Str("detail", firstLine(stderr)).
			Msg("Decoder exited with errors after delivering frames")
	} else if stderr != "" {
		log.Debug().Str("detail", firstLine(stderr)).Msg("Decoder reported recoverable packet errors")
	}

	log.Info().
		Int("decoded_frames", r.frameIndex).
		Int("sampled_frames", r.emitted).
		Msg("Frame decoding complete")
	return io.EOF
}

// Close terminates the decoder process if it is still running.
func (r *FrameReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
