// Package media owns the interaction with the codec toolchain: probing the
// source container, decoding sampled RGB frames, and demuxing the audio
// track. FFmpeg runs as a child process; no frame buffer in this package is
// unbounded.
package media

import (
	"fmt"
	"os/exec"
	"sync"

	"github.com/rs/zerolog/log"
)

// tools caches the resolved ffmpeg/ffprobe binary paths. The lookup is
// lazily initialized on first use and idempotent for the process lifetime;
// there is nothing to tear down before exit.
var (
	toolsOnce   sync.Once
	ffmpegPath  string
	ffprobePath string
	toolsErr    error
)

func lookupTools() (string, string, error) {
	toolsOnce.Do(func() {
		ffmpegPath, toolsErr = exec.LookPath("ffmpeg")
		if toolsErr != nil {
			toolsErr = fmt.Errorf("ffmpeg not found in PATH: %w", toolsErr)
			return
		}
		ffprobePath, toolsErr = exec.LookPath("ffprobe")
		if toolsErr != nil {
			toolsErr = fmt.Errorf("ffprobe not found in PATH: %w", toolsErr)
			return
		}
		log.Debug().Str("ffmpeg", ffmpegPath).Str("ffprobe", ffprobePath).Msg("Codec toolchain found")
	})
	return ffmpegPath, ffprobePath, toolsErr
}

// CheckToolsAvailable verifies that ffmpeg and ffprobe are on PATH. Call it
// at startup to fail fast before accepting work.
func CheckToolsAvailable() error {
	_, _, err := lookupTools()
	return err
}
