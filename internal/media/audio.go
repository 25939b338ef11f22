package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// audioBaseName is the output filename stem; the extension reflects the
// codec actually written.
const audioBaseName = "audio"

// fallbackAudioBitrate is used when the source codec cannot be stream-copied
// and the track is re-encoded to AAC.
const fallbackAudioBitrate = "192k"

// codecExtensions maps source audio codec names to a container extension
// that accepts the codec under stream copy.
var codecExtensions = map[string]string{
	"aac":       "aac",
	"mp3":       "mp3",
	"mp2":       "mp2",
	"opus":      "opus",
	"vorbis":    "ogg",
	"flac":      "flac",
	"ac3":       "ac3",
	"eac3":      "eac3",
	"alac":      "m4a",
	"pcm_s16le": "wav",
	"pcm_s24le": "wav",
	"pcm_s32le": "wav",
	"pcm_f32le": "wav",
	"pcm_u8":    "wav",
	"pcm_s16be": "aiff",
	"pcm_mulaw": "wav",
	"pcm_alaw":  "wav",
	"amr_nb":    "amr",
	"amr_wb":    "amr",
	"wmav2":     "wma",
	"speex":     "ogg",
}

// AudioResult describes the audio artifact produced for a run.
type AudioResult struct {
	// Filename is the artifact's basename inside the output directory.
	Filename string

	// ReEncoded is true when stream copy failed and the track was
	// re-encoded to AAC.
	ReEncoded bool
}

// audioTimeout sizes the demux child's deadline proportionally to the video
// duration so a malformed stream cannot stall the worker.
func audioTimeout(durationSeconds float64) time.Duration {
	return 60*time.Second + time.Duration(2*durationSeconds*float64(time.Second))
}

// ExtractAudio writes the source's audio track into outputDir.
//
// Stream copy into a codec-matched container is attempted first; if the
// codec has no known container or the copy fails, the track is re-encoded to
// AAC at a default bitrate. A source with no audio stream returns (nil, nil)
// and no file is written.
func ExtractAudio(ctx context.Context, info *Info, outputDir string) (*AudioResult, error) {
	if info.AudioCodec == "" {
		log.Info().Str("path", info.Path).Msg("Source has no audio stream")
		return nil, nil
	}

	ffmpeg, _, err := lookupTools()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, audioTimeout(info.Duration))
	defer cancel()

	ext, copyable := codecExtensions[info.AudioCodec]
	if copyable {
		filename := audioBaseName + "." + ext
		outPath := filepath.Join(outputDir, filename)
		err := runAudioDemux(ctx, ffmpeg, info.Path, outPath, "copy", "")
		if err == nil {
			log.Info().Str("file", filename).Str("codec", info.AudioCodec).Msg("Audio stream copied")
			return &AudioResult{Filename: filename}, nil
		}
		log.Warn().Err(err).Str("codec", info.AudioCodec).Msg("Audio stream copy failed, re-encoding to AAC")
		os.Remove(outPath)
	} else {
		log.Debug().Str("codec", info.AudioCodec).Msg("No stream-copy container for codec, re-encoding to AAC")
	}

	filename := audioBaseName + ".aac"
	outPath := filepath.Join(outputDir, filename)
	if err := runAudioDemux(ctx, ffmpeg, info.Path, outPath, "aac", fallbackAudioBitrate); err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("audio extraction failed for %s: %w", info.Path, err)
	}
	log.Info().Str("file", filename).Msg("Audio re-encoded to AAC")
	return &AudioResult{Filename: filename, ReEncoded: true}, nil
}

// runAudioDemux spawns one ffmpeg demux attempt and inspects its exit status
// and the resulting file. A missing or empty output counts as failure even
// on a zero exit.
func runAudioDemux(ctx context.Context, ffmpeg, inputPath, outputPath, codec, bitrate string) error {
	args := []string{
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-acodec", codec,
	}
	if bitrate != "" {
		args = append(args, "-b:a", bitrate)
	}
	args = append(args, "-y", outputPath)

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg audio demux: %w: %s", err, firstLine(string(output)))
	}

	st, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("audio output missing after demux: %w", err)
	}
	if st.Size() == 0 {
		return fmt.Errorf("audio output empty after demux: %s", filepath.Base(outputPath))
	}
	return nil
}
