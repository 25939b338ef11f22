package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Info describes an opened video source. Immutable per run: produced once at
// stream-open time, consumed by sampling decisions and the manifest builder.
type Info struct {
	// Path is the source path exactly as provided by the caller.
	Path string

	// Duration is the container duration in seconds.
	Duration float64

	// FPS is the average frame rate of the primary video stream.
	FPS float64

	// Width and Height are the source resolution in pixels.
	Width  int
	Height int

	// AudioCodec is the codec name of the first audio stream, or empty when
	// the source has no audio track.
	AudioCodec string
}

// Resolution returns the "WIDTHxHEIGHT" form used in the manifest.
func (i *Info) Resolution() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// ffprobeOutput represents the JSON structure from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	Duration     string `json:"duration"`
}

// Probe opens the source container with ffprobe and returns its Info.
//
// Failure classes: a missing or unreadable path wraps ErrMediaNotFound, an
// unopenable container wraps ErrUnsupportedMedia, a container without a
// video stream wraps ErrNoVideoStream.
func Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMediaNotFound, path, err)
	}

	_, ffprobe, err := lookupTools()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: ffprobe failed: %v", ErrUnsupportedMedia, path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("%w: %s: cannot parse ffprobe output: %v", ErrUnsupportedMedia, path, err)
	}

	info := &Info{Path: path}

	if probe.Format.Duration != "" {
		if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = dur
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
			}
			if info.FPS == 0 {
				info.FPS = parseFrameRate(stream.AvgFrameRate)
				if info.FPS == 0 {
					info.FPS = parseFrameRate(stream.RFrameRate)
				}
			}
			// Some containers only carry duration at the stream level.
			if info.Duration == 0 && stream.Duration != "" {
				if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = dur
				}
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		}
	}

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	if info.Duration <= 0 {
		return nil, fmt.Errorf("%w: %s: zero-length video", ErrUnsupportedMedia, path)
	}
	if info.FPS <= 0 {
		info.FPS = 30.0
	}

	log.Info().
		Str("path", path).
		Float64("duration_s", info.Duration).
		Float64("fps", info.FPS).
		Int("width", info.Width).
		Int("height", info.Height).
		Str("audio_codec", info.AudioCodec).
		Msg("Video source opened")

	return info, nil
}

// parseFrameRate parses frame rate from ffprobe format (e.g. "60/1" -> 60.0).
func parseFrameRate(value string) float64 {
	parts := strings.Split(value, "/")
	if len(parts) == 2 {
		num, _ := strconv.ParseFloat(parts[0], 64)
		den, _ := strconv.ParseFloat(parts[1], 64)
		if den != 0 {
			return num / den
		}
		return 0
	}
	rate, _ := strconv.ParseFloat(value, 64)
	return rate
}
