// Package manifest assembles and serializes the metadata document describing
// one completed run: the video info, the ordered shot list, and the audio
// artifact reference.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-parse/internal/media"
)

// Filename is the manifest's basename inside the output directory.
const Filename = "metadata.json"

// KeyframePattern formats a shot index into its keyframe basename.
const KeyframePattern = "keyframe_%04d.jpg"

// Scene is one detected shot. Spans are half-open [StartTime, EndTime) and
// together partition [0, total_duration] without gaps or overlap.
type Scene struct {
	SceneID      int     `json:"scene_id"`
	KeyframeFile string  `json:"keyframe_file"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Duration     float64 `json:"duration"`
}

// Manifest is the single document describing a completed run. Field names
// are part of the output contract.
type Manifest struct {
	InputVideo    string  `json:"input_video"`
	TotalDuration float64 `json:"total_duration"`
	FPS           float64 `json:"fps"`
	Resolution    string  `json:"resolution"`
	SceneCount    int     `json:"scene_count"`
	AudioFile     *string `json:"audio_file"`
	Scenes        []Scene `json:"scenes"`
}

// BuildScenes converts detected boundary timestamps into the contiguous
// scene list. The boundary list is prepended with 0.0 and appended with
// totalDuration to form the cut points; scene i spans cut[i] to cut[i+1].
func BuildScenes(boundaries []float64, totalDuration float64) []Scene {
	cuts := make([]float64, 0, len(boundaries)+2)
	cuts = append(cuts, 0)
	cuts = append(cuts, boundaries...)
	cuts = append(cuts, totalDuration)

	scenes := make([]Scene, 0, len(cuts)-1)
	for i := 0; i+1 < len(cuts); i++ {
		scenes = append(scenes, Scene{
			SceneID:      i,
			KeyframeFile: fmt.Sprintf(KeyframePattern, i),
			StartTime:    cuts[i],
			EndTime:      cuts[i+1],
			Duration:     cuts[i+1] - cuts[i],
		})
	}
	return scenes
}

// New assembles a Manifest from the video info, the detected boundaries, and
// the audio artifact basename (empty when the source has no audio).
func New(info *media.Info, boundaries []float64, audioFile string) *Manifest {
	scenes := BuildScenes(boundaries, info.Duration)
	m := &Manifest{
		InputVideo:    info.Path,
		TotalDuration: info.Duration,
		FPS:           info.FPS,
		Resolution:    info.Resolution(),
		SceneCount:    len(scenes),
		Scenes:        scenes,
	}
	if audioFile != "" {
		m.AudioFile = &audioFile
	}
	return m
}

// Write serializes the manifest into outputDir. It must be called last,
// after every referenced keyframe and the audio artifact are on disk, so an
// external reader of the directory never observes dangling references.
func (m *Manifest) Write(outputDir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}

	path := filepath.Join(outputDir, Filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	log.Info().
		Str("path", path).
		Int("scene_count", m.SceneCount).
		Msg("Manifest written")
	return nil
}
