// Package config resolves the analysis parameters for a single pipeline run.
//
// Sources are merged in priority order (highest wins): explicit CLI flags,
// VIDEO_PARSE_* environment variables, an INI config file, built-in defaults.
// A malformed or out-of-range value in any source is ignored per-field and
// resolution falls through to the next source; configuration is never fatal.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"
)

// Built-in defaults for the analysis parameters.
const (
	DefaultThreshold        = 0.35
	DefaultMinSceneDuration = 0.8
	DefaultSampleRate       = 0.5
)

// Environment variables consumed by parameter resolution.
const (
	EnvThreshold        = "VIDEO_PARSE_THRESHOLD"
	EnvMinSceneDuration = "VIDEO_PARSE_MIN_SCENE_DURATION"
	EnvSampleRate       = "VIDEO_PARSE_SAMPLE_RATE"
	EnvWebhookURL       = "VIDEO_PARSE_WEBHOOK_URL"
)

// iniSection is the config file section holding the analysis parameters.
// Keys are also accepted from the DEFAULT section.
const iniSection = "video_parse"

// Params is the immutable parameter record for one pipeline invocation.
// The pipeline itself never reads the environment or config files; callers
// resolve a Params once and pass it in.
type Params struct {
	// Threshold is the combined-difference value at or above which a frame
	// pair is considered a shot boundary. Range [0, 1]; larger means fewer,
	// more conservative cuts. A threshold of 1 records no boundaries.
	Threshold float64

	// MinSceneDuration suppresses boundaries closer than this many seconds
	// to the previous one, filtering flashes and strobes.
	MinSceneDuration float64

	// SampleRate is how many frames per second the sampler delivers to the
	// detector. Values at or above the native frame rate deliver every frame.
	SampleRate float64

	// WebhookURL, when non-empty, receives a POST notification after a
	// successful run.
	WebhookURL string

	// StrictAudio makes an audio extraction failure fatal to the run.
	// By default audio failure is reported and the manifest is still
	// emitted with its audio reference cleared.
	StrictAudio bool
}

// Defaults returns the built-in parameter set.
func Defaults() Params {
	return Params{
		Threshold:        DefaultThreshold,
		MinSceneDuration: DefaultMinSceneDuration,
		SampleRate:       DefaultSampleRate,
	}
}

// Overrides carries optional values from a single configuration source.
// A nil field means "not set here, fall through".
type Overrides struct {
	Threshold        *float64
	MinSceneDuration *float64
	SampleRate       *float64
	WebhookURL       *string
}

// Resolve merges flags, environment, config file, and defaults into a Params.
// configFile may be empty, in which case the default file locations are
// searched. Missing or malformed files fall through silently.
func Resolve(flags Overrides, configFile string) Params {
	p := Defaults()
	apply(&p, fromFile(configFile))
	apply(&p, fromEnv())
	apply(&p, flags)
	return p
}

// apply copies the valid fields of o onto p. Out-of-range values are dropped
// so a bad value in a high-priority source still falls through to the value
// already resolved from a lower-priority one.
func apply(p *Params, o Overrides) {
	if o.Threshold != nil && validThreshold(*o.Threshold) {
		p.Threshold = *o.Threshold
	}
	if o.MinSceneDuration != nil && *o.MinSceneDuration >= 0 {
		p.MinSceneDuration = *o.MinSceneDuration
	}
	if o.SampleRate != nil && *o.SampleRate > 0 {
		p.SampleRate = *o.SampleRate
	}
	if o.WebhookURL != nil && *o.WebhookURL != "" {
		p.WebhookURL = *o.WebhookURL
	}
}

func validThreshold(v float64) bool {
	return v >= 0 && v <= 1
}

// fromEnv reads the VIDEO_PARSE_* environment variables. Unparseable values
// are treated as unset.
func fromEnv() Overrides {
	var o Overrides
	o.Threshold = envFloat(EnvThreshold)
	o.MinSceneDuration = envFloat(EnvMinSceneDuration)
	o.SampleRate = envFloat(EnvSampleRate)
	if v := os.Getenv(EnvWebhookURL); v != "" {
		o.WebhookURL = &v
	}
	return o
}

func envFloat(name string) *float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Debug().Str("var", name).Str("value", raw).Msg("Ignoring non-numeric environment value")
		return nil
	}
	return &v
}

// defaultFileLocations returns the config file search order used when no
// explicit path is given.
func defaultFileLocations() []string {
	paths := []string{"video-parse.ini", ".video-parse.ini"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".video-parse.ini"))
	}
	paths = append(paths, "/etc/video-parse.ini")
	return paths
}

// fromFile loads overrides from the INI config file at path, or from the
// first existing default location when path is empty. Any failure to read or
// parse returns an empty Overrides.
func fromFile(path string) Overrides {
	if path != "" {
		return parseFile(path)
	}
	for _, candidate := range defaultFileLocations() {
		if _, err := os.Stat(candidate); err == nil {
			return parseFile(candidate)
		}
	}
	return Overrides{}
}

func parseFile(path string) Overrides {
	f, err := ini.Load(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Ignoring unreadable config file")
		return Overrides{}
	}

	var o Overrides
	o.Threshold = iniFloat(f, "threshold")
	o.MinSceneDuration = iniFloat(f, "min_scene_duration")
	o.SampleRate = iniFloat(f, "sample_rate")
	if v := iniString(f, "webhook_url"); v != "" {
		o.WebhookURL = &v
	}
	return o
}

// iniString reads a key from the [video_parse] section, falling back to the
// DEFAULT section.
func iniString(f *ini.File, key string) string {
	if v := f.Section(iniSection).Key(key).String(); v != "" {
		return v
	}
	return f.Section(ini.DefaultSection).Key(key).String()
}

func iniFloat(f *ini.File, key string) *float64 {
	raw := iniString(f, key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Debug().Str("key", key).Str("value", raw).Msg("Ignoring non-numeric config file value")
		return nil
	}
	return &v
}

// WriteDefaultFile writes a template config file to path holding the
// built-in defaults and an empty webhook_url.
func WriteDefaultFile(path string) error {
	f := ini.Empty()
	sec := f.Section(iniSection)
	sec.Key("threshold").SetValue(strconv.FormatFloat(DefaultThreshold, 'f', 2, 64))
	sec.Key("min_scene_duration").SetValue(strconv.FormatFloat(DefaultMinSceneDuration, 'f', 1, 64))
	sec.Key("sample_rate").SetValue(strconv.FormatFloat(DefaultSampleRate, 'f', 1, 64))
	sec.Key("webhook_url").SetValue("")
	return f.SaveTo(path)
}
