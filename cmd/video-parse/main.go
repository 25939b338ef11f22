// Package main is the video-parse entry point: a shot-listing engine that
// detects scene cuts in a video, emits one keyframe per shot, extracts the
// audio track, and writes a metadata manifest. It runs either as a one-shot
// batch job (process) or as an HTTP worker driven by object-storage upload
// events (serve).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-parse/internal/config"
	"github.com/fpang/video-parse/internal/logging"
	"github.com/fpang/video-parse/internal/media"
	"github.com/fpang/video-parse/internal/pipeline"
	"github.com/fpang/video-parse/internal/server"
)

// CLI flags.
var (
	inputFlag            string
	outputFlag           string
	configFlag           string
	thresholdFlag        float64
	minSceneDurationFlag float64
	sampleRateFlag       float64
	strictAudioFlag      bool
	bindFlag             string
)

var rootCmd = &cobra.Command{
	Use:   "video-parse",
	Short: "Shot-listing engine: detect scene cuts, emit keyframes, extract audio",
	Long: `video-parse analyzes a video's visual stream, detects shot boundaries,
writes one representative JPEG still per shot, extracts the audio track, and
produces a metadata.json manifest describing every shot's temporal span.

Examples:
  video-parse process --input clip.mp4 --output ./out
  video-parse process -i clip.mp4 -o ./out --threshold 0.3 --sample-rate 2
  video-parse serve --bind 0.0.0.0:9000`,
	SilenceUsage: true,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Analyze a local video file",
	RunE:  runProcess,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP worker for object-storage upload events",
	RunE:  runServe,
}

func init() {
	processCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Input video file path")
	processCmd.Flags().StringVarP(&outputFlag, "output", "o", "./output", "Output directory")
	processCmd.Flags().StringVar(&configFlag, "config", "", "Config file path (INI)")
	processCmd.Flags().Float64Var(&thresholdFlag, "threshold", config.DefaultThreshold, "Scene change threshold (0.0-1.0)")
	processCmd.Flags().Float64Var(&minSceneDurationFlag, "min-scene-duration", config.DefaultMinSceneDuration, "Minimum scene duration in seconds")
	processCmd.Flags().Float64Var(&sampleRateFlag, "sample-rate", config.DefaultSampleRate, "Frames per second sampled for analysis")
	processCmd.Flags().BoolVar(&strictAudioFlag, "strict-audio", false, "Treat audio extraction failure as fatal")
	_ = processCmd.MarkFlagRequired("input")

	serveCmd.Flags().StringVar(&bindFlag, "bind", "", "Listen address (default: FC_SERVER_PORT or 0.0.0.0:9000)")
	serveCmd.Flags().StringVar(&configFlag, "config", "", "Config file path (INI)")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	logging.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runProcess(cmd *cobra.Command, args []string) error {
	// Only flags the user actually set participate in resolution, so an
	// untouched default never shadows an environment or file value.
	var overrides config.Overrides
	if cmd.Flags().Changed("threshold") {
		overrides.Threshold = &thresholdFlag
	}
	if cmd.Flags().Changed("min-scene-duration") {
		overrides.MinSceneDuration = &minSceneDurationFlag
	}
	if cmd.Flags().Changed("sample-rate") {
		overrides.SampleRate = &sampleRateFlag
	}

	params := config.Resolve(overrides, configFlag)
	params.StrictAudio = strictAudioFlag

	log.Info().
		Float64("threshold", params.Threshold).
		Float64("min_scene_duration", params.MinSceneDuration).
		Float64("sample_rate", params.SampleRate).
		Msg("Resolved configuration")

	if err := media.CheckToolsAvailable(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, pipeline.Options{
		InputPath:     inputFlag,
		OutputDir:     outputFlag,
		Params:        params,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Processed %s: %d scene(s), %d keyframe(s), output in %s\n",
		inputFlag, result.Manifest.SceneCount, len(result.KeyframeFiles), result.OutputDir)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	if err := media.CheckToolsAvailable(); err != nil {
		return err
	}

	srv := server.New(configFlag)

	bind := bindFlag
	if bind == "" {
		if port := os.Getenv("FC_SERVER_PORT"); port != "" {
			bind = "0.0.0.0:" + port
		} else {
			bind = "0.0.0.0:9000"
		}
	}

	logging.NewStartupLogger("video-parse-serve").
		Bucket("destination", os.Getenv("DESTINATION_BUCKET")).
		Config("bind", bind).
		Config("destinationPrefix", logging.EnvOrDefault("DESTINATION_PREFIX", "processed")).
		Feature("debug", os.Getenv("DEBUG") == "true").
		Feature("webhookSigning", os.Getenv("WEBHOOK_SECRET") != "").
		InitDuration(time.Since(initStart)).
		Log()

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		srv.RunLambda()
		return nil
	}
	return srv.ListenAndServe(bind)
}
