// Package server implements the serve-mode HTTP worker. It accepts
// object-storage upload events from the function-compute front door,
// downloads the uploaded video, runs the analysis pipeline, and publishes
// the output directory back to object storage.
//
// Configuration is resolved once per request into an immutable parameter
// record; the pipeline itself never touches the environment while a request
// is processed.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-parse/internal/config"
	"github.com/fpang/video-parse/internal/metrics"
	"github.com/fpang/video-parse/internal/pipeline"
	"github.com/fpang/video-parse/internal/s3util"
)

// maxBodySize bounds event payloads (1 MB).
const maxBodySize = 1 << 20

// requestIDHeader is set by the function-compute front door.
const requestIDHeader = "x-fc-request-id"

// Server is the serve-mode worker.
type Server struct {
	mux *http.ServeMux

	// configFile is an optional explicit config file path applied to every
	// request's parameter resolution.
	configFile string

	s3Once   sync.Once
	s3Client *s3.Client
	s3Err    error
}

// New creates a Server and registers its routes.
func New(configFile string) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		configFile: configFile,
	}

	s.mux.HandleFunc("/", s.handleHealth)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/initialize", s.handleInitialize)
	s.mux.HandleFunc("/invoke", s.handleEvent)
	s.mux.HandleFunc("/process", s.handleEvent)
	s.mux.HandleFunc("/process/direct", s.handleDirectProcess)
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving HTTP on bind.
func (s *Server) ListenAndServe(bind string) error {
	log.Info().Str("bind", bind).Msg("HTTP worker listening")
	return http.ListenAndServe(bind, s.mux)
}

// RunLambda serves the same mux through the FaaS HTTP adapter. It never
// returns.
func (s *Server) RunLambda() {
	log.Info().Str("function", os.Getenv("AWS_LAMBDA_FUNCTION_NAME")).Msg("Serving behind Lambda runtime")
	lambda.Start(httpadapter.New(s.mux).ProxyWithContext)
}

// storage lazily initializes the object-storage client; serve mode can still
// handle /process/direct on local paths when no credentials are available.
func (s *Server) storage(ctx context.Context) (*s3.Client, error) {
	s.s3Once.Do(func() {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			s.s3Err = fmt.Errorf("load storage config: %w", err)
			return
		}
		s.s3Client = s3.NewFromConfig(cfg)
	})
	return s.s3Client, s.s3Err
}

// ProcessResponse is the JSON reply for event and direct-process requests.
type ProcessResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id,omitempty"`
	Results   []ProcessResult `json:"results,omitempty"`
}

// ProcessResult summarizes one processed object.
type ProcessResult struct {
	Bucket       string `json:"bucket,omitempty"`
	Key          string `json:"key,omitempty"`
	OutputPrefix string `json:"output_prefix,omitempty"`
	OutputDir    string `json:"output_dir,omitempty"`
	SceneCount   int    `json:"scene_count"`
	AudioFile    string `json:"audio_file,omitempty"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "video-parse"})
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	log.Info().Str("requestId", requestID(r)).Msg("Initialize request received")
	writeJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}

// handleEvent accepts an object-storage upload event and processes every
// record. Any HTTP method is accepted; the front door is not consistent
// about which one it uses.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httpError(w, http.StatusBadRequest, reqID, "failed to read body")
		return
	}
	defer r.Body.Close()

	if len(body) == 0 {
		httpError(w, http.StatusBadRequest, reqID, "empty body")
		return
	}

	var event StorageEvent
	if err := json.Unmarshal(body, &event); err != nil {
		httpError(w, http.StatusBadRequest, reqID, fmt.Sprintf("invalid event payload: %v", err))
		return
	}
	if len(event.Events) == 0 {
		httpError(w, http.StatusBadRequest, reqID, "event list is empty")
		return
	}

	log.Info().
		Str("requestId", reqID).
		Int("events", len(event.Events)).
		Str("bucket", event.Events[0].OSS.Bucket.Name).
		Str("key", event.Events[0].OSS.Object.Key).
		Msg("Storage event received")

	// DEBUG mode acknowledges the event without processing, for verifying
	// deployment and trigger wiring.
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		log.Info().Str("requestId", reqID).Msg("DEBUG mode enabled — skipping processing")
		writeJSON(w, http.StatusOK, ProcessResponse{
			Success:   true,
			Message:   "debug mode: event received",
			RequestID: reqID,
		})
		return
	}

	params := config.Resolve(config.Overrides{}, s.configFile)

	results := make([]ProcessResult, 0, len(event.Events))
	for _, record := range event.Events {
		res, err := s.processRecord(r.Context(), reqID, record, params)
		if err != nil {
			log.Error().Err(err).
				Str("requestId", reqID).
				Str("key", record.OSS.Object.Key).
				Msg("Failed to process uploaded object")
			httpError(w, http.StatusInternalServerError, reqID, err.Error())
			return
		}
		results = append(results, *res)
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Success:   true,
		Message:   fmt.Sprintf("processed %d object(s)", len(results)),
		RequestID: reqID,
		Results:   results,
	})
}

// processRecord downloads one uploaded object, runs the pipeline on it, and
// publishes the output directory.
func (s *Server) processRecord(ctx context.Context, reqID string, record EventRecord, params config.Params) (*ProcessResult, error) {
	bucket := record.OSS.Bucket.Name
	key := record.OSS.Object.Key
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("event record missing bucket or key")
	}

	client, err := s.storage(ctx)
	if err != nil {
		return nil, err
	}

	localPath, cleanupDownload, err := s3util.DownloadToTempFile(ctx, client, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", bucket, key, err)
	}
	defer cleanupDownload()

	outputDir, err := os.MkdirTemp("", "video-parse-out-*")
	if err != nil {
		return nil, fmt.Errorf("output directory: %w", err)
	}
	defer os.RemoveAll(outputDir)

	runResult, err := pipeline.Run(ctx, pipeline.Options{
		InputPath:     localPath,
		OutputDir:     outputDir,
		Params:        params,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})
	if err != nil {
		return nil, fmt.Errorf("process %s/%s: %w", bucket, key, err)
	}

	destBucket := os.Getenv("DESTINATION_BUCKET")
	if destBucket == "" {
		destBucket = bucket
	}
	prefix := outputPrefix(os.Getenv("DESTINATION_PREFIX"), key)

	if _, err := s3util.UploadOutputDir(ctx, client, destBucket, prefix, outputDir); err != nil {
		return nil, fmt.Errorf("publish %s/%s: %w", destBucket, prefix, err)
	}

	elapsedMs := runResult.Elapsed.Milliseconds()
	metrics.New().
		Dimension("Operation", "storageEvent").
		Metric("RunDurationMs", float64(elapsedMs), metrics.UnitMilliseconds).
		Metric("SceneCount", float64(runResult.Manifest.SceneCount), metrics.UnitCount).
		Metric("SampledFrames", float64(runResult.SampledFrames), metrics.UnitCount).
		Count("RunsProcessed").
		Property("requestId", reqID).
		Property("bucket", bucket).
		Property("key", key).
		Flush()

	return &ProcessResult{
		Bucket:       destBucket,
		Key:          key,
		OutputPrefix: prefix,
		SceneCount:   runResult.Manifest.SceneCount,
		AudioFile:    runResult.AudioFile,
		ElapsedMs:    elapsedMs,
	}, nil
}

// outputPrefix derives the destination key prefix for one source object:
// <prefix>/<key stem>.
func outputPrefix(prefix, key string) string {
	if prefix == "" {
		prefix = "processed"
	}
	base := filepath.Base(key)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(prefix, "/") + "/" + stem
}

// directRequest is the /process/direct body: an explicit input path plus
// optional per-request parameter overrides.
type directRequest struct {
	Input            string   `json:"input"`
	Output           string   `json:"output"`
	Threshold        *float64 `json:"threshold"`
	MinSceneDuration *float64 `json:"min_scene_duration"`
	SampleRate       *float64 `json:"sample_rate"`
}

func (s *Server) handleDirectProcess(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r)
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, reqID, "method not allowed")
		return
	}

	var req directRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, reqID, fmt.Sprintf("invalid request: %v", err))
		return
	}
	defer r.Body.Close()

	if req.Input == "" {
		httpError(w, http.StatusBadRequest, reqID, "input is required")
		return
	}

	outputDir := req.Output
	if outputDir == "" {
		dir, err := os.MkdirTemp("", "video-parse-out-*")
		if err != nil {
			httpError(w, http.StatusInternalServerError, reqID, "output directory: "+err.Error())
			return
		}
		outputDir = dir
	}

	params := config.Resolve(config.Overrides{
		Threshold:        req.Threshold,
		MinSceneDuration: req.MinSceneDuration,
		SampleRate:       req.SampleRate,
	}, s.configFile)

	start := time.Now()
	runResult, err := pipeline.Run(r.Context(), pipeline.Options{
		InputPath:     req.Input,
		OutputDir:     outputDir,
		Params:        params,
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	})
	if err != nil {
		httpError(w, http.StatusInternalServerError, reqID, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Success:   true,
		Message:   "processed",
		RequestID: reqID,
		Results: []ProcessResult{{
			OutputDir:  runResult.OutputDir,
			SceneCount: runResult.Manifest.SceneCount,
			AudioFile:  runResult.AudioFile,
			ElapsedMs:  time.Since(start).Milliseconds(),
		}},
	})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(requestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func httpError(w http.ResponseWriter, status int, reqID, message string) {
	log.Warn().Str("requestId", reqID).Int("status", status).Str("error", message).Msg("Request failed")
	writeJSON(w, status, ProcessResponse{Success: false, Message: message, RequestID: reqID})
}
