// Package webhook posts run-completion notifications to a configured URL.
//
// The request body is a JSON payload describing the finished run. When a
// secret is configured the body is signed with HMAC-SHA256 and the signature
// travels in the X-Signature-256 header ("sha256=<hex>"), so receivers can
// authenticate the notification. Delivery is best-effort: failures are
// returned to the caller for logging but never retried here.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/video-parse/internal/manifest"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature-256"

// requestTimeout bounds a single notification attempt.
const requestTimeout = 30 * time.Second

// Payload is the notification document posted after a successful run.
type Payload struct {
	Status        string             `json:"status"`
	InputVideo    string             `json:"input_video"`
	OutputDir     string             `json:"output_dir"`
	SceneCount    int                `json:"scene_count"`
	KeyframeCount int                `json:"keyframe_count"`
	AudioFile     string             `json:"audio_file"`
	Metadata      *manifest.Manifest `json:"metadata"`
	Timestamp     string             `json:"timestamp"`
}

// Notifier delivers signed webhook notifications.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

// NewNotifier creates a Notifier for the given URL. secret may be empty, in
// which case requests are unsigned.
func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Notify posts the payload and checks for a 2xx response.
func (n *Notifier) Notify(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(detail))
	}

	log.Info().
		Str("url", n.url).
		Int("status", resp.StatusCode).
		Int("bodySize", len(body)).
		Msg("Webhook notification delivered")
	return nil
}

// Sign computes the "sha256=<hex>" signature of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature validates a signature header against the HMAC-SHA256 of
// the body. Uses hmac.Equal for constant-time comparison.
func VerifySignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	receivedBytes, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(receivedBytes, mac.Sum(nil))
}
