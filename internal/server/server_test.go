package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	srv := New("")
	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["status"] != "ok" {
				t.Errorf("status field = %q, want ok", body["status"])
			}
		})
	}
}

func TestInitializeEndpoint(t *testing.T) {
	srv := New("")
	req := httptest.NewRequest(http.MethodPost, "/initialize", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestEventEndpointRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "invalid json", body: "{not json"},
		{name: "empty event list", body: `{"events":[]}`},
	}

	srv := New("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/invoke", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var resp ProcessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Success {
				t.Error("success = true for rejected payload")
			}
			if resp.RequestID == "" {
				t.Error("request_id missing from error response")
			}
		})
	}
}

func TestEventEndpointDebugShortCircuit(t *testing.T) {
	t.Setenv("DEBUG", "true")

	srv := New("")
	body := `{"events":[{"eventName":"ObjectCreated:PutObject","region":"us-east-1",` +
		`"oss":{"bucket":{"name":"videos"},"object":{"key":"uploads/clip.mp4","size":1024}}}]}`
	req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp ProcessResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("debug mode should acknowledge the event")
	}
	if len(resp.Results) != 0 {
		t.Error("debug mode must not process records")
	}
}

func TestDirectProcessValidation(t *testing.T) {
	srv := New("")

	t.Run("rejects non-POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/process/direct", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("rejects missing input", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/process/direct", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing file reports failure", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/process/direct",
			strings.NewReader(`{"input":"/nonexistent/video.mp4"}`))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		var resp ProcessResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Success {
			t.Error("success = true for missing input file")
		}
	})
}

func TestOutputPrefix(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
	}{
		{name: "default prefix", prefix: "", key: "uploads/clip.mp4", want: "processed/clip"},
		{name: "custom prefix", prefix: "results", key: "clip.mov", want: "results/clip"},
		{name: "trailing slash trimmed", prefix: "results/", key: "a/b/c.mkv", want: "results/c"},
		{name: "no extension", prefix: "out", key: "raw", want: "out/raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputPrefix(tt.prefix, tt.key); got != tt.want {
				t.Errorf("outputPrefix(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
			}
		})
	}
}

func TestStorageEventDecoding(t *testing.T) {
	raw := `{"events":[{"eventName":"ObjectCreated:PutObject","eventSource":"acs:oss",` +
		`"eventTime":"2024-06-01T12:00:00.000Z","region":"cn-hangzhou",` +
		`"oss":{"bucket":{"name":"videos"},"object":{"key":"in/clip.mp4","size":2048,"eTag":"abc"}}}]}`

	var event StorageEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatal(err)
	}
	if len(event.Events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(event.Events))
	}
	rec := event.Events[0]
	if rec.OSS.Bucket.Name != "videos" || rec.OSS.Object.Key != "in/clip.mp4" {
		t.Errorf("decoded record = %+v", rec)
	}
	if rec.OSS.Object.Size != 2048 {
		t.Errorf("size = %d, want 2048", rec.OSS.Object.Size)
	}
}
