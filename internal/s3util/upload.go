package s3util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// contentTypeFor maps a run artifact's extension to its upload content type.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	case ".aac":
		return "audio/aac"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

// UploadOutputDir publishes every file in a run's output directory under
// prefix in the destination bucket and returns the uploaded keys. The
// manifest is uploaded last so a reader listing the destination never sees
// it before the artifacts it references.
func UploadOutputDir(ctx context.Context, client *s3.Client, bucket, prefix, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}

	var names []string
	manifestLast := ""
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if entry.Name() == "metadata.json" {
			manifestLast = entry.Name()
			continue
		}
		names = append(names, entry.Name())
	}
	if manifestLast != "" {
		names = append(names, manifestLast)
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		key := prefix + "/" + name
		if err := uploadFile(ctx, client, bucket, key, filepath.Join(dir, name)); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	log.Info().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Int("files", len(keys)).
		Msg("Output directory uploaded")
	return keys, nil
}

func uploadFile(ctx context.Context, client *s3.Client, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	contentType := contentTypeFor(path)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("storage PutObject %s: %w", key, err)
	}

	log.Debug().Str("key", key).Str("contentType", contentType).Msg("Artifact uploaded")
	return nil
}
