// Package s3util provides the object-storage helpers used by serve mode:
// downloading an uploaded source video and publishing a run's output
// directory.
package s3util

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// DownloadToTempFile downloads an object to a new temporary file, preserving
// the key's extension so the codec toolchain can sniff the container.
// Returns the file path plus a cleanup function that removes it.
func DownloadToTempFile(ctx context.Context, client *s3.Client, bucket, key string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "video-parse-*"+filepath.Ext(key))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", tmpFile.Name()).Msg("Downloading source video")

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("storage GetObject: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(tmpFile, result.Body); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("download: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("write: %w", err)
	}

	cleanup := func() { os.Remove(tmpFile.Name()) }
	return tmpFile.Name(), cleanup, nil
}
