package media

import "errors"

// Media-open failure classes. Callers can distinguish them with errors.Is;
// all are fatal to a pipeline run.
var (
	// ErrMediaNotFound indicates the source path does not exist or is not
	// readable.
	ErrMediaNotFound = errors.New("media file not found")

	// ErrUnsupportedMedia indicates the container could not be opened or
	// probed.
	ErrUnsupportedMedia = errors.New("unsupported media")

	// ErrNoVideoStream indicates the container opened but carries no video
	// stream.
	ErrNoVideoStream = errors.New("no video stream")

	// ErrDecoderInit indicates the decoder process could not be started or
	// failed before producing any frame.
	ErrDecoderInit = errors.New("decoder initialization failed")
)
