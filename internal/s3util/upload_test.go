package s3util

import "testing"

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "keyframe", file: "keyframe_0000.jpg", want: "image/jpeg"},
		{name: "manifest", file: "metadata.json", want: "application/json"},
		{name: "aac audio", file: "audio.aac", want: "audio/aac"},
		{name: "mp3 audio", file: "audio.mp3", want: "audio/mpeg"},
		{name: "opus audio", file: "audio.opus", want: "audio/ogg"},
		{name: "wav audio", file: "audio.wav", want: "audio/wav"},
		{name: "unknown", file: "notes.txt", want: "application/octet-stream"},
		{name: "uppercase extension", file: "KEYFRAME_0001.JPG", want: "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contentTypeFor(tt.file); got != tt.want {
				t.Errorf("contentTypeFor(%q) = %q, want %q", tt.file, got, tt.want)
			}
		})
	}
}
