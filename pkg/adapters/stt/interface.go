package stt

import "context"

// Transcriber defines the contract for any speech-to-text vendor.
// The orchestrator hands it one finished segment at a time as an encoded
// WAV byte stream; streaming recognition is out of scope.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe recognizes a single WAV segment. An empty string means
	// nothing was recognized.
	Transcribe(ctx context.Context, wavData []byte, language string) (string, error)
}
