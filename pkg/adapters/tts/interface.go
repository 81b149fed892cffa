package tts

import "context"

// Params are the voice parameters from the settings snapshot.
type Params struct {
	Voice string
	Rate  float64
	Pitch float64
}

// Synthesizer defines the contract for any text-to-speech vendor.
// It returns a complete audio byte stream for the given reply text.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, text string, params Params) ([]byte, error)
}
