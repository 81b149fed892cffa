package gateway

import (
	"context"

	"github.com/openclaw/voiceloop/pkg/adapters/stt"
	"github.com/openclaw/voiceloop/pkg/adapters/tts"
)

// STT exposes the gateway's transcription endpoint behind the vendor contract.
func (c *Client) STT() stt.Transcriber { return sttAdapter{c} }

// TTS exposes the gateway's synthesis endpoint behind the vendor contract.
func (c *Client) TTS() tts.Synthesizer { return ttsAdapter{c} }

type sttAdapter struct{ c *Client }

func (a sttAdapter) Name() string { return "gateway_stt" }

func (a sttAdapter) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	return a.c.Transcribe(ctx, wavData, language)
}

type ttsAdapter struct{ c *Client }

func (a ttsAdapter) Name() string { return "gateway_tts" }

func (a ttsAdapter) Synthesize(ctx context.Context, text string, params tts.Params) ([]byte, error) {
	return a.c.Synthesize(ctx, text, params.Voice, params.Rate, params.Pitch)
}

var (
	_ stt.Transcriber = sttAdapter{}
	_ tts.Synthesizer = ttsAdapter{}
)
