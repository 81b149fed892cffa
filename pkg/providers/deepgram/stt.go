// Package deepgram provides a Deepgram-backed transcriber as an alternative
// to the gateway's built-in speech-to-text endpoint.
package deepgram

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	listenv1rest "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/openclaw/voiceloop/pkg/adapters/stt"
	"github.com/openclaw/voiceloop/pkg/configutil"
	"github.com/openclaw/voiceloop/pkg/errorsx"
	"github.com/openclaw/voiceloop/pkg/logging"
	"github.com/openclaw/voiceloop/pkg/resilience"
)

type Config struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

// FromSettings builds a Config from a free-form vendor settings map.
func FromSettings(settings map[string]any) (Config, error) {
	var cfg Config
	if err := configutil.ValidateSettings(settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language"},
	}); err != nil {
		return cfg, err
	}
	if err := configutil.DecodeSettings(settings, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type Transcriber struct {
	cfg    Config
	retry  resilience.RetryPolicy
	logger *slog.Logger
}

func New(cfg Config) (*Transcriber, error) {
	if err := configutil.RequireString(cfg.APIKey, "deepgram.api_key"); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Transcriber{
		cfg:    cfg,
		retry:  resilience.NewRetryPolicy(2, 300*time.Millisecond),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}, nil
}

func (t *Transcriber) Name() string { return "deepgram_prerecorded" }

// Transcribe recognizes a single WAV segment through Deepgram's prerecorded
// REST API, retrying transient failures.
func (t *Transcriber) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	if language == "" {
		language = t.cfg.Language
	}
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    language,
		SmartFormat: true,
	}

	c := client.NewREST(t.cfg.APIKey, &interfaces.ClientOptions{})
	dg := listenv1rest.New(c)

	var transcript string
	err := t.retry.DoContext(ctx, func() error {
		res, err := dg.FromStream(ctx, bytes.NewReader(wavData), options)
		if err != nil {
			t.logger.Warn("transcription_attempt_failed", "error", err)
			return err
		}
		if res == nil || len(res.Results.Channels) == 0 ||
			len(res.Results.Channels[0].Alternatives) == 0 {
			transcript = ""
			return nil
		}
		transcript = res.Results.Channels[0].Alternatives[0].Transcript
		return nil
	})
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	return strings.TrimSpace(transcript), nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
