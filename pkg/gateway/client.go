// Package gateway is the HTTP/SSE client for the agent gateway: transcription,
// chat send, speech synthesis, and the per-conversation push-event channel.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/voiceloop/pkg/configutil"
	"github.com/openclaw/voiceloop/pkg/errorsx"
	"github.com/openclaw/voiceloop/pkg/logging"
	"github.com/openclaw/voiceloop/pkg/resilience"
)

// Config holds the gateway endpoint and per-call budgets.
type Config struct {
	BaseURL string
	Token   string

	TranscribeTimeout time.Duration
	SendTimeout       time.Duration
	SynthesizeTimeout time.Duration

	HTTPClient *http.Client
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if err := configutil.RequireString(cfg.BaseURL, "gateway.base_url"); err != nil {
		return nil, err
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.SynthesizeTimeout <= 0 {
		cfg.SynthesizeTimeout = 20 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logging.NewComponentLogger(slog.Default(), "gateway"),
	}, nil
}

type transcribeRequest struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Transcribe posts a WAV segment and returns the recognized text.
// The audio travels as a base64 data URL, matching the transcription server.
func (c *Client) Transcribe(ctx context.Context, wavData []byte, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
	defer cancel()

	body := transcribeRequest{
		Audio:    "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wavData),
		Language: language,
	}
	var out transcribeResponse
	if err := c.postJSON(ctx, "/transcribe", body, &out); err != nil {
		var rl resilience.RateLimitError
		if errors.As(err, &rl) {
			return "", errorsx.Wrap(err, errorsx.ReasonSTTRateLimit)
		}
		return "", errorsx.Wrap(err, errorsx.ReasonSTTTranscribe)
	}
	if out.Error != "" {
		return "", errorsx.Wrap(fmt.Errorf("transcription: %s", out.Error), errorsx.ReasonSTTTranscribe)
	}
	return strings.TrimSpace(out.Text), nil
}

type sendRequest struct {
	AgentID    string `json:"agentId"`
	SessionKey string `json:"sessionKey"`
	Message    string `json:"message"`
}

// SendMessage submits the user's utterance. Fire-and-forget: the reply
// arrives on the push channel, never in this call's response.
func (c *Client) SendMessage(ctx context.Context, agentID, sessionKey, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()

	err := c.postJSON(ctx, "/send", sendRequest{
		AgentID:    agentID,
		SessionKey: sessionKey,
		Message:    text,
	}, nil)
	return errorsx.Wrap(err, errorsx.ReasonChatSend)
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`
}

// Synthesize returns an audio byte stream for the reply text.
func (c *Client) Synthesize(ctx context.Context, text, voice string, rate, pitch float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SynthesizeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/tts", synthesizeRequest{
		Text:  text,
		Voice: voice,
		Rate:  rate,
		Pitch: pitch,
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		var rl resilience.RateLimitError
		if errors.As(err, &rl) {
			return nil, errorsx.Wrap(err, errorsx.ReasonTTSRateLimit)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSSynthesize)
	}
	return audio, nil
}

// FetchAudio downloads an arbitrary audio resource, e.g. an ambient track.
func (c *Client) FetchAudio(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// Health probes the gateway's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return errorsx.Wrap(fmt.Errorf("gateway refused request: %s", resp.Status), errorsx.ReasonGatewayAuth)
	case resp.StatusCode == http.StatusTooManyRequests:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return resilience.RateLimitError{Provider: "gateway", Message: strings.TrimSpace(string(snippet))}
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("gateway status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	return nil
}
