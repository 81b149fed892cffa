package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openclaw/voiceloop/pkg/errorsx"
)

// Subscribe opens the SSE push channel filtered by session key. The
// subscription owns reconnection: it redials with exponential backoff until
// Close is called or ctx ends. Duplicate events may be delivered after a
// reconnect; consumers are expected to apply them idempotently.
func (c *Client) Subscribe(ctx context.Context, sessionKey string) (PushChannel, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &sseSubscription{
		client:     c,
		sessionKey: sessionKey,
		events:     make(chan PushEvent, 32),
		cancel:     cancel,
		logger:     c.logger.With(slog.String("session_key", sessionKey)),
	}

	// Fail fast on the first dial so permission and auth problems surface
	// at session start instead of inside the retry loop.
	resp, err := sub.dial(ctx)
	if err != nil {
		cancel()
		return nil, errorsx.Wrap(err, errorsx.ReasonPushConnect)
	}
	go sub.run(ctx, resp)
	return sub, nil
}

type sseSubscription struct {
	client     *Client
	sessionKey string
	events     chan PushEvent
	cancel     context.CancelFunc
	logger     *slog.Logger
}

func (s *sseSubscription) Events() <-chan PushEvent { return s.events }

func (s *sseSubscription) Close() { s.cancel() }

func (s *sseSubscription) dial(ctx context.Context) (*http.Response, error) {
	url := fmt.Sprintf("%s/events?session=%s", s.client.cfg.BaseURL, s.sessionKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.client.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.client.cfg.Token)
	}
	resp, err := s.client.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("push channel status %s", resp.Status)
	}
	return resp, nil
}

func (s *sseSubscription) run(ctx context.Context, resp *http.Response) {
	defer close(s.events)

	backoff := time.Second
	for {
		if resp != nil {
			s.consume(ctx, resp.Body)
			resp.Body.Close()
			resp = nil
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 10*time.Second {
			backoff *= 2
		}
		var err error
		resp, err = s.dial(ctx)
		if err != nil {
			s.logger.Warn("push_reconnect_failed", "error", err)
			continue
		}
		backoff = time.Second
		s.logger.Info("push_reconnected")
	}
}

// consume reads one SSE stream until EOF or cancellation.
func (s *sseSubscription) consume(ctx context.Context, body io.Reader) {
	reader := bufio.NewReader(body)
	var data []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) > 0 {
				s.emit(ctx, strings.Join(data, "\n"))
				data = data[:0]
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
}

func (s *sseSubscription) emit(ctx context.Context, payload string) {
	var ev PushEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.logger.Warn("push_decode_failed", "error", errorsx.Wrap(err, errorsx.ReasonPushDecode))
		return
	}
	if ev.SessionKey != "" && ev.SessionKey != s.sessionKey {
		return
	}
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
