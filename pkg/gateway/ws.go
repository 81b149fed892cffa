package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openclaw/voiceloop/pkg/errorsx"
)

// SubscribeWebsocket opens the push channel over a websocket instead of SSE,
// for gateways deployed behind proxies that buffer event streams. The wire
// contract is the same: one JSON PushEvent per message.
func (c *Client) SubscribeWebsocket(ctx context.Context, sessionKey string) (PushChannel, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{
		client:     c,
		sessionKey: sessionKey,
		events:     make(chan PushEvent, 32),
		cancel:     cancel,
		logger:     c.logger.With(slog.String("session_key", sessionKey)),
	}
	conn, err := sub.dial(ctx)
	if err != nil {
		cancel()
		return nil, errorsx.Wrap(err, errorsx.ReasonPushConnect)
	}
	go sub.run(ctx, conn)
	return sub, nil
}

type wsSubscription struct {
	client     *Client
	sessionKey string
	events     chan PushEvent
	cancel     context.CancelFunc
	logger     *slog.Logger
}

func (s *wsSubscription) Events() <-chan PushEvent { return s.events }

func (s *wsSubscription) Close() { s.cancel() }

func (s *wsSubscription) dial(ctx context.Context) (*websocket.Conn, error) {
	url := wsURL(s.client.cfg.BaseURL) + "/events/ws?session=" + s.sessionKey
	header := http.Header{}
	if s.client.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+s.client.cfg.Token)
	}
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("push channel status %s: %w", resp.Status, err)
		}
		return nil, err
	}
	return conn, nil
}

func (s *wsSubscription) run(ctx context.Context, conn *websocket.Conn) {
	defer close(s.events)

	backoff := time.Second
	for {
		if conn != nil {
			// Unblock the read loop when the subscription is cancelled.
			readDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					_ = conn.Close()
				case <-readDone:
				}
			}()
			s.consume(ctx, conn)
			close(readDone)
			_ = conn.Close()
			conn = nil
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
		conn, err = s.dial(ctx)
		if err != nil {
			s.logger.Warn("push_reconnect_failed", "error", err)
			conn = nil
			continue
		}
		backoff = time.Second
		s.logger.Info("push_reconnected")
	}
}

func (s *wsSubscription) consume(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	for {
		var ev PushEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		if ev.SessionKey != "" && ev.SessionKey != s.sessionKey {
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
