package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSubscribeFiltersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session") != "sess-1" {
			t.Errorf("missing session filter, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, ": ping\n\n")
		fmt.Fprintf(w, "data: {\"sessionKey\":\"sess-1\",\"state\":\"delta\",\"message\":\"Hel\"}\n\n")
		fmt.Fprintf(w, "data: {\"sessionKey\":\"other\",\"state\":\"final\",\"message\":\"ignored\"}\n\n")
		fmt.Fprintf(w, "data: {\"sessionKey\":\"sess-1\",\"state\":\"final\",\"message\":\"Hello\"}\n\n")
		flusher.Flush()
		// Hold the stream open briefly so the client reads everything.
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	sub, err := c.Subscribe(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	var got []PushEvent
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("channel closed early, got %d events", len(got))
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(got))
		}
	}
	if got[0].State != StateDelta || got[0].Message != "Hel" {
		t.Fatalf("unexpected first event: %+v", got[0])
	}
	if got[1].State != StateFinal || got[1].Message != "Hello" {
		t.Fatalf("unexpected second event: %+v", got[1])
	}
}

func TestSubscribeFailsFastOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	if _, err := c.Subscribe(context.Background(), "sess-1"); err == nil {
		t.Fatalf("expected subscribe to fail on 403")
	}
}

func TestSubscriptionCloseEndsEventStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	sub, err := c.Subscribe(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("events channel did not close")
	}
}
