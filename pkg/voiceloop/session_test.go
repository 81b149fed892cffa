package voiceloop

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/openclaw/voiceloop/pkg/audio"
	"github.com/openclaw/voiceloop/pkg/gateway"
	"github.com/openclaw/voiceloop/pkg/metrics"
	"github.com/openclaw/voiceloop/pkg/turn"
	"github.com/openclaw/voiceloop/pkg/vad"
)

// gatewayHarness is a scripted agent gateway: fixed transcripts, recorded
// sends, and a push stream the test feeds by hand.
type gatewayHarness struct {
	srv *httptest.Server

	mu          sync.Mutex
	transcripts []string
	sends       []string

	push chan gateway.PushEvent
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	h := &gatewayHarness{push: make(chan gateway.PushEvent, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		text := ""
		if len(h.transcripts) > 0 {
			text = h.transcripts[0]
			h.transcripts = h.transcripts[1:]
		}
		h.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	})
	mux.HandleFunc("/send", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.sends = append(h.sends, body.Message)
		h.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		wavData, err := audio.EncodeWAV(make([]int16, 1024), audio.DefaultSampleRate)
		if err != nil {
			t.Errorf("encode tts wav: %v", err)
		}
		w.Write(wavData)
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		session := r.URL.Query().Get("session")
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		for {
			select {
			case ev := <-h.push:
				ev.SessionKey = session
				payload, _ := json.Marshal(ev)
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *gatewayHarness) queueTranscript(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transcripts = append(h.transcripts, text)
}

func (h *gatewayHarness) sentMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.sends))
	copy(out, h.sends)
	return out
}

type fakeEngine struct {
	mu        sync.Mutex
	started   bool
	paused    bool
	resumes   int
	destroyed bool
}

func (e *fakeEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	return nil
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
}

func (e *fakeEngine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	e.resumes++
}

func (e *fakeEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

func (e *fakeEngine) isDestroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *fakeEngine) isPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

type fakeWakeLock struct {
	mu       sync.Mutex
	held     bool
	released bool
}

func (w *fakeWakeLock) Acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = true
	return nil
}

func (w *fakeWakeLock) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.held = false
	w.released = true
}

func (w *fakeWakeLock) wasReleased() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

type sessionFixture struct {
	session  *Session
	harness  *gatewayHarness
	engine   *fakeEngine
	cb       vad.Callbacks
	sink     *audio.CaptureSink
	wakeLock *fakeWakeLock
	observer *metrics.MemoryObserver
}

func testConfig(baseURL string) Config {
	return Config{
		Gateway:      GatewayConfig{BaseURL: baseURL, AgentID: "agent-1"},
		Push:         PushConfig{Transport: "sse"},
		Voice:        VoiceConfig{Volume: 1, AutoSendDelaySeconds: 0.08},
		Ambient:      AmbientConfig{Source: "pad"},
		Language:     "en",
		ResponseMode: "voice",
	}
}

func newSessionFixture(t *testing.T, mutate func(*Config)) *sessionFixture {
	t.Helper()
	h := newGatewayHarness(t)
	cfg := testConfig(h.srv.URL)
	if mutate != nil {
		mutate(&cfg)
	}

	client, err := gateway.NewClient(gateway.Config{BaseURL: h.srv.URL})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	f := &sessionFixture{
		harness:  h,
		engine:   &fakeEngine{},
		sink:     audio.NewCaptureSink(),
		wakeLock: &fakeWakeLock{},
		observer: metrics.NewMemoryObserver(),
	}
	var cbMu sync.Mutex
	s, err := NewSession(cfg, Deps{
		Client:   client,
		Sink:     f.sink,
		WakeLock: f.wakeLock,
		Observer: f.observer,
		EngineFactory: func(_ vad.Config, cb vad.Callbacks) (vad.Engine, error) {
			cbMu.Lock()
			f.cb = cb
			cbMu.Unlock()
			return f.engine, nil
		},
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	f.session = s
	t.Cleanup(s.Close)

	eventually(t, func() bool { return s.State() == turn.StateListening }, "session never started listening")
	return f
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// speak pushes one detector segment through the session.
func (f *sessionFixture) speak(transcript string) {
	f.harness.queueTranscript(transcript)
	f.cb.OnSpeechStart()
	f.cb.OnSpeechEnd(make([]int16, 512))
}

func TestSessionFullTurn(t *testing.T) {
	f := newSessionFixture(t, nil)

	f.speak("hello there")
	eventually(t, func() bool {
		sent := f.harness.sentMessages()
		return len(sent) == 1 && sent[0] == "hello there"
	}, "utterance never reached the gateway")
	if f.session.State() != turn.StateThinking {
		t.Fatalf("expected thinking, got %s", f.session.State())
	}

	f.harness.push <- gateway.PushEvent{State: gateway.StateDelta, Message: "Hi"}
	eventually(t, func() bool { return f.session.ResponseText() == "Hi" }, "delta never surfaced")

	f.harness.push <- gateway.PushEvent{State: gateway.StateFinal, Message: "Hi! How can I help?"}
	eventually(t, func() bool { return f.session.State() == turn.StateListening },
		"session never spoke and resumed listening")
	if f.session.ResponseText() != "Hi! How can I help?" {
		t.Fatalf("response text %q", f.session.ResponseText())
	}
	if len(f.sink.Samples()) == 0 {
		t.Fatal("reply was never played")
	}
	if f.session.BufferText() != "" {
		t.Fatal("buffer must be empty after the turn")
	}
}

func TestSessionExitWordTearsDown(t *testing.T) {
	f := newSessionFixture(t, nil)

	f.speak("goodbye")
	select {
	case <-f.session.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("exit word never closed the session")
	}
	if len(f.harness.sentMessages()) != 0 {
		t.Fatal("exit word must not send")
	}
	if !f.engine.isDestroyed() {
		t.Fatal("detector must be destroyed on close")
	}
	if !f.sink.Closed() {
		t.Fatal("sink must be closed on close")
	}
	if !f.wakeLock.wasReleased() {
		t.Fatal("wake lock must be released on close")
	}
	if f.session.OutputAmplitude() != 0 {
		t.Fatal("no audio may outlive the session")
	}
}

func TestSessionTextModeSkipsPlayback(t *testing.T) {
	f := newSessionFixture(t, func(cfg *Config) { cfg.ResponseMode = "text" })

	f.speak("question send")
	eventually(t, func() bool { return len(f.harness.sentMessages()) == 1 }, "send never fired")

	f.harness.push <- gateway.PushEvent{State: gateway.StateFinal, Message: "Written answer."}
	eventually(t, func() bool { return f.session.State() == turn.StateSpeaking }, "never entered speaking")
	if len(f.sink.Samples()) != 0 {
		t.Fatal("text mode must not play audio")
	}
}

func TestSessionUpstreamErrorResumes(t *testing.T) {
	f := newSessionFixture(t, nil)

	f.speak("question send")
	eventually(t, func() bool { return len(f.harness.sentMessages()) == 1 }, "send never fired")

	f.harness.push <- gateway.PushEvent{State: gateway.StateAborted, Message: "agent aborted"}
	eventually(t, func() bool { return f.session.State() == turn.StateListening }, "never resumed listening")
	if f.session.ResponseText() != "agent aborted" {
		t.Fatalf("transient message %q", f.session.ResponseText())
	}
}

func TestSessionVisibilityGatesDetector(t *testing.T) {
	f := newSessionFixture(t, nil)

	f.session.SetVisible(false)
	eventually(t, func() bool { return f.engine.isPaused() }, "hide never paused the detector")

	f.session.SetVisible(true)
	eventually(t, func() bool { return !f.engine.isPaused() }, "show never resumed the detector")
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, nil)
	f.session.Close()
	f.session.Close()
	select {
	case <-f.session.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
}

func TestSessionReloadSettingsTakesEffect(t *testing.T) {
	f := newSessionFixture(t, func(cfg *Config) { cfg.Voice.AutoSendDelaySeconds = 3600 })

	// With the hour-long countdown nothing sends on its own; after the
	// reload the next fragment's countdown uses the short delay.
	reloaded := testConfig(f.harness.srv.URL)
	reloaded.Voice.AutoSendDelaySeconds = 0.05
	f.session.ReloadSettings(reloaded)

	f.speak("hello there")
	eventually(t, func() bool { return len(f.harness.sentMessages()) == 1 }, "reloaded delay never applied")
}

func TestReloadSettingsFromMissingFile(t *testing.T) {
	f := newSessionFixture(t, nil)
	if err := f.session.ReloadSettingsFromFile("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
