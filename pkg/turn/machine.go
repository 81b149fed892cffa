// Package turn implements the turn-taking state machine at the heart of the
// voice session. It owns the conversational state, the accumulation buffer of
// unsent speech, the silence-triggered auto-send timer, and the trigger/exit
// voice commands. No other component assigns state directly.
package turn

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/voiceloop/pkg/errorsx"
	"github.com/openclaw/voiceloop/pkg/lexicon"
	"github.com/openclaw/voiceloop/pkg/logging"
	"github.com/openclaw/voiceloop/pkg/metrics"
)

// Actions are the side effects the machine requests from the session. All of
// them are expected to return quickly and deliver their outcome back through
// Post; a slow synchronous implementation stalls the whole turn.
type Actions interface {
	// Transcribe recognizes a captured segment. The result comes back as a
	// KindTranscript event carrying the same seq.
	Transcribe(seq int, samples []int16)
	// Send delivers the accumulated buffer to the agent. Fire-and-forget;
	// only failures come back, as KindSendFailed.
	Send(text string)
	// Speak plays the agent's reply (or in text-only mode, waits out a
	// reading pause). Completion comes back as KindSpeakDone.
	Speak(text string)
	// RestartDetector discards the detector instance and builds a fresh
	// one, reporting KindDetectorReady or KindDetectorFailed.
	RestartDetector()
	// SessionClosed tells the owner the user asked to end the session.
	// Invoked at most once per machine.
	SessionClosed()
}

// Config parameterizes a machine for one session.
type Config struct {
	Language string
	// AutoSendDelay is read at every timer (re)schedule so a settings
	// reload takes effect mid-session.
	AutoSendDelay func() time.Duration
	Observer      metrics.Observer
	SessionKey    string
}

// Machine serializes every external event through one queue goroutine, so
// transitions apply in a total order and no two send attempts can race.
type Machine struct {
	actions Actions
	lex     lexicon.Lexicon
	delay   func() time.Duration

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	observer   metrics.Observer
	sessionKey string
	logger     *slog.Logger

	// Observable snapshot, guarded separately so UI polling never touches
	// the queue.
	mu             sync.Mutex
	state          State
	errMsg         string
	buffer         []string
	responseText   string
	lastTranscript string

	// Queue-goroutine-only fields.
	timer          *time.Timer
	timerGen       int
	sttSeq         int
	closeRequested bool
	sentAt         time.Time
}

func NewMachine(actions Actions, cfg Config) *Machine {
	delay := cfg.AutoSendDelay
	if delay == nil {
		delay = func() time.Duration { return 3 * time.Second }
	}
	observer := cfg.Observer
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	m := &Machine{
		actions:    actions,
		lex:        lexicon.ForLanguage(cfg.Language),
		delay:      delay,
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		observer:   observer,
		sessionKey: cfg.SessionKey,
		logger:     logging.NewComponentLogger(slog.Default(), "turn"),
		state:      StateInitializing,
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Post enqueues an event. Safe from any goroutine; a no-op after Close.
func (m *Machine) Post(ev Event) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Close stops the queue and cancels the auto-send timer. Pending events are
// discarded; callbacks arriving afterwards are no-ops.
func (m *Machine) Close() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	m.wg.Wait()
	m.cancelTimer()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) ErrMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// BufferText returns the unsent speech fragments joined with single spaces.
func (m *Machine) BufferText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.buffer, " ")
}

func (m *Machine) ResponseText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.responseText
}

// LastTranscript returns the most recent raw transcript, or the empty-send
// hint after a bare trigger word.
func (m *Machine) LastTranscript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTranscript
}

func (m *Machine) loop() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Machine) apply(ev Event) {
	switch ev.Kind {
	case KindDetectorReady:
		m.onDetectorReady()
	case KindDetectorFailed:
		m.onDetectorFailed(ev.Err)
	case KindSpeechStart:
		m.onSpeechStart()
	case KindSpeechEnd:
		m.onSpeechEnd(ev.Samples)
	case KindMisfire:
		m.onMisfire()
	case KindTranscript:
		m.onTranscript(ev.Seq, ev.Text)
	case KindTimerFired:
		m.onTimerFired(ev.Seq)
	case KindManualSend:
		m.onManualSend()
	case KindRetry:
		m.onRetry()
	case KindReplyDelta:
		m.onReplyDelta(ev.Text)
	case KindReplyFinal:
		m.onReplyFinal(ev.Text)
	case KindReplyFailed:
		m.onReplyFailed(ev.Text)
	case KindSendFailed:
		m.onSendFailed(ev.Err)
	case KindSpeakDone:
		m.onSpeakDone(ev.Err)
	default:
		m.logger.Warn("unknown_event_dropped", "kind", string(ev.Kind))
	}
}

func (m *Machine) onDetectorReady() {
	if m.State() != StateInitializing {
		return
	}
	m.setState(StateListening)
}

func (m *Machine) onDetectorFailed(err error) {
	m.cancelTimer()
	m.enterError(errorsx.Wrap(err, errorsx.ReasonMicInit))
}

func (m *Machine) onSpeechStart() {
	if m.State() != StateListening {
		return
	}
	// New speech invalidates the silence countdown.
	m.cancelTimer()
	m.setState(StateRecording)
}

func (m *Machine) onSpeechEnd(samples []int16) {
	if !m.State().acceptsSpeech() {
		// Talking over the agent is not input.
		m.logger.Debug("segment_discarded", "state", m.State().String())
		return
	}
	if len(samples) == 0 {
		m.backToListening()
		return
	}
	m.setState(StateTranscribing)
	m.sttSeq++
	m.actions.Transcribe(m.sttSeq, samples)
}

func (m *Machine) onMisfire() {
	if m.State() != StateRecording {
		return
	}
	m.backToListening()
}

func (m *Machine) onTranscript(seq int, text string) {
	// A slow result must not resurrect a turn that already moved on.
	if seq != m.sttSeq || m.State() != StateTranscribing {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		m.backToListening()
		return
	}
	m.setLastTranscript(text)

	if m.lex.MatchExit(text) {
		m.requestClose()
		// Unsent fragments die with the session; no countdown may fire
		// a send the user no longer wants.
		m.mu.Lock()
		m.buffer = nil
		m.mu.Unlock()
		m.setState(StateListening)
		return
	}

	if cleaned, triggered := m.lex.StripTrigger(text); triggered {
		if cleaned != "" {
			m.appendFragment(cleaned)
		}
		if m.BufferText() == "" {
			m.setLastTranscript(m.lex.EmptySendHint())
			m.backToListening()
			return
		}
		m.sendBuffer()
		return
	}

	m.appendFragment(text)
	m.setState(StateListening)
	m.rescheduleTimer()
}

func (m *Machine) onTimerFired(gen int) {
	if gen != m.timerGen {
		return
	}
	if m.State() != StateListening || m.BufferText() == "" {
		return
	}
	m.sendBuffer()
}

func (m *Machine) onManualSend() {
	switch m.State() {
	case StateListening, StateRecording, StateTranscribing:
	default:
		return
	}
	if m.BufferText() == "" {
		m.setLastTranscript(m.lex.EmptySendHint())
		return
	}
	// Invalidate any in-flight transcription; the user decided the buffer
	// is complete as-is.
	m.sttSeq++
	m.sendBuffer()
}

func (m *Machine) onRetry() {
	if m.State() != StateError {
		return
	}
	m.cancelTimer()
	m.sttSeq++
	m.mu.Lock()
	m.buffer = nil
	m.errMsg = ""
	m.responseText = ""
	m.lastTranscript = ""
	m.state = StateInitializing
	m.mu.Unlock()
	m.actions.RestartDetector()
}

func (m *Machine) onReplyDelta(text string) {
	switch m.State() {
	case StateThinking:
	case StateListening, StateRecording, StateTranscribing:
		// A delta before we believe we sent anything means the server is
		// ahead of us; follow it.
		m.cancelTimer()
		m.setState(StateThinking)
	default:
		// A redelivered delta after its final must not disturb playback.
		return
	}
	m.mu.Lock()
	m.responseText += text
	m.mu.Unlock()
}

func (m *Machine) onReplyFinal(text string) {
	// Duplicates are tolerated: only the first final acts, the buffer is
	// already clear for any replay.
	if m.State() != StateThinking {
		return
	}
	m.cancelTimer()
	m.mu.Lock()
	m.buffer = nil
	m.responseText = text
	m.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		m.setState(StateListening)
		return
	}
	if !m.sentAt.IsZero() {
		latency := time.Since(m.sentAt)
		m.sentAt = time.Time{}
		m.observer.RecordEvent(metrics.Event("reply_latency_ms", m.sessionKey, float64(latency.Milliseconds())))
	}
	m.setState(StateSpeaking)
	m.actions.Speak(text)
}

func (m *Machine) onReplyFailed(message string) {
	if m.State() != StateThinking {
		return
	}
	m.cancelTimer()
	m.mu.Lock()
	m.buffer = nil
	if message == "" {
		message = "The agent had trouble with that. Please try again."
	}
	m.responseText = message
	m.mu.Unlock()
	m.setState(StateListening)
}

func (m *Machine) onSendFailed(err error) {
	if m.State() != StateThinking {
		return
	}
	// The utterance is lost; this is the one transient failure the user
	// must explicitly recover from.
	m.enterError(errorsx.Wrap(err, errorsx.ReasonChatSend))
}

func (m *Machine) onSpeakDone(err error) {
	if m.State() != StateSpeaking {
		return
	}
	if err != nil {
		m.logger.Warn("playback_ended_with_error", "error", err)
	}
	m.setState(StateListening)
}

func (m *Machine) sendBuffer() {
	m.cancelTimer()
	m.mu.Lock()
	text := strings.Join(m.buffer, " ")
	m.buffer = nil
	m.responseText = ""
	m.state = StateThinking
	m.mu.Unlock()
	m.sentAt = time.Now()
	m.observer.RecordEvent(metrics.Event("buffer_sent", m.sessionKey, float64(len(text))))
	m.actions.Send(text)
}

// backToListening resumes listening and, when unsent speech remains in the
// buffer, restarts the silence countdown so the fragments still get sent.
func (m *Machine) backToListening() {
	m.setState(StateListening)
	if m.BufferText() != "" {
		m.rescheduleTimer()
	}
}

func (m *Machine) requestClose() {
	if m.closeRequested {
		return
	}
	m.closeRequested = true
	m.observer.RecordEvent(metrics.Event("session_close_requested", m.sessionKey, 1))
	m.actions.SessionClosed()
}

func (m *Machine) appendFragment(text string) {
	m.mu.Lock()
	m.buffer = append(m.buffer, text)
	m.mu.Unlock()
}

// rescheduleTimer cancels any pending countdown and starts a fresh one. The
// generation check in onTimerFired makes a stale fire harmless, so at most
// one countdown is ever live.
func (m *Machine) rescheduleTimer() {
	m.cancelTimer()
	gen := m.timerGen
	m.timer = time.AfterFunc(m.delay(), func() {
		m.Post(Event{Kind: KindTimerFired, Seq: gen})
	})
}

func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerGen++
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	if s != StateError {
		m.errMsg = ""
	}
	m.mu.Unlock()
	if prev != s {
		m.logger.Debug("state_changed", "from", prev.String(), "to", s.String())
	}
}

func (m *Machine) enterError(err error) {
	m.mu.Lock()
	m.state = StateError
	m.errMsg = err.Error()
	m.buffer = nil
	m.mu.Unlock()
	m.logger.Error("session_error", "error", err)
	m.observer.RecordEvent(metrics.Event("session_error", m.sessionKey, 1))
}

func (m *Machine) setLastTranscript(text string) {
	m.mu.Lock()
	m.lastTranscript = text
	m.mu.Unlock()
}
