// Package voiceloop assembles the voice conversation session: capture and
// activity detection, transcription, the turn-taking machine, the gateway
// push channel, speech playback, and ambient audio, created and torn down as
// one unit.
package voiceloop

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/voiceloop/pkg/adapters/stt"
	"github.com/openclaw/voiceloop/pkg/ambient"
	"github.com/openclaw/voiceloop/pkg/audio"
	"github.com/openclaw/voiceloop/pkg/gateway"
	"github.com/openclaw/voiceloop/pkg/logging"
	"github.com/openclaw/voiceloop/pkg/metrics"
	"github.com/openclaw/voiceloop/pkg/providers/deepgram"
	"github.com/openclaw/voiceloop/pkg/speech"
	"github.com/openclaw/voiceloop/pkg/turn"
	"github.com/openclaw/voiceloop/pkg/vad"
)

// textModeReadingPause stands in for playback time when replies are shown
// silently instead of spoken.
const textModeReadingPause = 4 * time.Second

// EngineFactory builds an activity detector bound to the capture stream.
type EngineFactory func(cfg vad.Config, cb vad.Callbacks) (vad.Engine, error)

// Deps are the externally owned pieces a session coordinates.
type Deps struct {
	Client *gateway.Client
	// Source delivers fixed-size mono PCM frames from the microphone.
	Source <-chan []int16
	// Sink receives playback audio. Defaults to a capture sink, which is
	// effectively silent output.
	Sink     audio.Sink
	WakeLock WakeLock
	Observer metrics.Observer
	// EngineFactory overrides detector construction. Tests inject fakes.
	EngineFactory EngineFactory
	// Transcriber overrides the provider selected by the config.
	Transcriber stt.Transcriber
}

// Session owns one voice conversation end to end. Nothing in it is shared
// across sessions; switching agents means closing this one and building a
// fresh one.
type Session struct {
	key     string
	agentID string
	cfg     Config

	client   *gateway.Client
	stt      stt.Transcriber
	machine  *turn.Machine
	player   *speech.Player
	mixer    *ambient.Mixer
	sink     audio.Sink
	wakeLock WakeLock
	observer metrics.Observer
	logger   *slog.Logger

	settings atomic.Pointer[Settings]
	prob     atomic.Uint64

	engineMu      sync.Mutex
	engine        vad.Engine
	engineFactory EngineFactory
	detectorCfg   vad.Config

	sub gateway.PushChannel

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// NewSession builds and starts a session. The detector comes up
// asynchronously; the session is in the initializing state until it reports
// ready.
func NewSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Client == nil {
		return nil, errors.New("voiceloop: gateway client is required")
	}
	if deps.Sink == nil {
		deps.Sink = audio.NewCaptureSink()
	}
	if deps.WakeLock == nil {
		deps.WakeLock = NoopWakeLock{}
	}
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		key:           uuid.NewString(),
		agentID:       cfg.Gateway.AgentID,
		cfg:           cfg,
		client:        deps.Client,
		mixer:         ambient.NewMixer(),
		sink:          deps.Sink,
		wakeLock:      deps.WakeLock,
		observer:      deps.Observer,
		logger:        logging.NewComponentLogger(slog.Default(), "session"),
		detectorCfg:   cfg.Detector.engineConfig(),
		engineFactory: deps.EngineFactory,
		ctx:           ctx,
		cancel:        cancel,
		closed:        make(chan struct{}),
	}
	if s.engineFactory == nil {
		source := deps.Source
		s.engineFactory = func(cfg vad.Config, cb vad.Callbacks) (vad.Engine, error) {
			return vad.NewEnergyEngine(cfg, source, cb), nil
		}
	}

	s.stt = deps.Transcriber
	if s.stt == nil {
		transcriber, err := buildTranscriber(cfg.Vendors.STT, deps.Client)
		if err != nil {
			cancel()
			return nil, err
		}
		s.stt = transcriber
	}

	snapshot := cfg.Snapshot()
	s.loadAmbientTrack(&snapshot)
	s.settings.Store(&snapshot)

	s.player = speech.NewPlayer(deps.Client.TTS(), deps.Sink, s.mixer, deps.Observer)

	if err := deps.WakeLock.Acquire(); err != nil {
		s.logger.Warn("wake_lock_unavailable", "error", err)
	}

	s.machine = turn.NewMachine(s, turn.Config{
		Language:      cfg.Language,
		AutoSendDelay: func() time.Duration { return s.snapshot().AutoSendDelay },
		Observer:      deps.Observer,
		SessionKey:    s.key,
	})

	sub, err := s.subscribe(ctx)
	if err != nil {
		s.machine.Close()
		deps.WakeLock.Release()
		cancel()
		return nil, err
	}
	s.sub = sub
	go s.pumpPushEvents(sub)

	go s.startDetector()

	s.observer.RecordEvent(metrics.Event("session_started", s.key, 1))
	return s, nil
}

func buildTranscriber(cfg VendorConfig, client *gateway.Client) (stt.Transcriber, error) {
	switch cfg.Provider {
	case "", "gateway":
		return client.STT(), nil
	case "deepgram":
		dgCfg, err := deepgram.FromSettings(cfg.Settings)
		if err != nil {
			return nil, err
		}
		return deepgram.New(dgCfg)
	default:
		return nil, errors.New("voiceloop: unknown stt provider " + cfg.Provider)
	}
}

func (s *Session) subscribe(ctx context.Context) (gateway.PushChannel, error) {
	if s.cfg.Push.Transport == "websocket" {
		return s.client.SubscribeWebsocket(ctx, s.key)
	}
	return s.client.Subscribe(ctx, s.key)
}

// Key returns the session identifier used on the push channel and sends.
func (s *Session) Key() string { return s.key }

func (s *Session) State() turn.State      { return s.machine.State() }
func (s *Session) ErrMessage() string     { return s.machine.ErrMessage() }
func (s *Session) BufferText() string     { return s.machine.BufferText() }
func (s *Session) ResponseText() string   { return s.machine.ResponseText() }
func (s *Session) LastTranscript() string { return s.machine.LastTranscript() }

// SpeechProbability is the detector's latest per-frame speech likelihood,
// polled by the UI for visual feedback.
func (s *Session) SpeechProbability() float64 {
	return math.Float64frombits(s.prob.Load())
}

// OutputAmplitude is the 0-1 playback level for lip-sync animation.
func (s *Session) OutputAmplitude() float64 { return s.player.Amplitude() }

// ManualSend force-sends whatever is in the accumulation buffer.
func (s *Session) ManualSend() { s.machine.Post(turn.Event{Kind: turn.KindManualSend}) }

// Retry recovers from the error state by rebuilding the detector.
func (s *Session) Retry() { s.machine.Post(turn.Event{Kind: turn.KindRetry}) }

// ReloadSettings swaps in a fresh settings snapshot mid-session. The next
// timer schedule and the next spoken reply pick it up; nothing restarts.
func (s *Session) ReloadSettings(cfg Config) {
	snapshot := cfg.Snapshot()
	s.loadAmbientTrack(&snapshot)
	s.settings.Store(&snapshot)
	s.logger.Info("settings_reloaded", "voice", snapshot.Voice, "ambient", snapshot.AmbientEnabled)
}

// ReloadSettingsFromFile re-reads the config file and applies the new
// snapshot, for hosts that let the user edit preferences on disk.
func (s *Session) ReloadSettingsFromFile(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	s.ReloadSettings(cfg)
	return nil
}

// SetVisible pauses the detector while the app is hidden. On return it
// resumes only if the machine still owns the turn; it never resumes into the
// middle of the agent's reply.
func (s *Session) SetVisible(visible bool) {
	s.engineMu.Lock()
	engine := s.engine
	s.engineMu.Unlock()
	if engine == nil {
		return
	}
	if !visible {
		engine.Pause()
		return
	}
	switch s.machine.State() {
	case turn.StateListening, turn.StateRecording:
		engine.Resume()
	}
}

// Close tears the whole session down as an atomic unit: timer and machine
// first, then detector, push channel, playback output, ambient graph, and
// finally the wake lock. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.machine.Close()
		s.cancel()
		s.engineMu.Lock()
		if s.engine != nil {
			s.engine.Destroy()
			s.engine = nil
		}
		s.engineMu.Unlock()
		if s.sub != nil {
			s.sub.Close()
		}
		if err := s.sink.Close(); err != nil {
			s.logger.Warn("sink_close_failed", "error", err)
		}
		s.mixer.StopNow()
		s.wakeLock.Release()
		s.observer.RecordEvent(metrics.Event("session_closed", s.key, 1))
		close(s.closed)
	})
}

// Done is closed once teardown completes.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) snapshot() Settings { return *s.settings.Load() }

// loadAmbientTrack fetches and decodes the looped track once per snapshot so
// playback never blocks on the network.
func (s *Session) loadAmbientTrack(snapshot *Settings) {
	if !snapshot.AmbientEnabled || snapshot.AmbientSource != "track" {
		return
	}
	data, err := s.client.FetchAudio(s.ctx, s.cfg.Ambient.TrackURL)
	if err != nil {
		s.logger.Warn("ambient_track_unavailable_using_pad", "error", err)
		snapshot.AmbientSource = "pad"
		return
	}
	samples, _, err := audio.DecodeWAV(data)
	if err != nil {
		s.logger.Warn("ambient_track_undecodable_using_pad", "error", err)
		snapshot.AmbientSource = "pad"
		return
	}
	snapshot.AmbientTrack = samples
}

func (s *Session) startDetector() {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	engine, err := s.engineFactory(s.detectorCfg, vad.Callbacks{
		OnSpeechStart: func() {
			s.machine.Post(turn.Event{Kind: turn.KindSpeechStart})
		},
		OnSpeechEnd: func(samples []int16) {
			s.machine.Post(turn.Event{Kind: turn.KindSpeechEnd, Samples: samples})
		},
		OnFrameProcessed: func(probability float64) {
			s.prob.Store(math.Float64bits(probability))
		},
		OnMisfire: func() {
			s.machine.Post(turn.Event{Kind: turn.KindMisfire})
		},
	})
	if err == nil {
		err = engine.Start()
	}
	if err != nil {
		s.machine.Post(turn.Event{Kind: turn.KindDetectorFailed, Err: err})
		return
	}
	s.engine = engine
	s.machine.Post(turn.Event{Kind: turn.KindDetectorReady})
}

func (s *Session) pumpPushEvents(sub gateway.PushChannel) {
	for ev := range sub.Events() {
		switch ev.State {
		case gateway.StateDelta:
			s.machine.Post(turn.Event{Kind: turn.KindReplyDelta, Text: ev.Message})
		case gateway.StateFinal:
			s.machine.Post(turn.Event{Kind: turn.KindReplyFinal, Text: ev.Message})
		case gateway.StateError, gateway.StateAborted:
			s.machine.Post(turn.Event{Kind: turn.KindReplyFailed, Text: ev.Message})
		default:
			s.logger.Warn("unknown_push_event", "state", string(ev.State))
		}
	}
}

// Transcribe implements turn.Actions. Failures are swallowed into an empty
// transcript; the conversation just continues.
func (s *Session) Transcribe(seq int, samples []int16) {
	go func() {
		text := ""
		wavData, err := audio.EncodeWAV(samples, s.detectorCfg.SampleRate)
		if err == nil {
			text, err = s.stt.Transcribe(s.ctx, wavData, s.snapshot().Language)
		}
		if err != nil {
			s.logger.Warn("transcription_failed", "error", err)
			s.observer.RecordEvent(metrics.Event("stt_failure", s.key, 1))
		}
		s.machine.Post(turn.Event{Kind: turn.KindTranscript, Seq: seq, Text: text})
	}()
}

// Send implements turn.Actions.
func (s *Session) Send(text string) {
	go func() {
		if err := s.client.SendMessage(s.ctx, s.agentID, s.key, text); err != nil {
			s.machine.Post(turn.Event{Kind: turn.KindSendFailed, Err: err})
		}
	}()
}

// Speak implements turn.Actions. In text mode the reply is shown silently
// and the session waits out a reading pause instead of playing audio.
func (s *Session) Speak(text string) {
	go func() {
		snapshot := s.snapshot()
		if snapshot.ResponseMode == "text" {
			select {
			case <-time.After(textModeReadingPause):
			case <-s.ctx.Done():
			}
			s.machine.Post(turn.Event{Kind: turn.KindSpeakDone})
			return
		}
		err := s.player.Play(s.ctx, text, snapshot.playOptions())
		s.machine.Post(turn.Event{Kind: turn.KindSpeakDone, Err: err})
	}()
}

// RestartDetector implements turn.Actions for retry.
func (s *Session) RestartDetector() {
	go func() {
		s.engineMu.Lock()
		if s.engine != nil {
			s.engine.Destroy()
			s.engine = nil
		}
		s.engineMu.Unlock()
		s.startDetector()
	}()
}

// SessionClosed implements turn.Actions: the user spoke an exit word.
func (s *Session) SessionClosed() {
	go s.Close()
}

var _ turn.Actions = (*Session)(nil)
