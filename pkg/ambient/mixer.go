// Package ambient synthesizes or streams soft background audio mixed under
// the agent's spoken reply. A mixer session lives for exactly one speaking
// turn: fade in when playback starts, fade out before teardown, hard stop on
// session close.
package ambient

import (
	"errors"
	"sync"
	"time"
)

type Mode string

const (
	// ModePad is the procedurally synthesized chord pad.
	ModePad Mode = "pad"
	// ModeTrack loops a pre-fetched PCM track.
	ModeTrack Mode = "track"
)

type Config struct {
	Mode   Mode
	Volume float64 // 0-1 target gain
	// FundamentalHz sets the pad chord root. Ignored in track mode.
	FundamentalHz float64
	SampleRate    int
	FadeIn        time.Duration
	FadeOut       time.Duration
	// Track holds the looped PCM samples for ModeTrack.
	Track []int16
}

const (
	DefaultFadeIn  = 1500 * time.Millisecond
	DefaultFadeOut = 1000 * time.Millisecond
)

// Mixer owns at most one live ambient graph. Starting a new graph while a
// fade-out is still pending stops the old one outright; graphs never overlap.
type Mixer struct {
	mu sync.Mutex
	g  *graph
}

type graph struct {
	cfg      Config
	pad      *pad
	trackPos int

	gain      float64
	target    float64
	step      float64 // per-sample gain delta toward target
	fadingOut bool
}

func NewMixer() *Mixer { return &Mixer{} }

// Start creates a fresh ambient graph fading in toward cfg.Volume.
func (m *Mixer) Start(cfg Config) error {
	if cfg.SampleRate <= 0 {
		return errors.New("ambient: sample rate required")
	}
	if cfg.Volume <= 0 {
		return errors.New("ambient: volume must be positive")
	}
	if cfg.FadeIn <= 0 {
		cfg.FadeIn = DefaultFadeIn
	}
	if cfg.FadeOut <= 0 {
		cfg.FadeOut = DefaultFadeOut
	}
	if cfg.Mode == ModeTrack && len(cfg.Track) == 0 {
		return errors.New("ambient: track mode without samples")
	}

	g := &graph{
		cfg:    cfg,
		target: cfg.Volume,
		step:   cfg.Volume / (cfg.FadeIn.Seconds() * float64(cfg.SampleRate)),
	}
	if cfg.Mode == ModePad {
		fundamental := cfg.FundamentalHz
		if fundamental <= 0 {
			fundamental = 110
		}
		g.pad = newPad(fundamental, cfg.SampleRate)
	}

	m.mu.Lock()
	// A pending fade-out does not get to finish; no overlapping graphs.
	m.g = g
	m.mu.Unlock()
	return nil
}

// MixInto adds the ambient signal to a chunk of foreground samples,
// advancing the fade envelope. The graph is released once a fade-out
// completes.
func (m *Mixer) MixInto(out []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.g
	if g == nil {
		return
	}
	for i := range out {
		g.advance()
		if g.gain <= 0 && g.fadingOut {
			m.g = nil
			return
		}
		v := float64(out[i]) + g.sample()*g.gain*32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
}

// FadeOut begins ramping the gain to zero. The graph tears itself down when
// the ramp completes during a later MixInto call.
func (m *Mixer) FadeOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.g
	if g == nil || g.fadingOut {
		return
	}
	g.fadingOut = true
	g.target = 0
	g.step = g.gain / (g.cfg.FadeOut.Seconds() * float64(g.cfg.SampleRate))
}

// StopNow tears the graph down immediately, without a fade. Used on session
// teardown, where no audio may outlive the session.
func (m *Mixer) StopNow() {
	m.mu.Lock()
	m.g = nil
	m.mu.Unlock()
}

// Gain reports the current envelope gain; 0 when no graph is alive.
func (m *Mixer) Gain() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.g == nil {
		return 0
	}
	return m.g.gain
}

// Active reports whether a graph is alive (fading out still counts).
func (m *Mixer) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.g != nil
}

func (g *graph) advance() {
	if g.fadingOut || g.gain > g.target {
		g.gain -= g.step
		if g.gain < g.target {
			g.gain = g.target
		}
		return
	}
	if g.gain < g.target {
		g.gain += g.step
		if g.gain > g.target {
			g.gain = g.target
		}
	}
}

func (g *graph) sample() float64 {
	if g.pad != nil {
		return g.pad.next()
	}
	s := float64(g.cfg.Track[g.trackPos]) / 32768.0
	g.trackPos++
	if g.trackPos >= len(g.cfg.Track) {
		g.trackPos = 0
	}
	return s
}
