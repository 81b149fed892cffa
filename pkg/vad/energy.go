package vad

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/openclaw/voiceloop/pkg/errorsx"
)

// EnergyEngine detects speech segments from smoothed RMS energy with
// hysteresis. It reads fixed-size PCM frames from a capture channel and
// drives the Callbacks from a single goroutine, so callback order matches
// frame order.
type EnergyEngine struct {
	cfg    Config
	cb     Callbacks
	source <-chan []int16

	paused    atomic.Bool
	destroyed atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	// smoothing window over recent frame energies
	history []float64
	histIdx int
}

const smoothingFrames = 5

func NewEnergyEngine(cfg Config, source <-chan []int16, cb Callbacks) *EnergyEngine {
	if cfg.FrameSamples <= 0 {
		cfg = DefaultConfig()
	}
	return &EnergyEngine{
		cfg:     cfg,
		cb:      cb,
		source:  source,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		history: make([]float64, smoothingFrames),
	}
}

func (e *EnergyEngine) Start() error {
	if e.source == nil {
		return errorsx.Wrap(errors.New("no capture source"), errorsx.ReasonMicInit)
	}
	if e.destroyed.Load() {
		return errorsx.Wrap(errors.New("engine destroyed"), errorsx.ReasonVADEngine)
	}
	e.startOnce.Do(func() {
		go e.loop()
	})
	return nil
}

func (e *EnergyEngine) Pause() {
	e.paused.Store(true)
}

func (e *EnergyEngine) Resume() {
	e.paused.Store(false)
}

func (e *EnergyEngine) Destroy() {
	e.destroyed.Store(true)
	e.stopOnce.Do(func() {
		close(e.stop)
	})
}

func (e *EnergyEngine) loop() {
	defer close(e.done)

	var (
		inSpeech     bool
		started      bool // speech-start already reported
		speechFrames int  // frames above the negative threshold this segment
		segment      []int16
		redemption   int
		pad          [][]int16
	)

	reset := func() {
		inSpeech = false
		started = false
		speechFrames = 0
		segment = nil
		redemption = 0
	}

	for {
		select {
		case <-e.stop:
			return
		case frame, ok := <-e.source:
			if !ok {
				return
			}
			if e.paused.Load() {
				// Dropped frames reset any open segment; resuming starts clean.
				reset()
				pad = pad[:0]
				continue
			}

			prob := e.probability(frame)
			if e.cb.OnFrameProcessed != nil {
				e.cb.OnFrameProcessed(prob)
			}

			switch {
			case !inSpeech && prob >= e.cfg.PositiveSpeechThreshold:
				inSpeech = true
				speechFrames = 1
				redemption = 0
				segment = segment[:0]
				for _, p := range pad {
					segment = append(segment, p...)
				}
				segment = append(segment, frame...)
			case inSpeech:
				segment = append(segment, frame...)
				if prob < e.cfg.NegativeSpeechThreshold {
					redemption++
					if redemption > e.cfg.RedemptionFrames {
						if started {
							if e.cb.OnSpeechEnd != nil {
								out := make([]int16, len(segment))
								copy(out, segment)
								e.cb.OnSpeechEnd(out)
							}
						} else if e.cb.OnMisfire != nil {
							e.cb.OnMisfire()
						}
						reset()
					}
				} else {
					redemption = 0
					speechFrames++
					if !started && speechFrames >= e.cfg.MinSpeechFrames {
						started = true
						if e.cb.OnSpeechStart != nil {
							e.cb.OnSpeechStart()
						}
					}
				}
			}

			// Keep the rolling pre-speech padding.
			pad = append(pad, frame)
			if len(pad) > e.cfg.PreSpeechPadFrames {
				pad = pad[1:]
			}
		}
	}
}

// probability maps smoothed RMS energy onto a 0-1 speech likelihood.
func (e *EnergyEngine) probability(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := 0.0
	if len(frame) > 0 {
		rms = math.Sqrt(sum / float64(len(frame)))
	}
	e.history[e.histIdx] = rms
	e.histIdx = (e.histIdx + 1) % len(e.history)
	var avg float64
	for _, h := range e.history {
		avg += h
	}
	avg /= float64(len(e.history))
	return math.Min(1.0, avg*12.0)
}

var _ Engine = (*EnergyEngine)(nil)
