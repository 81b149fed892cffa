package audio

import (
	"math"
	"sync/atomic"
)

// AmplitudeMeter tracks the short-window RMS amplitude of played audio,
// scaled to an approximate 0-1 mouth-openness range for lip-sync.
type AmplitudeMeter struct {
	level atomic.Uint64

	// scale maps typical speech RMS (well below full scale) onto 0-1.
	scale float64
}

func NewAmplitudeMeter() *AmplitudeMeter {
	return &AmplitudeMeter{scale: 6.0}
}

// Update folds a chunk of samples into the meter.
func (m *AmplitudeMeter) Update(samples []int16) {
	if len(samples) == 0 {
		return
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	level := math.Min(1.0, rms*m.scale)
	m.level.Store(math.Float64bits(level))
}

// Reset zeroes the meter, called when playback stops.
func (m *AmplitudeMeter) Reset() {
	m.level.Store(0)
}

// Level returns the current 0-1 amplitude. Safe to poll from any goroutine.
func (m *AmplitudeMeter) Level() float64 {
	return math.Float64frombits(m.level.Load())
}
