// Package vad defines the activity-detector contract the orchestrator drives.
// Detection itself is a commodity: the session configures an Engine with
// tunable thresholds and reacts to its callbacks, it never inspects audio.
package vad

// Callbacks are invoked from the engine's processing goroutine. Handlers must
// not block; the session forwards them into the turn machine's event queue.
type Callbacks struct {
	// OnSpeechStart fires when enough consecutive speech frames accumulate.
	OnSpeechStart func()
	// OnSpeechEnd delivers the captured segment, including pre-speech padding.
	OnSpeechEnd func(samples []int16)
	// OnFrameProcessed reports the per-frame speech probability.
	OnFrameProcessed func(probability float64)
	// OnMisfire fires when a tentative segment is judged not to be speech.
	OnMisfire func()
}

// Config holds detection sensitivity as tunable parameters.
type Config struct {
	// PositiveSpeechThreshold is the probability at or above which a frame
	// counts as speech.
	PositiveSpeechThreshold float64
	// NegativeSpeechThreshold is the probability below which a frame counts
	// as silence while a segment is open. The gap gives hysteresis.
	NegativeSpeechThreshold float64
	// MinSpeechFrames is the minimum segment length before speech-start is
	// reported; shorter bursts end in a misfire.
	MinSpeechFrames int
	// RedemptionFrames is how many silence frames a segment survives before
	// it is closed.
	RedemptionFrames int
	// PreSpeechPadFrames is how many frames before the detected start are
	// prepended to the captured segment.
	PreSpeechPadFrames int
	// FrameSamples is the per-frame sample count fed to the detector.
	FrameSamples int
	SampleRate   int
}

func DefaultConfig() Config {
	return Config{
		PositiveSpeechThreshold: 0.50,
		NegativeSpeechThreshold: 0.35,
		MinSpeechFrames:         3,
		RedemptionFrames:        8,
		PreSpeechPadFrames:      4,
		FrameSamples:            512,
		SampleRate:              16000,
	}
}

// Engine is a running activity detector bound to one capture stream.
// Destroy is terminal; a retried session builds a fresh Engine.
type Engine interface {
	Start() error
	Pause()
	Resume()
	Destroy()
}
