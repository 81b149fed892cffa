// Package speech plays synthesized replies. The player pulls audio from a
// text-to-speech adapter, pumps it to the output sink in small chunks with
// ambient audio mixed underneath, and feeds an amplitude meter for lip-sync.
package speech

import (
	"context"
	"log/slog"
	"time"

	"github.com/openclaw/voiceloop/pkg/adapters/tts"
	"github.com/openclaw/voiceloop/pkg/ambient"
	"github.com/openclaw/voiceloop/pkg/audio"
	"github.com/openclaw/voiceloop/pkg/errorsx"
	"github.com/openclaw/voiceloop/pkg/logging"
	"github.com/openclaw/voiceloop/pkg/metrics"
)

const (
	// chunkSamples is the pump granularity. Small enough that the amplitude
	// meter and cancellation stay responsive, large enough to not thrash the
	// sink.
	chunkSamples = 512

	// DefaultFallbackDelay approximates how long the reply would have taken
	// to speak when synthesis fails and the text is shown silently instead.
	DefaultFallbackDelay = 2 * time.Second

	// fadeTailMax bounds how long the ambient fade-out tail may keep the
	// sink busy after the last speech sample.
	fadeTailMax = 5 * time.Second
)

// Options carry the per-turn playback parameters from the settings snapshot.
type Options struct {
	Params tts.Params
	// Volume scales the synthesized speech, 0-1.
	Volume float64
	// Ambient enables the background pad or track under the reply.
	// Nil means no ambient audio this turn.
	Ambient *ambient.Config
}

// Player turns reply text into audible output. Play is synchronous; the
// caller decides what state to resume once it returns.
type Player struct {
	synth         tts.Synthesizer
	sink          audio.Sink
	meter         *audio.AmplitudeMeter
	mixer         *ambient.Mixer
	observer      metrics.Observer
	logger        *slog.Logger
	fallbackDelay time.Duration
}

func NewPlayer(synth tts.Synthesizer, sink audio.Sink, mixer *ambient.Mixer, observer metrics.Observer) *Player {
	if observer == nil {
		observer = metrics.NoopObserver{}
	}
	return &Player{
		synth:         synth,
		sink:          sink,
		meter:         audio.NewAmplitudeMeter(),
		mixer:         mixer,
		observer:      observer,
		logger:        logging.NewComponentLogger(slog.Default(), "player"),
		fallbackDelay: DefaultFallbackDelay,
	}
}

// SetFallbackDelay overrides the silent-fallback pause. Tests shrink it.
func (p *Player) SetFallbackDelay(d time.Duration) { p.fallbackDelay = d }

// Amplitude returns the current 0-1 output level for lip-sync polling.
func (p *Player) Amplitude() float64 { return p.meter.Level() }

// Play synthesizes and plays one reply. A synthesis or decode failure is
// degraded, not fatal: the player waits roughly as long as the reply would
// have taken and returns nil so the caller resumes listening with the text
// shown silently. Only sink write failures surface as errors.
func (p *Player) Play(ctx context.Context, text string, opts Options) error {
	started := time.Now()

	data, err := p.synth.Synthesize(ctx, text, opts.Params)
	if err != nil {
		p.logger.Warn("synthesis_failed_showing_text_only", "vendor", p.synth.Name(), "error", err)
		p.observer.RecordEvent(metrics.Event("tts_fallback", "", 1))
		return p.silentFallback(ctx)
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		p.logger.Warn("reply_audio_undecodable", "error", errorsx.Wrap(err, errorsx.ReasonAudioDecode))
		return p.silentFallback(ctx)
	}

	if opts.Ambient != nil && p.mixer != nil {
		cfg := *opts.Ambient
		cfg.SampleRate = rate
		if err := p.mixer.Start(cfg); err != nil {
			p.logger.Warn("ambient_start_failed", "error", err)
		}
	}

	volume := opts.Volume
	if volume <= 0 || volume > 1 {
		volume = 1
	}

	defer p.meter.Reset()
	chunk := make([]int16, chunkSamples)
	for off := 0; off < len(samples); off += chunkSamples {
		if err := ctx.Err(); err != nil {
			p.stopAmbient()
			return err
		}
		n := copy(chunk, samples[off:])
		buf := chunk[:n]
		for i, s := range buf {
			buf[i] = int16(float64(s) * volume)
		}
		if p.mixer != nil {
			p.mixer.MixInto(buf)
		}
		p.meter.Update(buf)
		if err := p.sink.Write(buf); err != nil {
			p.stopAmbient()
			return errorsx.Wrap(err, errorsx.ReasonPlayback)
		}
	}
	p.meter.Reset()

	if err := p.drainAmbient(ctx, rate); err != nil {
		return err
	}

	p.observer.RecordEvent(metrics.Event("speak_duration_ms", "", float64(time.Since(started).Milliseconds())))
	return nil
}

// drainAmbient fades the ambient graph out and keeps the sink fed until the
// fade completes, so the pad never cuts off abruptly behind the last word.
func (p *Player) drainAmbient(ctx context.Context, rate int) error {
	if p.mixer == nil || !p.mixer.Active() {
		return nil
	}
	p.mixer.FadeOut()
	maxChunks := int(fadeTailMax.Seconds() * float64(rate) / chunkSamples)
	for i := 0; i < maxChunks && p.mixer.Active(); i++ {
		if err := ctx.Err(); err != nil {
			p.mixer.StopNow()
			return err
		}
		tail := make([]int16, chunkSamples)
		p.mixer.MixInto(tail)
		if err := p.sink.Write(tail); err != nil {
			p.mixer.StopNow()
			return errorsx.Wrap(err, errorsx.ReasonPlayback)
		}
	}
	p.mixer.StopNow()
	return nil
}

func (p *Player) stopAmbient() {
	if p.mixer != nil {
		p.mixer.StopNow()
	}
}

func (p *Player) silentFallback(ctx context.Context) error {
	select {
	case <-time.After(p.fallbackDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
