package voiceloop

import (
	"time"

	"github.com/openclaw/voiceloop/pkg/adapters/tts"
	"github.com/openclaw/voiceloop/pkg/ambient"
	"github.com/openclaw/voiceloop/pkg/speech"
)

// Settings is the immutable per-session snapshot of the user's voice and
// ambient preferences. The turn machine and the player read it but never
// mutate it; ReloadSettings swaps in a whole new snapshot.
type Settings struct {
	Voice         string
	Rate          float64
	Pitch         float64
	Volume        float64
	AutoSendDelay time.Duration

	AmbientEnabled bool
	AmbientVolume  float64
	AmbientSource  string
	AmbientHz      float64
	// AmbientTrack holds the decoded PCM for track mode, fetched once at
	// snapshot time.
	AmbientTrack []int16

	ResponseMode string
	Language     string
}

// Snapshot captures the reloadable parts of the config.
func (c Config) Snapshot() Settings {
	delay := time.Duration(c.Voice.AutoSendDelaySeconds * float64(time.Second))
	if delay <= 0 {
		delay = 3 * time.Second
	}
	return Settings{
		Voice:          c.Voice.Voice,
		Rate:           c.Voice.Rate,
		Pitch:          c.Voice.Pitch,
		Volume:         c.Voice.Volume,
		AutoSendDelay:  delay,
		AmbientEnabled: c.Ambient.Enabled,
		AmbientVolume:  c.Ambient.Volume,
		AmbientSource:  c.Ambient.Source,
		AmbientHz:      c.Ambient.FundamentalHz,
		ResponseMode:   c.ResponseMode,
		Language:       c.Language,
	}
}

// playOptions maps the snapshot onto one playback run.
func (s Settings) playOptions() speech.Options {
	opts := speech.Options{
		Params: tts.Params{Voice: s.Voice, Rate: s.Rate, Pitch: s.Pitch},
		Volume: s.Volume,
	}
	if s.AmbientEnabled {
		cfg := ambient.Config{
			Mode:          ambient.ModePad,
			Volume:        s.AmbientVolume,
			FundamentalHz: s.AmbientHz,
		}
		if s.AmbientSource == "track" && len(s.AmbientTrack) > 0 {
			cfg.Mode = ambient.ModeTrack
			cfg.Track = s.AmbientTrack
		}
		opts.Ambient = &cfg
	}
	return opts
}
