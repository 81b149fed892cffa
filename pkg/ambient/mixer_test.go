package ambient

import (
	"testing"
	"time"
)

func testPadConfig() Config {
	return Config{
		Mode:          ModePad,
		Volume:        0.4,
		FundamentalHz: 110,
		SampleRate:    16000,
		FadeIn:        50 * time.Millisecond,
		FadeOut:       30 * time.Millisecond,
	}
}

func mixChunks(m *Mixer, chunks, size int) []int16 {
	var all []int16
	for i := 0; i < chunks; i++ {
		buf := make([]int16, size)
		m.MixInto(buf)
		all = append(all, buf...)
	}
	return all
}

func TestMixerFadeInProducesAudio(t *testing.T) {
	m := NewMixer()
	if err := m.Start(testPadConfig()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Two seconds' worth, far past the fade-in ramp.
	out := mixChunks(m, 62, 512)
	var nonZero int
	for _, s := range out[len(out)/2:] {
		if s != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Fatalf("expected audible pad after fade-in")
	}
	if g := m.Gain(); g < 0.39 || g > 0.41 {
		t.Fatalf("expected gain settled at volume, got %f", g)
	}
}

func TestMixerFadeOutReleasesGraph(t *testing.T) {
	m := NewMixer()
	if err := m.Start(testPadConfig()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mixChunks(m, 20, 512)
	m.FadeOut()
	// Pump well past the fade-out ramp.
	mixChunks(m, 20, 512)
	if m.Active() {
		t.Fatalf("expected graph released after fade-out completes")
	}
	if m.Gain() != 0 {
		t.Fatalf("expected zero gain after fade-out, got %f", m.Gain())
	}
}

func TestMixerStopNowIsImmediate(t *testing.T) {
	m := NewMixer()
	if err := m.Start(testPadConfig()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mixChunks(m, 10, 512)
	m.StopNow()
	if m.Gain() != 0 {
		t.Fatalf("expected zero gain immediately after StopNow, got %f", m.Gain())
	}
	buf := make([]int16, 512)
	m.MixInto(buf)
	for _, s := range buf {
		if s != 0 {
			t.Fatalf("expected silence after StopNow")
		}
	}
}

func TestMixerRestartReplacesPendingFadeOut(t *testing.T) {
	m := NewMixer()
	if err := m.Start(testPadConfig()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mixChunks(m, 10, 512)
	m.FadeOut()
	// Restart before the fade-out has a chance to finish.
	if err := m.Start(testPadConfig()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	// The replacement graph begins its own fade-in from zero.
	if g := m.Gain(); g != 0 {
		t.Fatalf("expected fresh graph starting at zero gain, got %f", g)
	}
	mixChunks(m, 62, 512)
	if g := m.Gain(); g < 0.39 {
		t.Fatalf("expected replacement graph to reach volume, got %f", g)
	}
}

func TestMixerTrackModeLoops(t *testing.T) {
	track := []int16{1000, -1000, 500, -500}
	cfg := testPadConfig()
	cfg.Mode = ModeTrack
	cfg.Track = track
	m := NewMixer()
	if err := m.Start(cfg); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Consume more samples than the track holds; looping must not run out.
	out := mixChunks(m, 10, 512)
	var nonZero int
	for _, s := range out[len(out)/2:] {
		if s != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Fatalf("expected looped track audio")
	}
}

func TestMixerTrackModeRequiresSamples(t *testing.T) {
	cfg := testPadConfig()
	cfg.Mode = ModeTrack
	cfg.Track = nil
	if err := NewMixer().Start(cfg); err == nil {
		t.Fatalf("expected error for empty track")
	}
}
