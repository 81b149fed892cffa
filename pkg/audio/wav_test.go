package audio

import (
	"math"
	"testing"
)

func sine(freq float64, rate, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(12000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sine(440, DefaultSampleRate, 1600)
	data, err := EncodeWAV(in, DefaultSampleRate)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rate != DefaultSampleRate {
		t.Fatalf("expected rate %d, got %d", DefaultSampleRate, rate)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d mismatch: %d != %d", i, in[i], out[i])
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Fatalf("expected error for non-wav input")
	}
}

func TestAmplitudeMeter(t *testing.T) {
	m := NewAmplitudeMeter()
	if m.Level() != 0 {
		t.Fatalf("expected zero level before updates")
	}
	m.Update(sine(200, DefaultSampleRate, 512))
	if m.Level() <= 0 {
		t.Fatalf("expected positive level for loud signal")
	}
	if m.Level() > 1 {
		t.Fatalf("expected level clamped to 1, got %f", m.Level())
	}
	m.Reset()
	if m.Level() != 0 {
		t.Fatalf("expected zero level after reset")
	}
}

func TestAmplitudeMeterSilence(t *testing.T) {
	m := NewAmplitudeMeter()
	m.Update(make([]int16, 512))
	if m.Level() != 0 {
		t.Fatalf("expected zero level for silence, got %f", m.Level())
	}
}
