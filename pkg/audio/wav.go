// Package audio provides the PCM plumbing shared by the voice pipeline:
// WAV encode/decode for the gateway payloads, the playback sink contract,
// and the lip-sync amplitude meter.
package audio

import (
	"bytes"
	"errors"
	"fmt"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/openclaw/voiceloop/pkg/errorsx"
)

const (
	// DefaultSampleRate is the capture rate the transcription service expects.
	DefaultSampleRate = 16000
	bitDepth          = 16
	numChannels       = 1
)

// EncodeWAV encodes mono 16-bit PCM samples into a WAV byte stream.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	var buf WriteSeekerBuffer
	enc := wav.NewEncoder(&buf, sampleRate, bitDepth, numChannels, 1)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	err := enc.Write(&gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing wav encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWAV decodes a WAV byte stream into mono 16-bit PCM samples and the
// source sample rate. Multi-channel input is downmixed by taking channel 0.
func DecodeWAV(data []byte) ([]int16, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errorsx.Wrap(errors.New("not a wav stream"), errorsx.ReasonAudioDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, errorsx.Wrap(fmt.Errorf("decoding wav: %w", err), errorsx.ReasonAudioDecode)
	}
	ch := buf.Format.NumChannels
	if ch <= 0 {
		ch = 1
	}
	out := make([]int16, 0, len(buf.Data)/ch)
	for i := 0; i < len(buf.Data); i += ch {
		v := buf.Data[i]
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out = append(out, int16(v))
	}
	return out, buf.Format.SampleRate, nil
}
