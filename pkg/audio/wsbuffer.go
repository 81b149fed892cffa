package audio

import (
	"errors"
	"io"
	"slices"
)

// WriteSeekerBuffer is an in-memory io.WriteSeeker, needed because the WAV
// encoder seeks back to patch the header after writing samples.
type WriteSeekerBuffer struct {
	b []byte
	i int64
}

func (b *WriteSeekerBuffer) Bytes() []byte { return b.b }

func (b *WriteSeekerBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	end := b.i + int64(len(p))
	if n := end - int64(cap(b.b)); n > 0 {
		b.b = slices.Grow(b.b, int(n))
	}
	if end > int64(len(b.b)) {
		b.b = b.b[:end]
	}
	copy(b.b[b.i:end], p)
	b.i = end
	return len(p), nil
}

func (b *WriteSeekerBuffer) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.i + offset
	case io.SeekEnd:
		pos = int64(len(b.b)) + offset
	default:
		return 0, errors.New("audio: invalid seek whence")
	}
	if pos < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.i = pos
	return pos, nil
}
