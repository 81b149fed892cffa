package audio

import "sync"

// Sink consumes interleaved mono 16-bit PCM for playback. Write blocks until
// the device has accepted the chunk, which paces the playback pump.
type Sink interface {
	Write(samples []int16) error
	Close() error
}

// CaptureSink buffers everything written to it. Used by tests and by the
// text-only response mode, where no device output is wanted.
type CaptureSink struct {
	mu      sync.Mutex
	samples []int16
	closed  bool
}

func NewCaptureSink() *CaptureSink { return &CaptureSink{} }

func (s *CaptureSink) Write(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.samples = append(s.samples, samples...)
	}
	return nil
}

func (s *CaptureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *CaptureSink) Samples() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.samples))
	copy(out, s.samples)
	return out
}

func (s *CaptureSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
