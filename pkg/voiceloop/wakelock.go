package voiceloop

// WakeLock keeps the host device awake for the session's lifetime. Platforms
// without the concept plug in the no-op.
type WakeLock interface {
	Acquire() error
	Release()
}

type NoopWakeLock struct{}

func (NoopWakeLock) Acquire() error { return nil }
func (NoopWakeLock) Release()       {}
