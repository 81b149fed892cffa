package metrics

import "time"

// MetricsEvent is a single observation emitted by the orchestrator
// (turn sends, reply latency, playback duration, session lifecycle).
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Event builds a MetricsEvent stamped with the current time and session key.
func Event(name, sessionKey string, value float64) MetricsEvent {
	return MetricsEvent{
		Name:  name,
		Time:  time.Now(),
		Value: value,
		Tags:  map[string]string{"session_key": sessionKey},
	}
}
