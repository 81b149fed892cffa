package gateway

// EventState classifies a push event from the agent gateway.
type EventState string

const (
	StateDelta   EventState = "delta"
	StateFinal   EventState = "final"
	StateError   EventState = "error"
	StateAborted EventState = "aborted"
)

// PushEvent is one server-to-client event on the per-conversation channel.
// Delivery is at-least-once; consumers must tolerate duplicates.
type PushEvent struct {
	SessionKey string     `json:"sessionKey"`
	State      EventState `json:"state"`
	Message    string     `json:"message"`
}

// PushChannel is an open subscription to the gateway's event stream.
// Reconnection policy lives behind this interface, not in its consumers.
type PushChannel interface {
	// Events yields decoded events until the channel is closed.
	Events() <-chan PushEvent
	// Close tears the subscription down. Idempotent.
	Close()
}
