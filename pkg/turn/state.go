package turn

// State is the single conversational turn state. Exactly one is active at a
// time and it is the sole source of truth for which subsystem may act next.
type State string

const (
	StateInitializing State = "initializing"
	StateListening    State = "listening"
	StateRecording    State = "recording"
	StateTranscribing State = "transcribing"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
)

func (s State) String() string { return string(s) }

// acceptsSpeech reports whether a detector segment may enter the turn.
// Anywhere else the user is assumed to be talking over the agent.
func (s State) acceptsSpeech() bool {
	return s == StateListening || s == StateRecording
}
