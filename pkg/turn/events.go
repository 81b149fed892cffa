package turn

// Kind discriminates the events feeding the machine. All five external
// sources (detector, transcription results, timers, push channel, playback)
// funnel through the same queue so transitions apply in a total order.
type Kind string

const (
	// Detector lifecycle and segments.
	KindDetectorReady  Kind = "detector_ready"
	KindDetectorFailed Kind = "detector_failed"
	KindSpeechStart    Kind = "speech_start"
	KindSpeechEnd      Kind = "speech_end"
	KindMisfire        Kind = "misfire"

	// Transcription result for a segment handed to Actions.Transcribe.
	// Failures arrive as an empty transcript; the turn just continues.
	KindTranscript Kind = "transcript"

	// Auto-send countdown expiry.
	KindTimerFired Kind = "timer_fired"

	// UI operations.
	KindManualSend Kind = "manual_send"
	KindRetry      Kind = "retry"

	// Push channel.
	KindReplyDelta  Kind = "reply_delta"
	KindReplyFinal  Kind = "reply_final"
	KindReplyFailed Kind = "reply_failed"

	// Outcomes of actions started by the machine.
	KindSendFailed Kind = "send_failed"
	KindSpeakDone  Kind = "speak_done"
)

// Event is one unit of input to the machine.
type Event struct {
	Kind    Kind
	Text    string
	Err     error
	Samples []int16
	// Seq matches an asynchronous result to the request that started it;
	// carries the transcription sequence for KindTranscript and the timer
	// generation for KindTimerFired. Stale values are dropped.
	Seq int
}
