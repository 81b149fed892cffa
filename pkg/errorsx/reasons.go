package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonMicInit   ReasonCode = "mic_init"
	ReasonVADEngine ReasonCode = "vad_engine"

	ReasonSTTTranscribe ReasonCode = "stt_transcribe"
	ReasonSTTRateLimit  ReasonCode = "stt_rate_limit"

	ReasonChatSend ReasonCode = "chat_send"

	ReasonTTSSynthesize ReasonCode = "tts_synthesize"
	ReasonTTSRateLimit  ReasonCode = "tts_rate_limit"

	ReasonPushConnect ReasonCode = "push_connect"
	ReasonPushDecode  ReasonCode = "push_decode"

	ReasonPlayback    ReasonCode = "playback"
	ReasonAudioDecode ReasonCode = "audio_decode"
	ReasonGatewayAuth ReasonCode = "gateway_auth"
)
