package voiceloop

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/openclaw/voiceloop/pkg/vad"
)

type Config struct {
	Gateway      GatewayConfig  `mapstructure:"gateway"`
	Vendors      VendorsConfig  `mapstructure:"vendors"`
	Push         PushConfig     `mapstructure:"push"`
	Voice        VoiceConfig    `mapstructure:"voice"`
	Ambient      AmbientConfig  `mapstructure:"ambient"`
	Detector     DetectorConfig `mapstructure:"detector"`
	Language     string         `mapstructure:"language"`
	ResponseMode string         `mapstructure:"response_mode"`
	LogLevel     string         `mapstructure:"log_level"`
	LogFormat    string         `mapstructure:"log_format"`
}

type GatewayConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Token         string `mapstructure:"token"`
	AgentID       string `mapstructure:"agent_id"`
	STTTimeoutMS  int    `mapstructure:"stt_timeout_ms"`
	SendTimeoutMS int    `mapstructure:"send_timeout_ms"`
	TTSTimeoutMS  int    `mapstructure:"tts_timeout_ms"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
}

type PushConfig struct {
	// Transport selects the push channel: "sse" or "websocket".
	Transport string `mapstructure:"transport"`
}

type VoiceConfig struct {
	Voice                string  `mapstructure:"voice"`
	Rate                 float64 `mapstructure:"rate"`
	Pitch                float64 `mapstructure:"pitch"`
	Volume               float64 `mapstructure:"volume"`
	AutoSendDelaySeconds float64 `mapstructure:"auto_send_delay_seconds"`
}

type AmbientConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Volume  float64 `mapstructure:"volume"`
	// Source is "pad" for the synthesized chord pad or "track" for a
	// looped remote audio file.
	Source        string  `mapstructure:"source"`
	TrackURL      string  `mapstructure:"track_url"`
	FundamentalHz float64 `mapstructure:"fundamental_hz"`
}

type DetectorConfig struct {
	PositiveThreshold  float64 `mapstructure:"positive_threshold"`
	NegativeThreshold  float64 `mapstructure:"negative_threshold"`
	MinSpeechFrames    int     `mapstructure:"min_speech_frames"`
	RedemptionFrames   int     `mapstructure:"redemption_frames"`
	PreSpeechPadFrames int     `mapstructure:"pre_speech_pad_frames"`
	FrameSamples       int     `mapstructure:"frame_samples"`
	SampleRate         int     `mapstructure:"sample_rate"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("vendors.stt.provider", "gateway")
	v.SetDefault("push.transport", "sse")
	v.SetDefault("voice.rate", 1.0)
	v.SetDefault("voice.pitch", 1.0)
	v.SetDefault("voice.volume", 1.0)
	v.SetDefault("voice.auto_send_delay_seconds", 3.0)
	v.SetDefault("ambient.enabled", false)
	v.SetDefault("ambient.volume", 0.25)
	v.SetDefault("ambient.source", "pad")
	v.SetDefault("ambient.fundamental_hz", 110.0)
	v.SetDefault("detector.positive_threshold", 0.50)
	v.SetDefault("detector.negative_threshold", 0.35)
	v.SetDefault("detector.min_speech_frames", 3)
	v.SetDefault("detector.redemption_frames", 8)
	v.SetDefault("detector.pre_speech_pad_frames", 4)
	v.SetDefault("detector.frame_samples", 512)
	v.SetDefault("detector.sample_rate", 16000)
	v.SetDefault("language", "en")
	v.SetDefault("response_mode", "voice")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg.Gateway.BaseURL = os.ExpandEnv(cfg.Gateway.BaseURL)
	cfg.Gateway.Token = os.ExpandEnv(cfg.Gateway.Token)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if strings.TrimSpace(c.Gateway.AgentID) == "" {
		return fmt.Errorf("gateway.agent_id is required")
	}
	switch c.Push.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("push.transport must be sse or websocket, got %q", c.Push.Transport)
	}
	switch c.ResponseMode {
	case "voice", "text":
	default:
		return fmt.Errorf("response_mode must be voice or text, got %q", c.ResponseMode)
	}
	switch c.Ambient.Source {
	case "pad":
	case "track":
		if strings.TrimSpace(c.Ambient.TrackURL) == "" {
			return fmt.Errorf("ambient.track_url is required for track source")
		}
	default:
		return fmt.Errorf("ambient.source must be pad or track, got %q", c.Ambient.Source)
	}
	return nil
}

// DetectorConfig mapped onto the engine's tunables, zero values falling back
// to the defaults.
func (c DetectorConfig) engineConfig() vad.Config {
	cfg := vad.DefaultConfig()
	if c.PositiveThreshold > 0 {
		cfg.PositiveSpeechThreshold = c.PositiveThreshold
	}
	if c.NegativeThreshold > 0 {
		cfg.NegativeSpeechThreshold = c.NegativeThreshold
	}
	if c.MinSpeechFrames > 0 {
		cfg.MinSpeechFrames = c.MinSpeechFrames
	}
	if c.RedemptionFrames > 0 {
		cfg.RedemptionFrames = c.RedemptionFrames
	}
	if c.PreSpeechPadFrames > 0 {
		cfg.PreSpeechPadFrames = c.PreSpeechPadFrames
	}
	if c.FrameSamples > 0 {
		cfg.FrameSamples = c.FrameSamples
	}
	if c.SampleRate > 0 {
		cfg.SampleRate = c.SampleRate
	}
	return cfg
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, val := range settings {
		if s, ok := val.(string); ok {
			settings[k] = os.ExpandEnv(s)
		}
	}
	return settings
}
