package voiceloop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/voiceloop/pkg/ambient"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("VOICELOOP_TEST_TOKEN", "secret-token")
	path := writeConfig(t, `
gateway:
  base_url: http://localhost:8787
  token: ${VOICELOOP_TEST_TOKEN}
  agent_id: main
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Token != "secret-token" {
		t.Fatalf("token not expanded: %q", cfg.Gateway.Token)
	}
	if cfg.Push.Transport != "sse" {
		t.Fatalf("default transport %q", cfg.Push.Transport)
	}
	if cfg.Voice.AutoSendDelaySeconds != 3.0 {
		t.Fatalf("default delay %f", cfg.Voice.AutoSendDelaySeconds)
	}
	if cfg.Detector.FrameSamples != 512 || cfg.Detector.SampleRate != 16000 {
		t.Fatalf("detector defaults %+v", cfg.Detector)
	}
	if cfg.ResponseMode != "voice" || cfg.Language != "en" {
		t.Fatalf("mode/language defaults %q %q", cfg.ResponseMode, cfg.Language)
	}
}

func TestLoadConfigRejectsMissingAgent(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: http://localhost:8787
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected missing agent_id to fail validation")
	}
}

func TestLoadConfigRejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
gateway:
  base_url: http://localhost:8787
  agent_id: main
push:
  transport: carrier-pigeon
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected unknown transport to fail validation")
	}
}

func TestSnapshotPlayOptions(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Voice = VoiceConfig{Voice: "ash", Rate: 1.2, Pitch: 0.9, Volume: 0.8, AutoSendDelaySeconds: 1.5}
	cfg.Ambient = AmbientConfig{Enabled: true, Volume: 0.3, Source: "pad", FundamentalHz: 220}

	snapshot := cfg.Snapshot()
	if snapshot.AutoSendDelay != 1500*time.Millisecond {
		t.Fatalf("delay %s", snapshot.AutoSendDelay)
	}
	opts := snapshot.playOptions()
	if opts.Params.Voice != "ash" || opts.Volume != 0.8 {
		t.Fatalf("options %+v", opts)
	}
	if opts.Ambient == nil || opts.Ambient.Mode != ambient.ModePad || opts.Ambient.FundamentalHz != 220 {
		t.Fatalf("ambient options %+v", opts.Ambient)
	}

	cfg.Ambient.Enabled = false
	if got := cfg.Snapshot().playOptions(); got.Ambient != nil {
		t.Fatal("ambient must be nil when disabled")
	}
}
