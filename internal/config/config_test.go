package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDurationScalarParsing(t *testing.T) {
	// The YAML decoder hands scalars with trailing newlines and possibly
	// quotes; all of these must parse.
	for _, raw := range []string{"150ms", "150ms\n", `"150ms"`, " 150ms\n"} {
		var d Duration
		if err := d.UnmarshalYAML([]byte(raw)); err != nil {
			t.Fatalf("UnmarshalYAML(%q): %v", raw, err)
		}
		if d.Std() != 150*time.Millisecond {
			t.Fatalf("UnmarshalYAML(%q) = %v", raw, d.Std())
		}
	}

	var d Duration
	if err := d.UnmarshalYAML([]byte("fast\n")); err == nil {
		t.Fatal("expected an error for a non-duration scalar")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	body := `
server:
  udp_bind: ":9999"
audio:
  sample_rate: 24000
  channels: 1
jitter:
  window: 16
  max_wait: 150ms
session:
  silence_timeout: 1s
  max_sentence_runes: 80
vad:
  backend: websocket
  endpoint: ws://vad:8000/stream
tts:
  backend: wav
  endpoint: http://piper:5000/synthesize
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.UDPBind != ":9999" {
		t.Fatalf("udp_bind = %q", cfg.Server.UDPBind)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Fatalf("sample_rate = %d", cfg.Audio.SampleRate)
	}
	if cfg.Jitter.Window != 16 || cfg.Jitter.MaxWait.Std() != 150*time.Millisecond {
		t.Fatalf("jitter = %+v", cfg.Jitter)
	}
	if cfg.Session.SilenceTimeout.Std() != time.Second {
		t.Fatalf("silence_timeout = %v", cfg.Session.SilenceTimeout.Std())
	}
	if cfg.Session.MaxSentenceRunes != 80 {
		t.Fatalf("max_sentence_runes = %d", cfg.Session.MaxSentenceRunes)
	}
	if cfg.VAD.Backend != VADBackendWebsocket {
		t.Fatalf("vad backend = %q", cfg.VAD.Backend)
	}
	if cfg.TTS.Backend != TTSBackendWAV {
		t.Fatalf("tts backend = %q", cfg.TTS.Backend)
	}
	// Untouched sections keep their defaults.
	if cfg.ASR.Backend != ASRBackendGoogle {
		t.Fatalf("asr backend = %q", cfg.ASR.Backend)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("VOXBRIDGE_MQTT_BROKER", "mqtt://broker.internal:1883")
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTT.BrokerURL != "mqtt://broker.internal:1883" {
		t.Fatalf("broker = %q", cfg.MQTT.BrokerURL)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("llm api key = %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := Default()
	cfg.VAD.Backend = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown vad backend")
	}

	cfg = Default()
	cfg.ASR.Backend = "sonar"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown asr backend")
	}

	cfg = Default()
	cfg.VAD.Backend = VADBackendWebsocket
	cfg.VAD.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("websocket vad without endpoint must not validate")
	}
}
