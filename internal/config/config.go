// Package config loads the bridge configuration from a YAML file with
// environment variable overrides for secrets and deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Duration wraps time.Duration for YAML scalars like "200ms" or "1.5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.BytesUnmarshaler. The raw scalar may carry
// surrounding whitespace and quotes.
func (d *Duration) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Backend selection values.
const (
	VADBackendHTTP       = "http"
	VADBackendWebsocket  = "websocket"
	ASRBackendGoogle     = "google"
	ASRBackendHTTP       = "http"
	TTSBackendElevenLabs = "elevenlabs"
	TTSBackendWAV        = "wav"
)

// Config is the full bridge configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Audio   AudioConfig   `yaml:"audio"`
	Jitter  JitterConfig  `yaml:"jitter"`
	Session SessionConfig `yaml:"session"`
	Retry   RetryConfig   `yaml:"retry"`
	VAD     VADConfig     `yaml:"vad"`
	ASR     ASRConfig     `yaml:"asr"`
	LLM     LLMConfig     `yaml:"llm"`
	TTS     TTSConfig     `yaml:"tts"`
	Mongo   MongoConfig   `yaml:"mongo"`
	Auth    AuthConfig    `yaml:"auth"`
}

type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	UDPBind  string `yaml:"udp_bind"`
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	ClientID  string `yaml:"client_id"`
	KeepAlive uint16 `yaml:"keep_alive"`
}

type AudioConfig struct {
	// SampleRate is the device PCM rate for both directions.
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	FrameSize  int    `yaml:"frame_size"`
	Language   string `yaml:"language"`
}

type JitterConfig struct {
	Window  int      `yaml:"window"`
	MaxWait Duration `yaml:"max_wait"`
}

type SessionConfig struct {
	SilenceTimeout   Duration `yaml:"silence_timeout"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	PlayTimeout      Duration `yaml:"play_timeout"`
	ChunkDuration    Duration `yaml:"chunk_duration"`
	MaxSentenceRunes int      `yaml:"max_sentence_runes"`
	// Greeting is synthesized and played when a session starts. Empty
	// disables the hello sequence.
	Greeting string `yaml:"greeting"`
}

type RetryConfig struct {
	MaxAttempts      int      `yaml:"max_attempts"`
	BaseBackoff      Duration `yaml:"base_backoff"`
	MaxBackoff       Duration `yaml:"max_backoff"`
	Timeout          Duration `yaml:"timeout"`
	BreakerThreshold int      `yaml:"breaker_threshold"`
	BreakerCooldown  Duration `yaml:"breaker_cooldown"`
}

type VADConfig struct {
	Backend  string   `yaml:"backend"`
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

type ASRConfig struct {
	Backend  string   `yaml:"backend"`
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

type LLMConfig struct {
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float32 `yaml:"temperature"`
}

type TTSConfig struct {
	Backend      string   `yaml:"backend"`
	Endpoint     string   `yaml:"endpoint"`
	APIKey       string   `yaml:"api_key"`
	VoiceID      string   `yaml:"voice_id"`
	OutputFormat string   `yaml:"output_format"`
	Timeout      Duration `yaml:"timeout"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Default returns the configuration used when a field is not set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: ":8080",
			UDPBind:  ":9000",
		},
		MQTT: MQTTConfig{
			BrokerURL: "mqtt://localhost:1883",
			ClientID:  "voxbridge",
			KeepAlive: 20,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			FrameSize:  1024,
			Language:   "en-US",
		},
		Jitter: JitterConfig{
			Window:  32,
			MaxWait: Duration(200 * time.Millisecond),
		},
		Session: SessionConfig{
			SilenceTimeout:   Duration(800 * time.Millisecond),
			IdleTimeout:      Duration(30 * time.Second),
			PlayTimeout:      Duration(30 * time.Second),
			ChunkDuration:    Duration(500 * time.Millisecond),
			MaxSentenceRunes: 120,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			BaseBackoff:      Duration(100 * time.Millisecond),
			MaxBackoff:       Duration(2 * time.Second),
			Timeout:          Duration(10 * time.Second),
			BreakerThreshold: 5,
			BreakerCooldown:  Duration(30 * time.Second),
		},
		VAD: VADConfig{
			Backend: VADBackendHTTP,
			Timeout: Duration(5 * time.Second),
		},
		ASR: ASRConfig{
			Backend: ASRBackendGoogle,
			Timeout: Duration(15 * time.Second),
		},
		TTS: TTSConfig{
			Backend: TTSBackendElevenLabs,
			Timeout: Duration(30 * time.Second),
		},
	}
}

// Load reads the YAML file at path (optional; empty path skips the file),
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays secrets and deployment addresses from the environment.
func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.MQTT.BrokerURL, "VOXBRIDGE_MQTT_BROKER")
	overlay(&c.Server.UDPBind, "VOXBRIDGE_UDP_BIND")
	overlay(&c.Server.HTTPAddr, "VOXBRIDGE_HTTP_ADDR")
	overlay(&c.LLM.APIKey, "GEMINI_API_KEY")
	overlay(&c.TTS.APIKey, "ELEVEN_LABS_API_KEY")
	overlay(&c.Mongo.URI, "MONGODB_URI")
	overlay(&c.Mongo.Database, "MONGODB_DATABASE")
	overlay(&c.Auth.JWTSecret, "JWT_SECRET")
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels must be 1, got %d", c.Audio.Channels)
	}
	switch c.VAD.Backend {
	case VADBackendHTTP, VADBackendWebsocket:
	default:
		return fmt.Errorf("vad.backend must be %q or %q, got %q", VADBackendHTTP, VADBackendWebsocket, c.VAD.Backend)
	}
	switch c.ASR.Backend {
	case ASRBackendGoogle, ASRBackendHTTP:
	default:
		return fmt.Errorf("asr.backend must be %q or %q, got %q", ASRBackendGoogle, ASRBackendHTTP, c.ASR.Backend)
	}
	switch c.TTS.Backend {
	case TTSBackendElevenLabs, TTSBackendWAV:
	default:
		return fmt.Errorf("tts.backend must be %q or %q, got %q", TTSBackendElevenLabs, TTSBackendWAV, c.TTS.Backend)
	}
	if c.VAD.Backend != "" && c.VAD.Endpoint == "" && c.VAD.Backend == VADBackendWebsocket {
		return fmt.Errorf("vad.endpoint is required for the websocket backend")
	}
	if c.Session.MaxSentenceRunes < 0 {
		return fmt.Errorf("session.max_sentence_runes must not be negative")
	}
	return nil
}
