package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/adapters/asr"
	"github.com/voxkit/voxbridge/adapters/llm"
	"github.com/voxkit/voxbridge/adapters/mongo"
	"github.com/voxkit/voxbridge/adapters/registry"
	"github.com/voxkit/voxbridge/adapters/tts"
	"github.com/voxkit/voxbridge/adapters/vad"
	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/api"
	"github.com/voxkit/voxbridge/internal/auth"
	"github.com/voxkit/voxbridge/internal/config"
	"github.com/voxkit/voxbridge/internal/gateway"
	"github.com/voxkit/voxbridge/internal/retry"
	"github.com/voxkit/voxbridge/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapters, cleanup, err := buildAdapters(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to construct adapters", zap.Error(err))
	}
	defer cleanup()

	manager := session.NewManager(session.Config{
		DeviceSampleRate: cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		Language:         cfg.Audio.Language,
		Voice: repositories.VoiceConfig{
			Voice:    cfg.TTS.VoiceID,
			Language: cfg.Audio.Language,
		},
		JitterWindow:     cfg.Jitter.Window,
		FrameSize:        cfg.Audio.FrameSize,
		JitterMaxWait:    cfg.Jitter.MaxWait.Std(),
		SilenceTimeout:   cfg.Session.SilenceTimeout.Std(),
		IdleTimeout:      cfg.Session.IdleTimeout.Std(),
		PlayTimeout:      cfg.Session.PlayTimeout.Std(),
		ChunkDuration:    cfg.Session.ChunkDuration.Std(),
		MaxSentenceRunes: cfg.Session.MaxSentenceRunes,
		Greeting:         cfg.Session.Greeting,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff.Std(),
			MaxBackoff:  cfg.Retry.MaxBackoff.Std(),
			Timeout:     cfg.Retry.Timeout.Std(),
		},
		BreakerThreshold: cfg.Retry.BreakerThreshold,
		BreakerCooldown:  cfg.Retry.BreakerCooldown.Std(),
	}, adapters, nil, nil, logger)

	audioGateway, err := gateway.NewAudioGateway(cfg.Server.UDPBind, manager, logger)
	if err != nil {
		logger.Fatal("failed to start audio gateway", zap.Error(err))
	}
	manager.SetSink(audioGateway)

	controlBus, err := gateway.NewControlBus(ctx, gateway.ControlBusConfig{
		BrokerURL: cfg.MQTT.BrokerURL,
		ClientID:  cfg.MQTT.ClientID,
		KeepAlive: cfg.MQTT.KeepAlive,
	}, manager, logger)
	if err != nil {
		logger.Fatal("failed to connect control bus", zap.Error(err))
	}
	manager.SetNotifier(controlBus)

	devices := registry.NewMemoryRegistry()
	authenticator := auth.New(cfg.Auth.JWTSecret, 0)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	api.NewServer(manager, adapters.History, devices, authenticator, logger).InitRoutes(e)

	go func() {
		if err := e.Start(cfg.Server.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server stopped", zap.Error(err))
		}
	}()

	logger.Info("bridge started",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("udp_bind", cfg.Server.UDPBind),
		zap.String("mqtt_broker", cfg.MQTT.BrokerURL))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := controlBus.Close(shutdownCtx); err != nil {
		logger.Warn("control bus shutdown failed", zap.Error(err))
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("session manager shutdown failed", zap.Error(err))
	}
	if err := audioGateway.Close(shutdownCtx); err != nil {
		logger.Warn("audio gateway shutdown failed", zap.Error(err))
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", zap.Error(err))
	}
	logger.Info("bridge exited")
}

// buildAdapters constructs the configured backend for each capability.
func buildAdapters(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Adapters, func(), error) {
	var adapters session.Adapters
	cleanup := func() {}

	switch cfg.VAD.Backend {
	case config.VADBackendWebsocket:
		adapters.Detector = vad.NewWebsocketDetector(cfg.VAD.Endpoint, cfg.VAD.Timeout.Std(), logger)
	default:
		adapters.Detector = vad.NewHTTPDetector(cfg.VAD.Endpoint, cfg.VAD.Timeout.Std(), logger)
	}

	switch cfg.ASR.Backend {
	case config.ASRBackendHTTP:
		adapters.Transcriber = asr.NewHTTPSpeechToText(cfg.ASR.Endpoint, cfg.ASR.Timeout.Std(), logger)
	default:
		adapters.Transcriber = asr.NewGoogleSpeechToText(logger)
	}

	dialogue, err := llm.NewGeminiDialogue(ctx, llm.GeminiConfig{
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
	}, logger)
	if err != nil {
		return adapters, cleanup, err
	}
	adapters.Dialogue = dialogue

	switch cfg.TTS.Backend {
	case config.TTSBackendWAV:
		adapters.Synthesizer = tts.NewWAVSynthesizer(cfg.TTS.Endpoint, cfg.TTS.Timeout.Std(), logger)
	default:
		synthesizer, err := tts.NewElevenLabsSynthesizer(tts.ElevenLabsConfig{
			APIKey:       cfg.TTS.APIKey,
			VoiceID:      cfg.TTS.VoiceID,
			OutputFormat: cfg.TTS.OutputFormat,
		}, logger)
		if err != nil {
			return adapters, cleanup, err
		}
		adapters.Synthesizer = synthesizer
	}

	if cfg.Mongo.URI != "" {
		client, err := mongo.NewClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
		if err != nil {
			return adapters, cleanup, err
		}
		adapters.History = mongo.NewSessionStore(client.Database)
		cleanup = func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(closeCtx)
		}
	}

	return adapters, cleanup, nil
}
