package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisper-asr/internal/api"
	"github.com/snarg/whisper-asr/internal/config"
	"github.com/snarg/whisper-asr/internal/transcribe"
)

var version = "dev"

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "listen address, overrides HOST/PORT")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.WhisperModel, "model", "", "whisper model, overrides WHISPER_MODEL")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("model", cfg.WhisperModel).Str("provider", cfg.Provider).Msg("whisper-asr starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Speech-to-text provider, loaded once
	sttLog := log.With().Str("component", "transcribe").Logger()
	provider, err := newProvider(ctx, cfg, sttLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start transcription provider")
	}
	defer provider.Close()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, provider, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("whisper-asr stopped")
}

func newProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (transcribe.Provider, error) {
	switch cfg.Provider {
	case config.ProviderServer:
		log.Info().Str("url", cfg.WhisperURL).Str("model", cfg.WhisperModel).Msg("using whisper server")
		return transcribe.NewServerClient(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperTimeout), nil
	default:
		return transcribe.StartFasterWhisper(ctx, transcribe.FasterWhisperOptions{
			Python:      cfg.Python,
			Model:       cfg.WhisperModel,
			Device:      cfg.Device,
			ComputeType: cfg.ComputeType,
			Log:         log,
		})
	}
}
