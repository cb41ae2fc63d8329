package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-asr/internal/config"
	"github.com/snarg/whisper-asr/internal/metrics"
	"github.com/snarg/whisper-asr/internal/transcribe"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewRouter builds the HTTP routes. Split out from NewServer for tests.
func NewRouter(cfg *config.Config, provider transcribe.Provider, log zerolog.Logger) (http.Handler, *ASRHandler) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(CORSWithOrigins(cfg.CORSOriginList()))
	if cfg.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
	}

	health := NewHealthHandler(cfg.WhisperModel)
	r.Get("/health", health.ServeHTTP)

	asr := NewASRHandler(ASROptions{
		Provider: provider,
		Options:  transcribe.DefaultOptions(),
		MaxBytes: cfg.MaxUploadBytes(),
		Log:      log,
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Post("/asr", asr.Transcribe)
	})

	return r, asr
}

func NewServer(cfg *config.Config, provider transcribe.Provider, log zerolog.Logger) *Server {
	handler, asr := NewRouter(cfg, provider, log)
	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewCollector(asr))
	}

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
