package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	ProviderLocal  = "local"
	ProviderServer = "server"
)

type Config struct {
	WhisperModel string `env:"WHISPER_MODEL" envDefault:"small"`
	Port         int    `env:"PORT" envDefault:"9000"`
	Host         string `env:"HOST" envDefault:"0.0.0.0"`

	Provider       string        `env:"WHISPER_PROVIDER" envDefault:"local"`
	WhisperURL     string        `env:"WHISPER_URL"`
	Device         string        `env:"WHISPER_DEVICE" envDefault:"cpu"`
	ComputeType    string        `env:"WHISPER_COMPUTE_TYPE" envDefault:"int8"`
	Python         string        `env:"WHISPER_PYTHON" envDefault:"python3"`
	WhisperTimeout time.Duration `env:"WHISPER_TIMEOUT" envDefault:"0s"`

	MaxUploadMB int64 `env:"MAX_UPLOAD_MB" envDefault:"100"`

	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"0s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	CORSOrigins    string `env:"CORS_ORIGINS"`
	AuthToken      string `env:"AUTH_TOKEN"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTPAddr is derived from Host and Port unless a CLI override sets it.
	HTTPAddr string
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile      string
	HTTPAddr     string
	LogLevel     string
	WhisperModel string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.HTTPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.WhisperModel != "" {
		cfg.WhisperModel = overrides.WhisperModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider settings and numeric bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.WhisperModel) == "" {
		return fmt.Errorf("config: WHISPER_MODEL must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	switch c.Provider {
	case ProviderLocal:
	case ProviderServer:
		if c.WhisperURL == "" {
			return fmt.Errorf("config: WHISPER_URL is required when WHISPER_PROVIDER=%s", ProviderServer)
		}
	default:
		return fmt.Errorf("config: unknown WHISPER_PROVIDER %q (want %s or %s)", c.Provider, ProviderLocal, ProviderServer)
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("config: MAX_UPLOAD_MB must be >= 0")
	}
	return nil
}

// CORSOriginList splits CORS_ORIGINS on commas. Empty means allow all.
func (c *Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// MaxUploadBytes caps the /asr request body. 0 means unlimited.
func (c *Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }
