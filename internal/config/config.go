package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the backend, read from the environment.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR,default=:8080"`
	DatabaseDSN string `env:"DATABASE_DSN"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB,default=0"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX,default=chat:room:"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=*"`

	SendBufferSize   int   `env:"SEND_BUFFER_SIZE,default=256"`
	MaxFrameBytes    int64 `env:"MAX_FRAME_BYTES,default=4096"`
	MaxMessageLength int   `env:"MAX_MESSAGE_LENGTH,default=1000"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`

	LogLevel      string `env:"LOG_LEVEL,default=info"`
	LogFormat     string `env:"LOG_FORMAT,default=text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB,default=100"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS,default=5"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS,default=30"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logging returns the logger settings.
func (c *Config) Logging() LogConfig {
	return LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}
	return FromEnviron()
}

// FromEnviron builds the config from the current environment only.
func FromEnviron() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.SendBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize))
	}
	if c.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FRAME_BYTES must be positive, got %d", c.MaxFrameBytes))
	}
	if c.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Origins splits ALLOWED_ORIGINS into a list. A lone "*" allows every origin.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RedisEnabled reports whether the cross-instance relay is configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}
