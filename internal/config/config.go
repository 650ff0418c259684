package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/validation"
)

// State backends selectable with HUDDLE_STATE_BACKEND.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Addr  string `env:"HUDDLE_ADDR" envDefault:":8787" validate:"required"`
	Party string `env:"HUDDLE_PARTY" envDefault:"chat" validate:"required,excludesall=/"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	StateBackend string        `env:"HUDDLE_STATE_BACKEND" envDefault:"memory" validate:"oneof=memory file redis"`
	StateDir     string        `env:"HUDDLE_STATE_DIR" envDefault:"data/connections" validate:"required_if=StateBackend file"`
	RedisURL     string        `env:"REDIS_URL" validate:"required_if=StateBackend redis"`
	StateTTL     time.Duration `env:"HUDDLE_STATE_TTL" envDefault:"24h" validate:"gte=0"`
	StoreTimeout time.Duration `env:"HUDDLE_STORE_TIMEOUT" envDefault:"2s" validate:"gt=0"`

	HibernateAfter time.Duration `env:"HUDDLE_HIBERNATE_AFTER" envDefault:"30s" validate:"gte=0"`

	SendBuffer     int           `env:"HUDDLE_SEND_BUFFER" envDefault:"256" validate:"gt=0"`
	WriteTimeout   time.Duration `env:"HUDDLE_WRITE_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	ReadLimit      int64         `env:"HUDDLE_READ_LIMIT" envDefault:"65536" validate:"gt=0"`
	AllowedOrigins []string      `env:"HUDDLE_ALLOWED_ORIGINS" envSeparator:","`

	ShutdownTimeout time.Duration `env:"HUDDLE_SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	Tracing pubsub.TracingConfig
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment, then parses and validates the configuration. Missing
// dotenv files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No dotenv file found, relying on environment variables", "file", f)
				continue
			}
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom parses the configuration from the given variables only, ignoring
// the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := validation.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
