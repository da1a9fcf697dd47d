package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	App      App
	Store    Store
	Redis    Redis
	Postgres Postgres
	Platform Platform
	Gemini   Gemini
	Notify   Notify
	Worker   Worker
	Agent    Agent
}

type App struct {
	LogLevel  string   `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool     `env:"LOG_PRETTY" envDefault:"false"`
	Topics    []string `env:"AGENT_TOPICS" envSeparator:"," envDefault:"daily life,technology,small discoveries"`
}

type Store struct {
	Backend string `env:"STORE_BACKEND" envDefault:"redis"`
}

type Redis struct {
	URL           string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix     string        `env:"REDIS_KEY_PREFIX" envDefault:"madang"`
	RetryAttempts int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
}

type Postgres struct {
	DSN string `env:"DATABASE_URL"`
}

type Platform struct {
	BaseURL string        `env:"PLATFORM_BASE_URL" envDefault:"https://madang.example.com/api/v1"`
	Timeout time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"20s"`
}

type Gemini struct {
	APIKey     string        `env:"GEMINI_API_KEY"`
	Model      string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	MaxRetries int           `env:"GEMINI_MAX_RETRIES" envDefault:"3"`
	BaseDelay  time.Duration `env:"GEMINI_BASE_DELAY" envDefault:"2s"`
	MaxDelay   time.Duration `env:"GEMINI_MAX_DELAY" envDefault:"30s"`
	Timeout    time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`
}

// Budget bounds one generation including every retry and backoff delay.
func (g Gemini) Budget() time.Duration {
	retries := max(g.MaxRetries, 0)
	return g.Timeout*time.Duration(retries+1) + g.MaxDelay*time.Duration(retries)
}

type Notify struct {
	WebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	Timeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

type Worker struct {
	Interval          time.Duration `env:"WORKER_INTERVAL" envDefault:"5m"`
	ClaimLease        time.Duration `env:"WORKER_CLAIM_LEASE" envDefault:"10m"`
	RateLimitCooldown time.Duration `env:"WORKER_RATE_LIMIT_COOLDOWN" envDefault:"1m"`
	ReplyCooldown     time.Duration `env:"WORKER_REPLY_COOLDOWN" envDefault:"15s"`
	EngageProbability float64       `env:"WORKER_ENGAGE_PROBABILITY" envDefault:"0.3"`
	NotificationLimit int           `env:"WORKER_NOTIFICATION_LIMIT" envDefault:"10"`
	PostLimit         int           `env:"WORKER_POST_LIMIT" envDefault:"10"`
	DraftInterval     time.Duration `env:"WORKER_DRAFT_INTERVAL" envDefault:"0"`
	DefaultSubmadang  string        `env:"WORKER_DEFAULT_SUBMADANG" envDefault:"general"`
	LockTTL           time.Duration `env:"WORKER_LOCK_TTL" envDefault:"10m"`
}

// Agent is a static credential used when no credential table is configured.
type Agent struct {
	ID     string `env:"AGENT_ID"`
	Name   string `env:"AGENT_NAME"`
	APIKey string `env:"AGENT_API_KEY"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func MustLoad() *Config {
	c, err := Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	return c
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "redis":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("DATABASE_URL is required for the postgres store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Worker.EngageProbability < 0 || c.Worker.EngageProbability > 1 {
		return fmt.Errorf("WORKER_ENGAGE_PROBABILITY must be within [0,1], got %v", c.Worker.EngageProbability)
	}
	return nil
}

// SetupLogger configures the global zerolog logger.
func (a App) SetupLogger() {
	level, err := zerolog.ParseLevel(a.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if a.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	// log.Ctx falls back to this when a context carries no logger
	zerolog.DefaultContextLogger = &log.Logger
}
