package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"time"

	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	LeaderboardCacheTTL time.Duration `env:"LEADERBOARD_CACHE_TTL" envDefault:"30s"`

	QueueIDs   []int `env:"QUEUE_IDS" envSeparator:","`
	MaxQueueID int   `env:"MAX_QUEUE_ID" envDefault:"100"`

	AdminIDs []string `env:"ADMIN_IDS" envSeparator:","`
	MapPool  []string `env:"MAP_POOL" envSeparator:","`

	CaptainVoteTimeout time.Duration `env:"CAPTAIN_VOTE_TIMEOUT" envDefault:"20s"`
	SwapWindowTimeout  time.Duration `env:"SWAP_WINDOW_TIMEOUT" envDefault:"30s"`
	PickTimeout        time.Duration `env:"PICK_TIMEOUT" envDefault:"30s"`
	MapVoteTimeout     time.Duration `env:"MAP_VOTE_TIMEOUT" envDefault:"20s"`
	PersistTimeout     time.Duration `env:"PERSIST_TIMEOUT" envDefault:"10s"`

	PubsubProjectID           string `env:"PUBSUB_PROJECT_ID"`
	PubsubEventsTopic         string `env:"PUBSUB_EVENTS_TOPIC"`
	PubsubCommandSubscription string `env:"PUBSUB_COMMANDS_SUBSCRIPTION"`
	CredentialsFile           string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	WSEventsPerSecond float64 `env:"WS_EVENTS_PER_SECOND" envDefault:"5"`
}

// Load reads an optional .env (or the given files) and then the process
// environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if len(cfg.MapPool) == 0 {
		cfg.MapPool = slices.Clone(engine.DefaultMapPool)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q: want postgres or memory", c.StoreDriver))
	}
	if len(c.MapPool) == 0 {
		errs = append(errs, errors.New("MAP_POOL is empty"))
	}
	timeouts := map[string]time.Duration{
		"CAPTAIN_VOTE_TIMEOUT": c.CaptainVoteTimeout,
		"SWAP_WINDOW_TIMEOUT":  c.SwapWindowTimeout,
		"PICK_TIMEOUT":         c.PickTimeout,
		"MAP_VOTE_TIMEOUT":     c.MapVoteTimeout,
		"PERSIST_TIMEOUT":      c.PersistTimeout,
	}
	for _, name := range slices.Sorted(maps.Keys(timeouts)) {
		if timeouts[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxQueueID < 1 {
		errs = append(errs, errors.New("MAX_QUEUE_ID must be positive"))
	}
	for _, id := range c.QueueIDs {
		if id < 1 || id > c.MaxQueueID {
			errs = append(errs, fmt.Errorf("QUEUE_IDS: invalid queue %d", id))
		}
	}
	if c.PubsubCommandSubscription != "" || c.PubsubEventsTopic != "" {
		if c.PubsubProjectID == "" {
			errs = append(errs, errors.New("PUBSUB_PROJECT_ID is required when a topic or subscription is set"))
		}
	}
	return errors.Join(errs...)
}

// Settings returns the queue timing and map pool.
func (c Config) Settings() lobby.Settings {
	return lobby.Settings{
		MapPool:            slices.Clone(c.MapPool),
		CaptainVoteTimeout: c.CaptainVoteTimeout,
		SwapWindowTimeout:  c.SwapWindowTimeout,
		PickTimeout:        c.PickTimeout,
		MapVoteTimeout:     c.MapVoteTimeout,
		PersistTimeout:     c.PersistTimeout,
	}
}

// Redacted returns a view safe for logging
func (c Config) Redacted() map[string]any {
	return map[string]any{
		"httpAddr":            c.HTTPAddr,
		"logLevel":            c.LogLevel,
		"storeDriver":         c.StoreDriver,
		"databaseConfigured":  c.DatabaseURL != "",
		"redisAddr":           c.RedisAddr,
		"queues":              c.QueueIDs,
		"maxQueueID":          c.MaxQueueID,
		"admins":              len(c.AdminIDs),
		"mapPool":             c.MapPool,
		"pubsubProjectID":     c.PubsubProjectID,
		"eventsTopic":         c.PubsubEventsTopic,
		"commandSubscription": c.PubsubCommandSubscription,
		"credentialsProvided": c.CredentialsFile != "",
	}
}
