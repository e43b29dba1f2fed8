// Package config loads the pocketflow YAML configuration, applies
// environment overrides and opens the configured store backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the file LoadDefault reads.
const DefaultPath = "pocketflow.yaml"

// Config holds the top-level application configuration.
type Config struct {
	Log       LogConfig        `yaml:"log"`
	Engine    EngineConfig     `yaml:"engine"`
	Store     StoreConfig      `yaml:"store"`
	Queue     QueueConfig      `yaml:"queue"`
	Server    ServerConfig     `yaml:"server"`
	LLM       LLMConfig        `yaml:"llm"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// EngineConfig holds defaults applied to flows loaded from definitions.
type EngineConfig struct {
	MaxSteps    int    `yaml:"max_steps"`
	Concurrency int    `yaml:"concurrency"`
	FlowsDir    string `yaml:"flows_dir"`
}

// StoreConfig selects and configures the shared store backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, file, sqlite, postgres, redis, mongo
	// Driver picks the database/sql driver for postgres: "pgx" or "pq".
	Driver string      `yaml:"driver"`
	DSN    string      `yaml:"dsn"`
	Path   string      `yaml:"path"`
	Prefix string      `yaml:"prefix"`
	Redis  RedisConfig `yaml:"redis"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// QueueConfig enables queued runs. DSN is used by the sqlite and postgres
// queues; redis and mongo queues connect with the store's settings.
type QueueConfig struct {
	Backend     string        `yaml:"backend"` // empty (disabled), memory, sqlite, postgres, redis, mongo
	Capacity    int           `yaml:"capacity"`
	DSN         string        `yaml:"dsn"`
	Collection  string        `yaml:"collection"`
	Workers     int           `yaml:"workers"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Enabled reports whether a queue backend is configured.
func (q QueueConfig) Enabled() bool {
	return q.Backend != ""
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LLMConfig holds settings for OpenAI-compatible chat completion endpoints.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ScheduleConfig runs a flow definition on a cron expression.
type ScheduleConfig struct {
	Name  string         `yaml:"name"`
	Cron  string         `yaml:"cron"`
	Flow  string         `yaml:"flow"`
	Store map[string]any `yaml:"store"`
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			MaxSteps:    1000,
			Concurrency: 4,
			FlowsDir:    "flows",
		},
		Store: StoreConfig{
			Backend: "memory",
			Driver:  "pgx",
			Path:    "pocketflow.json",
			Prefix:  "pocketflow",
			Redis:   RedisConfig{Addr: "localhost:6379"},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "pocketflow",
				Collection: "store",
			},
		},
		Queue: QueueConfig{
			Capacity:    1024,
			DSN:         "pocketflow-queue.db",
			Collection:  "queue_tasks",
			Workers:     2,
			MaxAttempts: 3,
			Backoff:     time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
	}
}

// Default returns the default configuration with environment overrides
// applied.
func Default() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

// Load reads a YAML configuration file at path. Environment overrides win
// over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads DefaultPath from the current directory, falling back to
// defaults when the file does not exist.
func LoadDefault() (*Config, error) {
	cfg, err := Load(DefaultPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "sqlite", "postgres", "redis", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.Driver != "pgx" && c.Store.Driver != "pq" {
		return fmt.Errorf("config: unknown postgres driver %q", c.Store.Driver)
	}
	switch c.Queue.Backend {
	case "", "memory", "sqlite", "postgres", "redis", "mongo":
	default:
		return fmt.Errorf("config: unknown queue backend %q", c.Queue.Backend)
	}
	if c.Queue.Enabled() && c.Queue.Workers < 1 {
		return fmt.Errorf("config: queue.workers must be at least 1")
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("config: engine.max_steps must not be negative")
	}
	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" || s.Flow == "" {
			return fmt.Errorf("config: schedule %d needs name, cron and flow", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate schedule %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Store.Backend, "POCKETFLOW_STORE_BACKEND")
	setString(&c.Store.DSN, "POCKETFLOW_STORE_DSN")
	setString(&c.Queue.Backend, "POCKETFLOW_QUEUE_BACKEND")
	setString(&c.Store.Redis.Addr, "POCKETFLOW_REDIS_ADDR")
	setString(&c.Store.Mongo.URI, "POCKETFLOW_MONGO_URI")
	setString(&c.Log.Level, "POCKETFLOW_LOG_LEVEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("POCKETFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
