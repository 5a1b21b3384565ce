package postmaster

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the scheduler and everything it wires.
type Config struct {
	// Enabled gates the whole scheduler. When false the configuration is
	// resolved to Mode Disabled and PriorityLevels and Persistence are cleared.
	Enabled bool `yaml:"enabled"`

	// PriorityLevels is the number of priority lanes. Priority 0 is the
	// highest, PriorityLevels-1 the lowest.
	PriorityLevels int `yaml:"priorityLevels"`

	// Persistence configures durable overflow. Nil means memory only.
	Persistence *PersistenceConfig `yaml:"persistence"`

	Dispatch DispatchConfig `yaml:"dispatch"`
	DLQ      DLQConfig      `yaml:"dlq"`
	Mail     MailConfig     `yaml:"mail"`
}

// PersistenceConfig controls the in-memory window bounds and the durable
// store backing the overflow.
type PersistenceConfig struct {
	Enabled bool `yaml:"enabled"`

	// DesiredBatchSize is the number of records moved per store round trip.
	DesiredBatchSize int `yaml:"desiredBatchSize"`

	// MinKeptInMemory is the low watermark of the window. When the window
	// shrinks to it, the mover loads records back from the store.
	MinKeptInMemory int `yaml:"minKeptInMemory"`

	// MaxKeptInMemory is the upper bound of the window.
	MaxKeptInMemory int `yaml:"maxKeptInMemory"`

	Redis RedisConfig `yaml:"redis"`
	SQL   SQLConfig   `yaml:"sql"`
}

// RedisConfig selects a Redis server as the overflow store.
type RedisConfig struct {
	Enabled bool `yaml:"enabled"`

	// Embedded keeps persistence on the local node. Since there is no
	// in-process Redis that writes to disk, an embedded setup is served by
	// the local SQLite store instead.
	Embedded bool   `yaml:"embedded"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Settings are passed through as client options: "pool_size",
	// "dial_timeout", "read_timeout", "write_timeout".
	Settings map[string]string `yaml:"settings"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SQLConfig selects a SQL database as the overflow store.
type SQLConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// DispatchConfig controls delivery.
type DispatchConfig struct {
	// Concurrency is the number of concurrent deliveries.
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts is the number of delivery tries before a message is
	// declared failed.
	MaxAttempts int `yaml:"maxAttempts"`

	// BackoffInitial and BackoffMax bound the exponential retry delay.
	BackoffInitial time.Duration `yaml:"backoffInitial"`
	BackoffMax     time.Duration `yaml:"backoffMax"`

	// SendTimeout bounds a single transport call. Zero means no timeout.
	SendTimeout time.Duration `yaml:"sendTimeout"`

	// RateLimit caps deliveries per second. Zero means unlimited.
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`

	// MoveInterval is how often the batch mover re-checks window bounds.
	MoveInterval time.Duration `yaml:"moveInterval"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DLQConfig controls dead letter retention.
type DLQConfig struct {
	// Retention is how long failed messages are kept. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`

	// PurgeSchedule is a cron expression for the retention sweep.
	PurgeSchedule string `yaml:"purgeSchedule"`
}

// MailConfig holds SMTP connection settings for the bundled transport.
type MailConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	From             string `yaml:"from"`
	Auth             bool   `yaml:"auth"`
	StartTLSEnable   bool   `yaml:"starttlsEnable"`
	StartTLSRequired bool   `yaml:"starttlsRequired"`
}

// DefaultConfig returns a Config with sensible defaults. The scheduler is
// disabled until Enabled is set.
func DefaultConfig() Config {
	return Config{
		PriorityLevels: 10,
		Persistence:    DefaultPersistenceConfig(),
		Dispatch: DispatchConfig{
			Concurrency:     1,
			MaxAttempts:     5,
			BackoffInitial:  1 * time.Second,
			BackoffMax:      1 * time.Minute,
			RateBurst:       1,
			MoveInterval:    100 * time.Millisecond,
			ShutdownTimeout: 30 * time.Second,
		},
		DLQ: DLQConfig{
			Retention:     7 * 24 * time.Hour,
			PurgeSchedule: "@hourly",
		},
		Mail: MailConfig{
			Host: "localhost",
			Port: 25,
		},
	}
}

// DefaultPersistenceConfig returns the default window bounds with
// persistence switched off.
func DefaultPersistenceConfig() *PersistenceConfig {
	return &PersistenceConfig{
		DesiredBatchSize: 500,
		MinKeptInMemory:  250,
		MaxKeptInMemory:  2000,
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		SQL: SQLConfig{
			Driver: "sqlite",
			DSN:    "file:postmaster.db?_pragma=busy_timeout(5000)",
		},
	}
}

// Resolve normalizes c. A disabled configuration has its scheduler values
// cleared; an enabled one is validated.
func (c *Config) Resolve() error {
	if !c.Enabled {
		c.PriorityLevels = 0
		c.Persistence = nil
		return nil
	}
	return c.Validate()
}

// Validate checks the scheduler settings. The returned error wraps
// ErrInvalidConfiguration and names the offending key.
func (c Config) Validate() error {
	if c.PriorityLevels <= 0 {
		return invalid("expected at least one priority level, review 'priorityLevels'")
	}
	if p := c.Persistence; p != nil {
		switch {
		case p.DesiredBatchSize <= 0:
			return invalid("expected a batch of at least one record, review 'persistence.desiredBatchSize'")
		case p.MinKeptInMemory < 0:
			return invalid("expected a non negative amount of records kept in memory, review 'persistence.minKeptInMemory'")
		case p.MaxKeptInMemory <= 0:
			return invalid("expected at least one record kept in memory, review 'persistence.maxKeptInMemory'")
		case p.MaxKeptInMemory < p.MinKeptInMemory:
			return invalid("'persistence.maxKeptInMemory' should not be smaller than 'persistence.minKeptInMemory'")
		case p.MaxKeptInMemory < p.DesiredBatchSize:
			return invalid("'persistence.maxKeptInMemory' should not be smaller than 'persistence.desiredBatchSize'")
		}
		if p.Enabled && p.SQL.Driver != "" && p.SQL.Driver != "sqlite" && p.SQL.Driver != "postgres" {
			return invalid(fmt.Sprintf("unknown sql driver %q, review 'persistence.sql.driver'", p.SQL.Driver))
		}
	}
	if c.Dispatch.Concurrency <= 0 {
		return invalid("expected at least one concurrent delivery, review 'dispatch.concurrency'")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return invalid("expected at least one delivery attempt, review 'dispatch.maxAttempts'")
	}
	if c.Dispatch.RateLimit < 0 {
		return invalid("expected a non negative rate limit, review 'dispatch.rateLimit'")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, msg)
}

// LoadConfig reads a YAML file over DefaultConfig and resolves it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("postmaster: read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and resolves it.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("postmaster: decode config: %w", err)
	}
	if err := cfg.Resolve(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
