package config

import (
	"fmt"
	"time"

	"eule/internal/cleaner"
	"eule/internal/connection"
	"eule/pkg/logx"
)

type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Cleaner    CleanerConfig    `json:"cleaner"`
	Connection ConnectionConfig `json:"connection"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig points at the sqlite database file.
type StorageConfig struct {
	Path string `json:"path"`
}

// CleanerConfig tunes the cleanup scheduler and worker pool.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Omitted or zero fields fall back to built-in defaults.
type CleanerConfig struct {
	// TickPeriod is how often the job table is scanned for due cleanups.
	TickPeriod string `json:"tick_period,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`

	// Rate admits this many delete batches per RatePeriod across all workers.
	Rate       int    `json:"rate,omitempty"`
	RatePeriod string `json:"rate_period,omitempty"`
	Cooldown   string `json:"cooldown,omitempty"`
}

// ConnectionConfig tunes session restart backoff.
type ConnectionConfig struct {
	BackoffFloor   string `json:"backoff_floor,omitempty"`
	BackoffCeiling string `json:"backoff_ceiling,omitempty"`
}

// LogxConfig converts the logging section for the log service.
func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// StoragePath returns the database path, defaulting next to the binary.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return "./eule.db"
}

// CleanerConfig resolves duration strings into the scheduler's config.
func (c *Config) CleanerConfig() (cleaner.Config, error) {
	tick, err := ParseDurationField("cleaner.tick_period", c.Cleaner.TickPeriod)
	if err != nil {
		return cleaner.Config{}, err
	}
	period, err := ParseDurationField("cleaner.rate_period", c.Cleaner.RatePeriod)
	if err != nil {
		return cleaner.Config{}, err
	}
	cooldown, err := ParseDurationField("cleaner.cooldown", c.Cleaner.Cooldown)
	if err != nil {
		return cleaner.Config{}, err
	}
	if c.Cleaner.Workers < 0 {
		return cleaner.Config{}, fmt.Errorf("cleaner.workers: must be >= 0")
	}
	if c.Cleaner.QueueSize < 0 {
		return cleaner.Config{}, fmt.Errorf("cleaner.queue_size: must be >= 0")
	}
	return cleaner.Config{
		TickPeriod: tick,
		Workers:    c.Cleaner.Workers,
		QueueSize:  c.Cleaner.QueueSize,
		Rate:       c.Cleaner.Rate,
		RatePeriod: period,
		Cooldown:   cooldown,
	}, nil
}

// ConnectionConfig resolves duration strings into the supervisor's config.
func (c *Config) ConnectionConfig() (connection.Config, error) {
	floor, err := ParseDurationOrDefault("connection.backoff_floor", c.Connection.BackoffFloor, time.Second)
	if err != nil {
		return connection.Config{}, err
	}
	ceiling, err := ParseDurationOrDefault("connection.backoff_ceiling", c.Connection.BackoffCeiling, 5*time.Minute)
	if err != nil {
		return connection.Config{}, err
	}
	if ceiling < floor {
		return connection.Config{}, fmt.Errorf("connection.backoff_ceiling: must be >= backoff_floor")
	}
	return connection.Config{BackoffFloor: floor, BackoffCeiling: ceiling}, nil
}

// Validate checks every derived section so a bad file is rejected before it
// is committed or published.
func (c *Config) Validate() error {
	if _, err := c.CleanerConfig(); err != nil {
		return err
	}
	if _, err := c.ConnectionConfig(); err != nil {
		return err
	}
	return nil
}
