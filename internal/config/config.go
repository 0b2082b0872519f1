// Package config loads the odds daemon configuration from YAML.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/odds-feed/internal/catalog"
	"github.com/rickgao/odds-feed/internal/odds"
	"github.com/rickgao/odds-feed/internal/stream"
)

// Config is the root configuration for an oddsd instance.
type Config struct {
	Instance  InstanceConfig `yaml:"instance"`
	Stream    StreamConfig   `yaml:"stream"`
	Generator odds.Config    `yaml:"generator"`
	Catalog   catalog.Config `yaml:"catalog"`
	Database  DatabaseConfig `yaml:"database"`
	Writer    WriterConfig   `yaml:"writer"`
	Server    ServerConfig   `yaml:"server"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// StreamConfig holds the simulated connection settings plus the spacing
// between odds updates.
type StreamConfig struct {
	stream.Config  `yaml:",inline"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// DatabaseConfig holds the optional Postgres connection backing the cache
// and the odds writer.
type DatabaseConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds odds writer batching settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps Level to a slog level. Unknown values mean info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
