package config

import (
	"time"

	"github.com/rickgao/odds-feed/internal/catalog"
	"github.com/rickgao/odds-feed/internal/odds"
	"github.com/rickgao/odds-feed/internal/stream"
)

// Default values for optional configuration fields.
const (
	DefaultInstanceID      = "oddsd"
	DefaultUpdateInterval  = 1500 * time.Millisecond
	DefaultDBPort          = 5432
	DefaultDBSSLMode       = "prefer"
	DefaultMaxConns        = 10
	DefaultMinConns        = 2
	DefaultBatchSize       = 500
	DefaultFlushInterval   = 1 * time.Second
	DefaultBufferSize      = 10000
	DefaultBind            = ":8080"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
)

// applyDefaults fills unset fields. Stream, generator and catalog sections
// take their defaults wholesale when left empty, since zero is meaningful
// for several of their fields (a zero heartbeat interval disables
// heartbeats).
func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Stream defaults
	if c.Stream.Config == (stream.Config{}) {
		c.Stream.Config = stream.DefaultConfig()
	}
	if c.Stream.MaxUpdatesPerSecond == 0 {
		c.Stream.MaxUpdatesPerSecond = stream.DefaultConfig().MaxUpdatesPerSecond
	}
	if c.Stream.UpdateInterval == 0 {
		c.Stream.UpdateInterval = DefaultUpdateInterval
	}

	if c.Generator == (odds.Config{}) {
		c.Generator = odds.DefaultConfig()
	}
	if c.Catalog == (catalog.Config{}) {
		c.Catalog = catalog.DefaultConfig()
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}

	// Server defaults
	if c.Server.Bind == "" {
		c.Server.Bind = DefaultBind
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
