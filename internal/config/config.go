// Package config loads the relay's YAML configuration file and fills
// in defaults for anything the file leaves out.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the file (or a field) is absent.
const (
	DefaultListenAddr    = ":8080"
	DefaultDatabasePath  = "drawbridge.db"
	DefaultDrainInterval = 250 * time.Millisecond
	DefaultBatchSize     = 64
	DefaultMaxRetries    = 3
	DefaultSendQueueSize = 64
	DefaultFetchLimit    = 100
	DefaultTokenTTL      = 24 * time.Hour
)

// Duration wraps time.Duration so YAML values like "250ms" or "24h"
// parse; yaml.v3 has no native duration support.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config holds everything the serve command needs to wire the relay.
type Config struct {
	// ListenAddr is the HTTP/websocket bind address.
	ListenAddr string `yaml:"listenAddr"`

	// DatabasePath is the SQLite file backing durable shapes.
	DatabasePath string `yaml:"databasePath"`

	// TokenSecret signs connection tokens. Required: there is no safe
	// default for a signing key.
	TokenSecret string `yaml:"tokenSecret"`

	// TokenTTL bounds how long a minted token stays valid.
	TokenTTL Duration `yaml:"tokenTTL"`

	// DrainInterval is the persistence queue's retry cadence.
	DrainInterval Duration `yaml:"drainInterval"`

	// BatchSize caps shapes written per room per drain pass.
	BatchSize int `yaml:"batchSize"`

	// MaxRetries bounds write attempts before an entry is dropped.
	MaxRetries int `yaml:"maxRetries"`

	// SendQueueSize is the per-connection outbound buffer; envelopes
	// beyond it are dropped for that peer rather than blocking others.
	SendQueueSize int `yaml:"sendQueueSize"`

	// FetchLimit caps shapes returned by the room snapshot endpoint.
	FetchLimit int `yaml:"fetchLimit"`

	// Verbose switches logging to debug level.
	Verbose bool `yaml:"verbose"`
}

// Default returns a Config with every field at its default. TokenSecret
// stays empty and must be supplied before Validate passes.
func Default() Config {
	return Config{
		ListenAddr:    DefaultListenAddr,
		DatabasePath:  DefaultDatabasePath,
		TokenTTL:      Duration(DefaultTokenTTL),
		DrainInterval: Duration(DefaultDrainInterval),
		BatchSize:     DefaultBatchSize,
		MaxRetries:    DefaultMaxRetries,
		SendQueueSize: DefaultSendQueueSize,
		FetchLimit:    DefaultFetchLimit,
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// Unknown fields are rejected so typos fail loudly instead of being
// silently ignored.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the relay cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("databasePath must not be empty")
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("tokenSecret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("tokenTTL must be positive, got %s", c.TokenTTL)
	}
	if c.DrainInterval <= 0 {
		return fmt.Errorf("drainInterval must be positive, got %s", c.DrainInterval)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be positive, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative, got %d", c.MaxRetries)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("sendQueueSize must be positive, got %d", c.SendQueueSize)
	}
	if c.FetchLimit <= 0 {
		return fmt.Errorf("fetchLimit must be positive, got %d", c.FetchLimit)
	}
	return nil
}
