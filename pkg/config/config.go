package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device/bluez"
	"github.com/srg/btclassic/internal/dispatcher"
	"github.com/srg/btclassic/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Method channel
	ChannelName string `yaml:"channel_name" default:"bluetooth_classic_multiplatform"`
	EventBuffer int    `yaml:"event_buffer" default:"64"`

	// Connection
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"30s"`
	ConnectRetries  int           `yaml:"connect_retries" default:"2"`
	RetryInterval   time.Duration `yaml:"retry_interval" default:"250ms"`
	RFCOMMChannel   int           `yaml:"rfcomm_channel" default:"0"`
	MaxProbeChannel int           `yaml:"max_probe_channel" default:"5"`

	// Polling worker
	PollInterval  time.Duration `yaml:"poll_interval" default:"10ms"`
	ReadChunkSize int           `yaml:"read_chunk_size" default:"1024"`
	ReadTimeout   time.Duration `yaml:"read_timeout" default:"100ms"`
	MaxListeners  int           `yaml:"max_listeners" default:"64"`

	// Discovery
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" default:"8s"`

	// Monitoring endpoint; empty disables it
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Fields absent from the file keep their defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ChannelName == "" {
		errs = append(errs, errors.New("channel_name must not be empty"))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, errors.New("event_buffer must be positive"))
	}
	if c.RFCOMMChannel < 0 || c.RFCOMMChannel > 30 {
		errs = append(errs, fmt.Errorf("rfcomm_channel must be 0..30, got %d", c.RFCOMMChannel))
	}
	if c.MaxProbeChannel < 1 || c.MaxProbeChannel > 30 {
		errs = append(errs, fmt.Errorf("max_probe_channel must be 1..30, got %d", c.MaxProbeChannel))
	}
	if c.ConnectRetries < 0 {
		errs = append(errs, errors.New("connect_retries must not be negative"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.ReadChunkSize <= 0 {
		errs = append(errs, errors.New("read_chunk_size must be positive"))
	}
	if c.MaxListeners <= 0 {
		errs = append(errs, errors.New("max_listeners must be positive"))
	}
	return errors.Join(errs...)
}

// DialOptions returns the RFCOMM dialing options for the native backend.
func (c *Config) DialOptions() bluez.Options {
	return bluez.Options{
		Channel:         c.RFCOMMChannel,
		MaxProbeChannel: c.MaxProbeChannel,
		ConnectRetries:  c.ConnectRetries,
		RetryInterval:   c.RetryInterval,
	}
}

// SessionOptions returns the connection and polling settings.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		ConnectTimeout: c.ConnectTimeout,
		PollInterval:   c.PollInterval,
		ReadTimeout:    c.ReadTimeout,
		ReadChunkSize:  c.ReadChunkSize,
		MaxListeners:   c.MaxListeners,
		EventBuffer:    c.EventBuffer,
	}
}

// DispatcherOptions returns the method channel settings.
func (c *Config) DispatcherOptions() dispatcher.Options {
	return dispatcher.Options{
		Channel:          c.ChannelName,
		DiscoveryTimeout: c.DiscoveryTimeout,
	}
}

// NewLogger creates a configured logger instance. An unparsable level falls back to info.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
