package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "bluetooth_classic_multiplatform", cfg.ChannelName)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2, cfg.ConnectRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 0, cfg.RFCOMMChannel)
	assert.Equal(t, 5, cfg.MaxProbeChannel)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 1024, cfg.ReadChunkSize)
	assert.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, 64, cfg.MaxListeners)
	assert.Equal(t, 8*time.Second, cfg.DiscoveryTimeout)
	assert.Empty(t, cfg.MetricsAddr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides only the fields it sets", func(t *testing.T) {
		path := writeFile(t, `
log_level: debug
poll_interval: 25ms
rfcomm_channel: 1
metrics_addr: ":9400"
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 1, cfg.RFCOMMChannel)
		assert.Equal(t, ":9400", cfg.MetricsAddr)
		assert.Equal(t, 1024, cfg.ReadChunkSize, "unset field keeps default")
		assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "unset field keeps default")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "poll_interval: [oops"))
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeFile(t, "log_level: loud\nrfcomm_channel: 42\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log_level")
		assert.Contains(t, err.Error(), "rfcomm_channel must be 0..30")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "empty channel name", mutate: func(c *Config) { c.ChannelName = "" }, errMsg: "channel_name"},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, errMsg: "poll_interval"},
		{name: "zero chunk size", mutate: func(c *Config) { c.ReadChunkSize = 0 }, errMsg: "read_chunk_size"},
		{name: "zero listeners", mutate: func(c *Config) { c.MaxListeners = 0 }, errMsg: "max_listeners"},
		{name: "negative retries", mutate: func(c *Config) { c.ConnectRetries = -1 }, errMsg: "connect_retries"},
		{name: "probe channel out of range", mutate: func(c *Config) { c.MaxProbeChannel = 0 }, errMsg: "max_probe_channel"},
		{name: "zero event buffer", mutate: func(c *Config) { c.EventBuffer = 0 }, errMsg: "event_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestConfig_DialOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RFCOMMChannel = 3

	opts := cfg.DialOptions()
	assert.Equal(t, 3, opts.Channel)
	assert.Equal(t, 5, opts.MaxProbeChannel)
	assert.Equal(t, 2, opts.ConnectRetries)
	assert.Equal(t, 250*time.Millisecond, opts.RetryInterval)
}

func TestConfig_SessionOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxListeners = 3

	opts := cfg.SessionOptions()

	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 5*time.Millisecond, opts.PollInterval)
	assert.Equal(t, 100*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 1024, opts.ReadChunkSize)
	assert.Equal(t, 3, opts.MaxListeners)
	assert.Equal(t, 64, opts.EventBuffer)
}

func TestConfig_DispatcherOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChannelName = "custom"

	opts := cfg.DispatcherOptions()

	assert.Equal(t, "custom", opts.Channel)
	assert.Equal(t, 8*time.Second, opts.DiscoveryTimeout)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "btclassic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
