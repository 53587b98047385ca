package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/devicefactory"
	"github.com/srg/btclassic/internal/dispatcher"
	"github.com/srg/btclassic/internal/metrics"
	"github.com/srg/btclassic/internal/session"
	"github.com/srg/btclassic/pkg/config"
	"github.com/srg/btclassic/scanner"
)

const shutdownTimeout = 5 * time.Second

// runtime is the object graph shared by the commands.
type runtime struct {
	cfg        *config.Config
	logger     *logrus.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	adapter    device.Adapter
	session    *session.Manager
	scanner    *scanner.Scanner
	dispatcher *dispatcher.Dispatcher
}

// loadConfig reads --config over the defaults and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// newRuntime wires the adapter, session, scanner and dispatcher. Interactive
// commands pass quiet so that only errors reach the terminal unless asked.
func newRuntime(cmd *cobra.Command, quiet bool) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	fallback := logrus.PanicLevel
	if !quiet {
		if fallback, err = logrus.ParseLevel(cfg.LogLevel); err != nil {
			fallback = logrus.InfoLevel
		}
	}
	logger, err := configureLogger(cmd, "verbose", fallback)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	adapter := devicefactory.NewAdapter(cfg.DialOptions(), logger)
	sess, err := session.NewManager(adapter, cfg.SessionOptions(), logger, m)
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}
	scan := scanner.NewScanner(adapter, logger).WithMetrics(m)

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		metrics:    m,
		adapter:    adapter,
		session:    sess,
		scanner:    scan,
		dispatcher: dispatcher.New(adapter, sess, scan, cfg.DispatcherOptions(), logger, m),
	}, nil
}

// Close stops discovery, tears down every connection and releases the adapter.
func (r *runtime) Close() {
	r.scanner.Stop()
	if err := r.session.Shutdown(shutdownTimeout); err != nil {
		r.logger.WithError(err).Warn("Session shutdown incomplete")
	}
	if err := r.adapter.Close(); err != nil {
		r.logger.WithError(err).Warn("Failed to close adapter")
	}
}
