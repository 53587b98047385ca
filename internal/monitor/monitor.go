// Package monitor serves Prometheus metrics and liveness/readiness probes over HTTP.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/groutine"
)

const (
	namespace          = "btclassic"
	checkTimeout       = 2 * time.Second
	goroutineThreshold = 1000
)

// NewHandler builds the monitoring mux: /metrics, /live and /ready.
// Readiness requires a present and powered controller.
func NewHandler(adapter device.Adapter, reg *prometheus.Registry) http.Handler {
	health := healthcheck.NewMetricsHandler(reg, namespace)
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	health.AddReadinessCheck("adapter-powered", healthcheck.Timeout(AdapterCheck(adapter), checkTimeout))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	return mux
}

// AdapterCheck fails unless the controller is present and powered.
func AdapterCheck(adapter device.Adapter) healthcheck.Check {
	return func() error {
		st, err := adapter.State(context.Background())
		if err != nil {
			return err
		}
		if !st.Present {
			return &device.NotFoundError{Resource: "adapter"}
		}
		if !st.Powered {
			return device.ErrBluetoothOff
		}
		return nil
	}
}

// Server is a running monitoring endpoint.
type Server struct {
	srv    *http.Server
	addr   net.Addr
	logger *logrus.Logger
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.New()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv:    &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr(),
		logger: logger,
	}
	groutine.Go(context.Background(), "monitor", func(context.Context) {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Monitoring endpoint stopped")
		}
	})
	logger.WithField("addr", s.addr.String()).Info("Monitoring endpoint listening")
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.addr.String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
