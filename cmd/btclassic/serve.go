package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/btclassic/internal/channel"
	"github.com/srg/btclassic/internal/groutine"
	"github.com/srg/btclassic/internal/monitor"
	"github.com/srg/btclassic/internal/session"
	"github.com/srg/btclassic/scanner"
)

const (
	// EventConnectionStateChanged carries session.Event payloads.
	EventConnectionStateChanged = "connectionStateChanged"
	// EventDeviceDiscovered carries a device.Info for each inquiry result.
	EventDeviceDiscovered = "deviceDiscovered"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the method channel on stdin/stdout",
	Long: `Reads one JSON request per line from stdin and writes one JSON response per
line to stdout. Connection state changes and discovered devices are pushed
as unsolicited events. Logs go to stderr.

Request:  {"id":1,"channel":"bluetooth_classic_multiplatform","method":"isEnabled"}
Response: {"id":1,"result":true}
Event:    {"event":"connectionStateChanged","arguments":{"address":"...","isConnected":false}}
Event:    {"event":"deviceDiscovered","arguments":{"name":"...","address":"...","type":"classic","isConnected":false}}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveMetricsAddr string

func init() {
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve /metrics, /live and /ready on this address (e.g. :9400)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := rt.cfg.MetricsAddr
	if serveMetricsAddr != "" {
		addr = serveMetricsAddr
	}
	if addr != "" {
		mon, err := monitor.Start(addr, monitor.NewHandler(rt.adapter, rt.registry), rt.logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mon.Shutdown(shutdownCtx); err != nil {
				rt.logger.WithError(err).Warn("Failed to stop monitoring endpoint")
			}
		}()
	}

	server := channel.NewServer(rt.dispatcher, cmd.OutOrStdout(), rt.logger)
	fwd := &eventForwarder{server: server, logger: rt.logger, isConnected: rt.session.IsConnected}
	fwdCtx, stopForwarding := context.WithCancel(ctx)
	forwarded := make(chan struct{})
	groutine.Go(fwdCtx, "event-forwarder", func(ctx context.Context) {
		defer close(forwarded)
		fwd.run(ctx, rt.session.Events(), rt.scanner.Events())
	})

	rt.logger.WithField("channels", rt.dispatcher.Channels()).Info("Method channel ready")
	err = server.Serve(ctx, cmd.InOrStdin())

	// no writes to stdout once runServe has returned
	stopForwarding()
	<-forwarded
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// eventForwarder pushes session and discovery events to the host.
type eventForwarder struct {
	server      *channel.Server
	logger      *logrus.Logger
	isConnected func(address string) bool
}

// run forwards events until ctx is done or both sources are closed. Events
// already queued when ctx ends are still sent.
func (f *eventForwarder) run(ctx context.Context, conns <-chan session.Event, discovered <-chan scanner.DeviceEvent) {
	for conns != nil || discovered != nil {
		select {
		case <-ctx.Done():
			f.flush(conns, discovered)
			return
		case ev, ok := <-conns:
			if !ok {
				conns = nil
				continue
			}
			f.connectionChanged(ev)
		case ev, ok := <-discovered:
			if !ok {
				discovered = nil
				continue
			}
			f.deviceDiscovered(ev)
		}
	}
}

func (f *eventForwarder) flush(conns <-chan session.Event, discovered <-chan scanner.DeviceEvent) {
	for {
		select {
		case ev, ok := <-conns:
			if !ok {
				conns = nil
				continue
			}
			f.connectionChanged(ev)
		case ev, ok := <-discovered:
			if !ok {
				discovered = nil
				continue
			}
			f.deviceDiscovered(ev)
		default:
			return
		}
	}
}

func (f *eventForwarder) connectionChanged(ev session.Event) {
	if err := f.server.Notify(EventConnectionStateChanged, ev); err != nil {
		f.logger.WithError(err).WithField("address", ev.Address).Warn("Failed to send event")
	}
}

func (f *eventForwarder) deviceDiscovered(ev scanner.DeviceEvent) {
	info := ev.Device
	if f.isConnected != nil {
		info.IsConnected = f.isConnected(info.Address)
	}
	if err := f.server.Notify(EventDeviceDiscovered, info); err != nil {
		f.logger.WithError(err).WithField("address", info.Address).Warn("Failed to send event")
	}
}
