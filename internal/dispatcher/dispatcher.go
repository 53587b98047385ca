// Package dispatcher routes method channel calls to the Bluetooth adapter,
// the scanner and the connection session. Calls never fail across the channel:
// bad arguments produce empty results and native failures produce false.
package dispatcher

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/channel"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/metrics"
	"github.com/srg/btclassic/internal/session"
	"github.com/srg/btclassic/scanner"
)

// DefaultChannel is the base channel name; sub-channels append "/state", "/discovery", "/data" or "/connection".
const DefaultChannel = "bluetooth_classic_multiplatform"

var subChannels = []string{"", "/state", "/discovery", "/data", "/connection"}

// Options configures a Dispatcher.
type Options struct {
	Channel          string
	DiscoveryTimeout time.Duration
}

type handlerFunc func(ctx context.Context, args channel.Args) any

// Dispatcher implements channel.Handler.
type Dispatcher struct {
	adapter  device.Adapter
	session  *session.Manager
	scanner  *scanner.Scanner
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	opts     Options
	channels map[string]struct{}
	methods  map[string]handlerFunc
}

// New creates a Dispatcher. A nil logger gets a fresh one; a nil metrics records nothing.
func New(adapter device.Adapter, sess *session.Manager, scan *scanner.Scanner, opts Options, logger *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if scan == nil {
		scan = scanner.NewScanner(adapter, logger)
	}

	d := &Dispatcher{
		adapter:  adapter,
		session:  sess,
		scanner:  scan,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		channels: make(map[string]struct{}, len(subChannels)),
	}
	for _, suffix := range subChannels {
		d.channels[opts.Channel+suffix] = struct{}{}
	}

	d.methods = map[string]handlerFunc{
		// stream lifecycle
		"listen": d.listen,
		"cancel": d.cancelStream,
		"close":  d.closeStream,

		// availability and enablement
		"isAvailable":        d.isAvailable,
		"isEnabled":          d.isEnabled,
		"isOn":               d.isEnabled,
		"enable":             d.isEnabled,
		"requestEnable":      d.requestEnable,
		"openSettings":       d.openSettings,
		"requestPermissions": alwaysTrue,
		"ensurePermissions":  alwaysTrue,
		"getName":            d.getName,
		"getAddress":         d.getAddress,

		// discovery
		"getPairedDevices": d.getPairedDevices,
		"getBondedDevices": d.getPairedDevices,
		"startDiscovery":   d.startDiscovery,
		"stopDiscovery":    d.stopDiscovery,
		"isDiscovering":    d.isDiscovering,

		// connection lifecycle
		"connect":             d.connect,
		"disconnect":          d.disconnect,
		"isConnected":         d.isConnected,
		"getConnectedDevices": d.getConnectedDevices,

		// data transfer
		"writeData": d.writeData,
		"write":     d.writeData,
		"readData":  d.readData,
		"readBytes": d.readBytes,
		"available": d.available,
		"flush":     d.flush,

		// misc
		"destroy":            alwaysTrue,
		"finish":             alwaysTrue,
		"getPlatformVersion": platformVersion,
	}
	return d
}

// Channels returns the channel names this dispatcher answers on, sorted.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle implements channel.Handler.
func (d *Dispatcher) Handle(ctx context.Context, ch, method string, args channel.Args) (any, error) {
	if _, ok := d.channels[ch]; !ok {
		d.metrics.Call(method, "not_implemented")
		return nil, channel.ErrNotImplemented
	}
	h, ok := d.methods[method]
	if !ok {
		d.metrics.Call(method, "not_implemented")
		return nil, channel.ErrNotImplemented
	}
	result := h(ctx, args)
	d.metrics.Call(method, "ok")
	return result, nil
}

func alwaysTrue(context.Context, channel.Args) any { return true }

func platformVersion(context.Context, channel.Args) any {
	if runtime.GOOS == "" {
		return "Unknown"
	}
	return strings.ToUpper(runtime.GOOS[:1]) + runtime.GOOS[1:]
}

// logFailure logs a native failure that is reduced to a default result.
func (d *Dispatcher) logFailure(err error, method string, fields logrus.Fields) {
	entry := d.logger.WithError(err).WithField("method", method)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Warn("Call failed")
}
