//go:build linux

package bluez

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	dbus "github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
)

// Adapter talks to bluetoothd over the system bus.
type Adapter struct {
	bus    *dbus.Conn
	opts   Options
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// New opens a private connection to the system bus, owned and closed by the Adapter.
// A running bluetoothd is not required until the first call.
func New(opts Options, logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	bus, err := connectPrivate(dbus.SystemBusPrivate)
	if err != nil {
		return nil, err
	}
	return &Adapter{bus: bus, opts: opts, logger: logger}, nil
}

// connectPrivate dials with open and runs the auth and Hello handshake that the
// shared connection helpers would otherwise do. The connection is closed on failure.
func connectPrivate(open func(...dbus.ConnOption) (*dbus.Conn, error)) (*dbus.Conn, error) {
	bus, err := open()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect system bus: %w", err)
	}
	if err := bus.Auth(nil); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bluez: authenticate on system bus: %w", err)
	}
	if err := bus.Hello(); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("bluez: system bus hello: %w", err)
	}
	return bus, nil
}

func (a *Adapter) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("bluez: adapter closed")
	}
	return nil
}

func (a *Adapter) managedObjects(ctx context.Context) (managedObjects, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	var objs managedObjects
	call := a.bus.Object(bluezService, dbus.ObjectPath("/")).CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return nil, fmt.Errorf("bluez: GetManagedObjects: %w", device.NormalizeError(call.Err))
	}
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez: decode GetManagedObjects: %w", err)
	}
	return objs, nil
}

// State implements device.Adapter.
func (a *Adapter) State(ctx context.Context) (device.AdapterState, error) {
	objs, err := a.managedObjects(ctx)
	if err != nil {
		return device.AdapterState{}, err
	}
	_, props, ok := firstAdapter(objs)
	if !ok {
		return device.AdapterState{}, nil
	}
	return adapterStateFromProps(props), nil
}

// SetPowered implements device.Adapter.
func (a *Adapter) SetPowered(ctx context.Context, on bool) error {
	objs, err := a.managedObjects(ctx)
	if err != nil {
		return err
	}
	path, _, ok := firstAdapter(objs)
	if !ok {
		return &device.NotFoundError{Resource: "adapter"}
	}
	call := a.bus.Object(bluezService, path).CallWithContext(ctx, propsIface+".Set", 0, adapterIface, "Powered", dbus.MakeVariant(on))
	if call.Err != nil {
		return fmt.Errorf("bluez: set Powered=%t: %w", on, device.NormalizeError(call.Err))
	}
	a.logger.WithFields(logrus.Fields{"adapter": path, "powered": on}).Info("Adapter power changed")
	return nil
}

// PairedDevices implements device.Adapter.
func (a *Adapter) PairedDevices(ctx context.Context) ([]device.Info, error) {
	objs, err := a.managedObjects(ctx)
	if err != nil {
		return nil, err
	}
	var out []device.Info
	for path, ifaces := range objs {
		if info, ok := deviceFromIfaces(path, ifaces); ok && info.Paired {
			out = append(out, info)
		}
	}
	sortByAddress(out)
	return out, nil
}

// Discover implements device.Adapter.
func (a *Adapter) Discover(ctx context.Context, handler func(device.Info)) error {
	objs, err := a.managedObjects(ctx)
	if err != nil {
		return err
	}
	adapterPath, _, ok := firstAdapter(objs)
	if !ok {
		return &device.NotFoundError{Resource: "adapter"}
	}
	adapterObj := a.bus.Object(bluezService, adapterPath)

	// Subscribe before starting inquiry so no InterfacesAdded is missed.
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := a.bus.AddMatchSignal(matchOpts...); err != nil {
		return fmt.Errorf("bluez: AddMatchSignal: %w", err)
	}
	defer func() { _ = a.bus.RemoveMatchSignal(matchOpts...) }()

	sigCh := make(chan *dbus.Signal, 16)
	a.bus.Signal(sigCh)
	defer a.bus.RemoveSignal(sigCh)

	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("bredr")}
	if err := adapterObj.CallWithContext(ctx, adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		a.logger.WithError(err).Debug("SetDiscoveryFilter failed, discovering all transports")
	}
	if err := adapterObj.CallWithContext(ctx, adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("bluez: StartDiscovery: %w", device.NormalizeError(err))
	}
	defer func() {
		// ctx is already done here; stopping needs a fresh call.
		if err := adapterObj.Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
			a.logger.WithError(err).Debug("StopDiscovery failed")
		}
	}()
	a.logger.WithField("adapter", adapterPath).Debug("Discovery started")

	for path, ifaces := range objs {
		if info, ok := deviceFromIfaces(path, ifaces); ok {
			handler(info)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-sigCh:
			if !ok {
				return nil
			}
			if sig == nil || sig.Name != objManagerIface+".InterfacesAdded" || len(sig.Body) < 2 {
				continue
			}
			path, _ := sig.Body[0].(dbus.ObjectPath)
			ifaces, _ := sig.Body[1].(map[string]map[string]dbus.Variant)
			if info, ok := deviceFromIfaces(path, ifaces); ok {
				handler(info)
			}
		}
	}
}

// Dial implements device.Adapter.
func (a *Adapter) Dial(ctx context.Context, address string) (device.Socket, error) {
	addr, err := device.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	info, err := a.lookup(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if len(info.UUIDs) > 0 && !device.HasService(info.UUIDs, device.SerialPortUUID) {
		return nil, &device.NotFoundError{Resource: "service", ID: device.SerialPortUUID}
	}

	logger := a.logger.WithField("address", info.Address)
	op := func() (device.Socket, error) {
		var lastErr error
		for _, ch := range a.opts.channels() {
			sock, err := dialRFCOMM(ctx, addr, ch)
			if err == nil {
				logger.WithField("channel", ch).Info("RFCOMM connected")
				return sock, nil
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			logger.WithError(err).WithField("channel", ch).Debug("RFCOMM channel refused")
			lastErr = err
		}
		return nil, device.NormalizeError(lastErr)
	}

	eb := backoff.NewExponentialBackOff()
	if a.opts.RetryInterval > 0 {
		eb.InitialInterval = a.opts.RetryInterval
	}
	retries := a.opts.ConnectRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	sock, err := backoff.RetryWithData(op, policy)
	if err != nil {
		return nil, fmt.Errorf("bluez: dial %s: %w", info.Address, err)
	}
	return sock, nil
}

// lookup finds a Device1 object by address.
func (a *Adapter) lookup(ctx context.Context, address string) (device.Info, error) {
	objs, err := a.managedObjects(ctx)
	if err != nil {
		return device.Info{}, err
	}
	if _, _, ok := firstAdapter(objs); !ok {
		return device.Info{}, &device.NotFoundError{Resource: "adapter"}
	}
	for path, ifaces := range objs {
		if info, ok := deviceFromIfaces(path, ifaces); ok && info.Address == address {
			return info, nil
		}
	}
	return device.Info{}, &device.NotFoundError{Resource: "device", ID: address}
}

// Close is safe for concurrent and redundant calls.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.bus.Close()
}
