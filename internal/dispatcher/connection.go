package dispatcher

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/channel"
)

// ----------------------------
// Stream lifecycle
// ----------------------------

// listen starts the polling worker when a device argument names a connected device.
// Without a device argument it succeeds without doing anything.
func (d *Dispatcher) listen(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyDevice)
	if !ok {
		return true
	}
	if err := d.session.Listen(addr); err != nil {
		d.logFailure(err, "listen", logrus.Fields{"address": addr})
		return false
	}
	return true
}

func (d *Dispatcher) cancelStream(_ context.Context, args channel.Args) any {
	if addr, ok := args.String(channel.KeyAddress); ok {
		d.session.Cancel(addr)
	}
	return true
}

func (d *Dispatcher) closeStream(_ context.Context, args channel.Args) any {
	if addr, ok := args.String(channel.KeyAddress); ok {
		d.session.Close(addr)
	}
	return true
}

// ----------------------------
// Connection lifecycle
// ----------------------------

func (d *Dispatcher) connect(ctx context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return false
	}
	if err := d.session.Connect(ctx, addr); err != nil {
		d.logFailure(err, "connect", logrus.Fields{"address": addr})
		return false
	}
	return true
}

// disconnect closes one connection, or all of them when the call has no arguments.
func (d *Dispatcher) disconnect(_ context.Context, args channel.Args) any {
	if args.IsNil() {
		d.session.DisconnectAll()
		return true
	}
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return false
	}
	d.session.Disconnect(addr)
	return true
}

func (d *Dispatcher) isConnected(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	return ok && d.session.IsConnected(addr)
}

func (d *Dispatcher) getConnectedDevices(context.Context, channel.Args) any {
	return d.session.ConnectedDevices()
}

// ----------------------------
// Data transfer
// ----------------------------

func (d *Dispatcher) writeData(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return false
	}
	data, ok := args.Bytes(channel.KeyData)
	if !ok {
		return false
	}
	if err := d.session.Write(addr, data); err != nil {
		d.logFailure(err, "writeData", logrus.Fields{"address": addr, "bytes": len(data)})
		return false
	}
	return true
}

func (d *Dispatcher) readData(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return ""
	}
	return string(d.session.Read(addr))
}

// readBytes drains like readData but returns byte values, which survive JSON intact.
func (d *Dispatcher) readBytes(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return []int{}
	}
	return channel.IntList(d.session.Read(addr))
}

func (d *Dispatcher) available(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return 0
	}
	return d.session.Available(addr)
}

func (d *Dispatcher) flush(_ context.Context, args channel.Args) any {
	addr, ok := args.String(channel.KeyAddress)
	if !ok {
		return false
	}
	d.session.Flush(addr)
	return true
}
