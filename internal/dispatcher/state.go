package dispatcher

import (
	"context"
	"sort"

	"github.com/srg/btclassic/internal/channel"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/scanner"
)

func (d *Dispatcher) state(ctx context.Context, method string) (device.AdapterState, bool) {
	st, err := d.adapter.State(ctx)
	if err != nil {
		d.logFailure(err, method, nil)
		return device.AdapterState{}, false
	}
	return st, true
}

func (d *Dispatcher) isAvailable(ctx context.Context, _ channel.Args) any {
	st, _ := d.state(ctx, "isAvailable")
	return st.Present
}

func (d *Dispatcher) isEnabled(ctx context.Context, _ channel.Args) any {
	st, _ := d.state(ctx, "isEnabled")
	return st.Present && st.Powered
}

// requestEnable powers the controller on and reports the resulting state.
func (d *Dispatcher) requestEnable(ctx context.Context, args channel.Args) any {
	st, ok := d.state(ctx, "requestEnable")
	if !ok || !st.Present {
		return false
	}
	if st.Powered {
		return true
	}
	if err := d.adapter.SetPowered(ctx, true); err != nil {
		d.logFailure(err, "requestEnable", nil)
		return false
	}
	return d.isEnabled(ctx, args)
}

func (d *Dispatcher) openSettings(context.Context, channel.Args) any {
	d.logger.Info("Bluetooth settings are managed by the host (bluetoothctl or the desktop settings panel)")
	return true
}

func (d *Dispatcher) getName(ctx context.Context, _ channel.Args) any {
	st, _ := d.state(ctx, "getName")
	return st.Name
}

func (d *Dispatcher) getAddress(ctx context.Context, _ channel.Args) any {
	st, _ := d.state(ctx, "getAddress")
	return st.Address
}

// pairedDevices returns the bonded devices with connection state from the session registry.
func (d *Dispatcher) pairedDevices(ctx context.Context, method string) []device.Info {
	devices, err := d.adapter.PairedDevices(ctx)
	if err != nil {
		d.logFailure(err, method, nil)
		return []device.Info{}
	}
	for i := range devices {
		devices[i].Type = device.TypeClassic
		if d.session.IsConnected(devices[i].Address) {
			devices[i].IsConnected = true
		}
	}
	return devices
}

func (d *Dispatcher) getPairedDevices(ctx context.Context, _ channel.Args) any {
	return d.pairedDevices(ctx, "getPairedDevices")
}

// startDiscovery begins inquiry in the background and returns the devices known so far:
// paired devices plus everything discovered by earlier or running inquiries.
func (d *Dispatcher) startDiscovery(ctx context.Context, _ channel.Args) any {
	if err := d.scanner.Start(ctx, &scanner.ScanOptions{Duration: d.opts.DiscoveryTimeout}); err != nil {
		d.logFailure(err, "startDiscovery", nil)
	}

	merged := make(map[string]device.Info)
	for _, info := range d.scanner.Devices() {
		info.IsConnected = d.session.IsConnected(info.Address)
		merged[info.Address] = info
	}
	for _, info := range d.pairedDevices(ctx, "startDiscovery") {
		merged[info.Address] = info
	}

	devices := make([]device.Info, 0, len(merged))
	for _, info := range merged {
		devices = append(devices, info)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices
}

func (d *Dispatcher) stopDiscovery(context.Context, channel.Args) any {
	d.scanner.Stop()
	return true
}

func (d *Dispatcher) isDiscovering(context.Context, channel.Args) any {
	return d.scanner.IsDiscovering()
}
