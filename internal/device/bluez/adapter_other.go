//go:build !linux

package bluez

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
)

// Adapter is unavailable outside Linux.
type Adapter struct{}

// New always fails: BlueZ only exists on Linux.
func New(Options, *logrus.Logger) (*Adapter, error) {
	return nil, fmt.Errorf("bluez: %w on this platform", device.ErrUnsupported)
}

func (a *Adapter) State(context.Context) (device.AdapterState, error) {
	return device.AdapterState{}, device.ErrUnsupported
}

func (a *Adapter) SetPowered(context.Context, bool) error { return device.ErrUnsupported }

func (a *Adapter) PairedDevices(context.Context) ([]device.Info, error) {
	return nil, device.ErrUnsupported
}

func (a *Adapter) Discover(context.Context, func(device.Info)) error { return device.ErrUnsupported }

func (a *Adapter) Dial(context.Context, string) (device.Socket, error) {
	return nil, device.ErrUnsupported
}

func (a *Adapter) Close() error { return nil }
