package device

import (
	"context"
	"fmt"
)

// Unavailable returns an Adapter for hosts without a usable Bluetooth backend.
// State reports no controller; every other operation fails with ErrUnsupported wrapping cause.
func Unavailable(cause error) Adapter {
	return &unavailableAdapter{cause: cause}
}

type unavailableAdapter struct {
	cause error
}

func (u *unavailableAdapter) err() error {
	if u.cause == nil {
		return ErrUnsupported
	}
	return fmt.Errorf("%w: %v", ErrUnsupported, u.cause)
}

func (u *unavailableAdapter) State(context.Context) (AdapterState, error) {
	return AdapterState{}, nil
}

func (u *unavailableAdapter) SetPowered(context.Context, bool) error { return u.err() }

func (u *unavailableAdapter) PairedDevices(context.Context) ([]Info, error) { return nil, u.err() }

func (u *unavailableAdapter) Discover(context.Context, func(Info)) error { return u.err() }

func (u *unavailableAdapter) Dial(context.Context, string) (Socket, error) { return nil, u.err() }

func (u *unavailableAdapter) Close() error { return nil }
