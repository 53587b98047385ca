package main

import (
	"errors"
	"fmt"

	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/session"
)

// FormatUserError turns internal errors into a one-line message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off; power on the adapter and retry"
	case device.IsNotFound(err, "adapter"):
		return "no Bluetooth adapter found"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("Bluetooth backend unavailable: %v", err)
	case errors.Is(err, device.ErrInvalidAddress):
		return fmt.Sprintf("%v (expected XX:XX:XX:XX:XX:XX)", err)
	case errors.Is(err, session.ErrListenerPoolFull):
		return "too many listening connections; raise max_listeners"
	default:
		return err.Error()
	}
}
