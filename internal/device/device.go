package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// TypeClassic is the only device type reported by this module.
const TypeClassic = "classic"

// NotFoundError represents an error when a Bluetooth resource is not found
type NotFoundError struct {
	Resource string // "adapter", "device", "service"
	ID       string // address or UUID; may be empty
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// IsNotFound reports whether err is a NotFoundError, optionally for a specific resource.
// An empty resource matches any.
func IsNotFound(err error, resource string) bool {
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return false
	}
	return resource == "" || nf.Resource == resource
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrUnsupported    = errors.New("unsupported")
	ErrInvalidAddress = errors.New("invalid device address")
)

// NormalizeError maps known BlueZ and kernel error strings to structured error types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "org.bluez.Error.NotReady"),
		containsIgnoreCase(msg, "adapter is not powered"),
		containsIgnoreCase(msg, "network is down"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "org.bluez.Error.AlreadyConnected"),
		containsIgnoreCase(msg, "already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "org.bluez.Error.NotConnected"),
		containsIgnoreCase(msg, "transport endpoint is not connected"),
		containsIgnoreCase(msg, "connection reset by peer"),
		containsIgnoreCase(msg, "broken pipe"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "org.bluez.Error.DoesNotExist"):
		return fmt.Errorf("%w: %v", &NotFoundError{Resource: "device"}, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Info describes a remote device in the shape the method channel reports it.
type Info struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Type        string `json:"type"`
	IsConnected bool   `json:"isConnected"`

	Paired bool     `json:"-"`
	UUIDs  []string `json:"-"`
}

// AdapterState is a snapshot of the local Bluetooth controller.
type AdapterState struct {
	Present     bool
	Powered     bool
	Discovering bool
	Name        string
	Address     string
}

// Socket is an open RFCOMM stream to a remote device.
type Socket interface {
	io.ReadWriteCloser
}

// DeadlineReader is implemented by sockets that can bound a blocking read.
type DeadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Adapter is the native Bluetooth Classic backend.
type Adapter interface {
	// State reports controller presence and power. A missing controller is not an error.
	State(ctx context.Context) (AdapterState, error)

	// SetPowered asks the controller to power on or off.
	SetPowered(ctx context.Context, on bool) error

	// PairedDevices lists devices bonded with the local controller.
	PairedDevices(ctx context.Context) ([]Info, error)

	// Discover runs inquiry until ctx is done, invoking handler for every device seen.
	// Devices already known to the controller are reported first.
	Discover(ctx context.Context, handler func(Info)) error

	// Dial resolves the device by address and opens an RFCOMM stream to its serial port service.
	Dial(ctx context.Context, address string) (Socket, error)

	// Close releases backend resources.
	Close() error
}
