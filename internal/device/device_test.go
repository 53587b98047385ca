package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionError_Is(t *testing.T) {
	err := fmt.Errorf("dial: %w", &ConnectionError{State: NotConnected, Msg: "socket closed"})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.False(t, IsConnectionState(errors.New("other"), NotConnected))
}

func TestConnectionError_Error(t *testing.T) {
	assert.Equal(t, "not_connected", ErrNotConnected.Error())
	assert.Equal(t, "bluetooth_off: adapter hci0", (&ConnectionError{State: BluetoothOff, Msg: "adapter hci0"}).Error())

	var nilErr *ConnectionError
	assert.Equal(t, "<nil>", nilErr.Error())
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{name: "without id", err: &NotFoundError{Resource: "adapter"}, expected: "adapter not found"},
		{name: "with id", err: &NotFoundError{Resource: "device", ID: "AA:BB:CC:DD:EE:FF"}, expected: `device "AA:BB:CC:DD:EE:FF" not found`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}

	wrapped := fmt.Errorf("connect: %w", &NotFoundError{Resource: "service", ID: SerialPortUUID})
	assert.True(t, IsNotFound(wrapped, "service"))
	assert.True(t, IsNotFound(wrapped, ""))
	assert.False(t, IsNotFound(wrapped, "device"))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name   string
		input  error
		expect error
	}{
		{name: "bluez not ready", input: errors.New("org.bluez.Error.NotReady: Resource Not Ready"), expect: ErrBluetoothOff},
		{name: "kernel network down", input: errors.New("connect: network is down"), expect: ErrBluetoothOff},
		{name: "already connected", input: errors.New("org.bluez.Error.AlreadyConnected"), expect: ErrAlreadyConnected},
		{name: "reset by peer", input: errors.New("read: connection reset by peer"), expect: ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.expect)
			assert.Contains(t, err.Error(), tt.input.Error())
		})
	}

	t.Run("does not exist maps to device not found", func(t *testing.T) {
		err := NormalizeError(errors.New("org.bluez.Error.DoesNotExist: Does Not Exist"))
		assert.True(t, IsNotFound(err, "device"))
	})

	t.Run("unknown error passes through", func(t *testing.T) {
		orig := errors.New("something else")
		assert.Same(t, orig, NormalizeError(orig))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})
}
