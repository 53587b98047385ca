//go:build linux

package bluez

import (
	"context"
	"fmt"
	"os"

	"github.com/srg/btclassic/internal/device"
	"golang.org/x/sys/unix"
)

// dialRFCOMM opens a stream socket to addr on the given channel.
// The returned file is in non-blocking mode so it supports read deadlines.
func dialRFCOMM(ctx context.Context, addr device.Address, channel uint8) (*os.File, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.BTPROTO_RFCOMM)
	if err != nil {
		return nil, fmt.Errorf("create RFCOMM socket: %w", err)
	}

	sa := &unix.SockaddrRFCOMM{Addr: addr.Reversed(), Channel: channel}
	done := make(chan error, 1)
	go func() {
		done <- unix.Connect(fd, sa)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		// Shutdown aborts the pending connect; wait for it before releasing the fd.
		_ = unix.Shutdown(fd, unix.SHUT_RDWR)
		<-done
		_ = unix.Close(fd)
		return nil, ctx.Err()
	}
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("connect channel %d: %w", channel, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), "rfcomm:"+addr.String()), nil
}
