// Package bridge exposes an RFCOMM connection as a local pseudo-terminal so
// serial tools (screen, minicom, pyserial) can talk to the remote device.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/ptyio"
	"github.com/srg/btclassic/internal/session"
)

const (
	// DefaultBufferSize is the ring size, in bytes, used in each direction of the PTY.
	DefaultBufferSize = 4096

	// DefaultPollInterval is how often the receive buffer is drained towards the PTY.
	DefaultPollInterval = 10 * time.Millisecond
)

// ErrConnectionLost is returned when the remote side goes away while bridging.
var ErrConnectionLost = errors.New("connection lost")

// Options configures a bridge run.
type Options struct {
	Address      string         // remote device address
	SymlinkPath  string         // optional symlink to the PTY slave, e.g. /tmp/rfcomm0
	BufferSize   int            // 0 = DefaultBufferSize
	PollInterval time.Duration  // 0 = DefaultPollInterval
	Logger       *logrus.Logger // nil = new logger
}

// ProgressCallback is called when the bridge phase changes.
type ProgressCallback func(phase string)

// Bridge is a running PTY bridge.
type Bridge struct {
	address string
	symlink string
	port    ptyio.Port
}

// TTYName returns the PTY slave path.
func (b *Bridge) TTYName() string {
	if b.port == nil {
		return ""
	}
	return b.port.TTYName()
}

// Symlink returns the symlink path, or "" when none was created.
func (b *Bridge) Symlink() string {
	return b.symlink
}

// Address returns the bridged device address.
func (b *Bridge) Address() string {
	return b.address
}

// Run connects to the device, starts its polling worker, opens a PTY and
// copies bytes both ways until ctx is done or the connection drops.
// ready is called once the PTY exists. The device is disconnected on return.
func Run(ctx context.Context, sess *session.Manager, opts Options, progress ProgressCallback, ready func(*Bridge)) error {
	if sess == nil {
		return fmt.Errorf("failed to execute bridge: session is required")
	}
	if opts.Address == "" {
		return fmt.Errorf("failed to execute bridge: device address is required")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if progress == nil {
		progress = func(string) {}
	}

	progress("Connecting")
	if err := sess.Connect(ctx, opts.Address); err != nil {
		progress("Failed")
		return fmt.Errorf("failed to connect to device %s: %w", opts.Address, err)
	}
	defer sess.Disconnect(opts.Address)
	progress("Connected")

	if err := sess.Listen(opts.Address); err != nil {
		return fmt.Errorf("failed to start listening on %s: %w", opts.Address, err)
	}

	progress("Setting up PTY")
	port, err := ptyio.Open(ptyio.Options{
		ReadCap:  opts.BufferSize,
		WriteCap: opts.BufferSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close PTY")
		}
	}()
	logger.WithField("tty", port.TTYName()).Info("Created PTY device")

	b := &Bridge{address: opts.Address, port: port}
	if opts.SymlinkPath != "" {
		if err := os.Symlink(port.TTYName(), opts.SymlinkPath); err != nil {
			return fmt.Errorf("failed to create tty symlink %s -> %s: %w", opts.SymlinkPath, port.TTYName(), err)
		}
		b.symlink = opts.SymlinkPath
		defer func() {
			if err := os.Remove(b.symlink); err != nil {
				logger.WithError(err).WithField("ttySymlink", b.symlink).Warn("Failed to remove tty symlink")
			}
		}()
		logger.WithFields(logrus.Fields{
			"ttySymlink": b.symlink,
			"target":     port.TTYName(),
		}).Info("Created PTY symlink")
	}

	progress("Running")
	if ready != nil {
		ready(b)
	}
	return Pump(ctx, sess, opts.Address, port, opts.PollInterval, logger)
}

// Pump moves bytes between port and the device's connection until ctx is done,
// the device disconnects or its polling worker stops. port.Read must not block; it reports "nothing yet"
// with (0, nil) or syscall.EAGAIN. Received bytes come from the receive buffer,
// so the device must be listening.
func Pump(ctx context.Context, sess *session.Manager, address string, port io.ReadWriter, interval time.Duration, logger *logrus.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	buf := make([]byte, DefaultBufferSize)

	for {
		if !sess.IsConnected(address) {
			return ErrConnectionLost
		}
		// The polling worker stops on peer hangup while the registry entry stays.
		// Sampled before the drain so bytes appended before it stopped still reach the PTY.
		listening := sess.IsListening(address)

		if data := sess.Read(address); len(data) > 0 {
			if n, err := port.Write(data); err != nil {
				return fmt.Errorf("failed to write to PTY: %w", err)
			} else if n < len(data) {
				logger.WithField("dropped", len(data)-n).Warn("PTY output truncated")
			}
		}
		if !listening {
			logger.WithField("address", address).Info("Device stopped sending, closing bridge")
			return ErrConnectionLost
		}

		n, err := port.Read(buf)
		if n > 0 {
			if werr := sess.Write(address, buf[:n]); werr != nil {
				return fmt.Errorf("failed to write to device %s: %w", address, werr)
			}
		}
		if err != nil && !errors.Is(err, syscall.EAGAIN) {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read from PTY: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
