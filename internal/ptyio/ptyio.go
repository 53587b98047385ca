// Package ptyio wraps a pseudo-terminal master in ring buffers so that callers
// get non-blocking Read and Write. Background loops move bytes between the
// rings and the master using poll(2).
//
//	port, err := ptyio.Open(ptyio.Options{ReadCap: 4096, WriteCap: 4096})
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//	fmt.Println(port.TTYName()) // /dev/pts/N
//
// Write drops bytes when the outgoing ring is full and reports the queued count.
// Read returns syscall.EAGAIN when nothing is buffered.
package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/btclassic/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DefaultPollTimeout bounds how long a loop waits for readiness before rechecking for shutdown.
const DefaultPollTimeout = 50 * time.Millisecond

// DefaultCapacity is the ring size used when Options leaves it zero.
const DefaultCapacity = 4096

// Port is a non-blocking pseudo-terminal endpoint.
type Port interface {
	io.ReadWriteCloser
	TTYName() string
	Stats() Stats
}

// Stats are runtime counters for a Port.
type Stats struct {
	ReadQueueLen  int
	WriteQueueLen int
	DroppedRead   uint64
	DroppedWrite  uint64
	BytesRead     uint64
	BytesWritten  uint64
}

// Options configures Open. Zero values take defaults.
type Options struct {
	ReadCap     int // bytes buffered from the slave side
	WriteCap    int // bytes queued towards the slave side
	PollTimeout time.Duration
	Logger      *logrus.Logger
}

type ringPort struct {
	logger      *logrus.Logger
	master      *os.File
	slave       *os.File
	ttyName     string
	pollTimeout int

	in  *ringbuffer.RingBuffer // from slave
	out *ringbuffer.RingBuffer // to slave

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedRead  atomic.Uint64
	droppedWrite atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// Open allocates a PTY pair, puts the slave in raw mode and starts the I/O loops.
func Open(opts Options) (Port, error) {
	if opts.ReadCap <= 0 {
		opts.ReadCap = DefaultCapacity
	}
	if opts.WriteCap <= 0 {
		opts.WriteCap = DefaultCapacity
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	master, slave, err := openRaw()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &ringPort{
		logger:      logger,
		master:      master,
		slave:       slave,
		ttyName:     slave.Name(),
		pollTimeout: int(opts.PollTimeout / time.Millisecond),
		in:          ringbuffer.New(opts.ReadCap),
		out:         ringbuffer.New(opts.WriteCap),
		cancel:      cancel,
	}

	p.wg.Add(2)
	groutine.Go(ctx, "pty-read", func(ctx context.Context) {
		defer p.wg.Done()
		p.readLoop(ctx)
	})
	groutine.Go(ctx, "pty-write", func(ctx context.Context) {
		defer p.wg.Done()
		p.writeLoop(ctx)
	})
	return p, nil
}

func openRaw() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}
	fail := func(step string, err error) (*os.File, *os.File, error) {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, nil, fmt.Errorf("failed to set PTY %s to %s mode: %w", name, step, err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("nonblocking", err)
	}
	return master, slave, nil
}

func (p *ringPort) readLoop(ctx context.Context) {
	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		ready, err := unix.Poll(fds, p.pollTimeout)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Warn("PTY read poll failed")
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := p.master.Read(buf)
		if n > 0 {
			written, _ := p.in.Write(buf[:n])
			if written < n {
				p.droppedRead.Add(uint64(n - written))
				p.logger.WithField("dropped", n-written).Warn("PTY read ring full")
			}
			p.bytesRead.Add(uint64(written))
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			p.logger.WithError(err).Debug("PTY read loop exiting")
			return
		}
	}
}

func (p *ringPort) writeLoop(ctx context.Context) {
	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)

	for ctx.Err() == nil {
		if p.out.IsEmpty() {
			time.Sleep(time.Duration(p.pollTimeout) * time.Millisecond / 5)
			continue
		}
		n, _ := p.out.TryRead(buf)
		for off := 0; off < n; {
			written, err := p.master.Write(buf[off:n])
			off += written
			p.bytesWritten.Add(uint64(written))
			if err == nil {
				continue
			}
			switch {
			case errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				_, _ = unix.Poll(fds, p.pollTimeout)
			default:
				p.logger.WithError(err).Debug("PTY write loop exiting")
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// Write queues data for the slave side. It never blocks.
func (p *ringPort) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	written, err := p.out.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return written, err
	}
	if written < len(data) {
		p.droppedWrite.Add(uint64(len(data) - written))
		p.logger.WithField("dropped", len(data)-written).Warn("PTY write ring full")
	}
	return written, nil
}

// Read returns buffered bytes from the slave side, or syscall.EAGAIN if there are none.
func (p *ringPort) Read(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.in.TryRead(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, err
	}
	if n == 0 {
		return 0, syscall.EAGAIN
	}
	return n, nil
}

// Close stops the loops and closes both ends. Safe to call more than once.
func (p *ringPort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	groutine.Go(context.Background(), "pty-close", func(context.Context) {
		p.wg.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Duration(p.pollTimeout)*time.Millisecond*2 + time.Second):
		p.logger.WithField("tty", p.ttyName).Warn("PTY loops did not exit in time")
	}

	return errors.Join(p.master.Close(), p.slave.Close())
}

func (p *ringPort) TTYName() string {
	return p.ttyName
}

func (p *ringPort) Stats() Stats {
	return Stats{
		ReadQueueLen:  p.in.Length(),
		WriteQueueLen: p.out.Length(),
		DroppedRead:   p.droppedRead.Load(),
		DroppedWrite:  p.droppedWrite.Load(),
		BytesRead:     p.bytesRead.Load(),
		BytesWritten:  p.bytesWritten.Load(),
	}
}
