package session

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/groutine"
)

// poll moves bytes from the socket into the receive buffer until the listener is
// stopped, the connection is replaced or removed, or the stream ends.
// On exit it removes its own listening entry and never a newer one.
func (m *Manager) poll(ctx context.Context, c *connection, l *listener) {
	log := m.logger.WithFields(logrus.Fields{
		"address":   c.address,
		"goroutine": groutine.GetName(ctx),
	})
	log.Debug("Polling worker started")

	defer func() {
		m.mu.Lock()
		if cur, ok := m.listeners.Get(c.address); ok && cur == l {
			m.listeners.Del(c.address)
		}
		n := m.listeners.Len()
		m.mu.Unlock()
		m.metrics.SetListeners(n)
		log.Debug("Polling worker stopped")
	}()

	buf := make([]byte, m.opts.ReadChunkSize)
	deadlines, _ := c.socket.(device.DeadlineReader)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		default:
		}
		if !m.isCurrent(c, l) {
			return
		}

		if deadlines != nil && m.opts.ReadTimeout > 0 {
			_ = deadlines.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		}
		n, err := c.socket.Read(buf)

		if n > 0 {
			if !m.buffers.AppendIf(c.address, buf[:n], func() bool { return m.isCurrent(c, l) }) {
				return
			}
			m.metrics.Received(n)
			log.WithField("bytes", n).Trace("Received data")
		}

		switch {
		case err == nil && n == 0:
			return
		case errors.Is(err, os.ErrDeadlineExceeded):
		case errors.Is(err, io.EOF):
			log.Debug("Stream closed by peer")
			return
		case err != nil:
			log.WithError(err).Debug("Read failed")
			return
		}

		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}
	}
}
