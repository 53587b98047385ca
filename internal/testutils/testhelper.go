package testutils

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/stretchr/testify/require"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ClassicDevice builds a device.Info the way the adapter reports it.
func ClassicDevice(name, address string) device.Info {
	return device.Info{Name: name, Address: address, Type: device.TypeClassic}
}

// SendFromPeer writes data on the remote end of a mock connection.
// net.Pipe writes block until read, so the write runs on its own goroutine.
func (h *TestHelper) SendFromPeer(adapter *MockAdapter, address string, data []byte) {
	peer := adapter.Peer(address)
	require.NotNil(h.T, peer, "no peer for %s", address)
	go func() {
		_, _ = peer.Write(data)
	}()
}

// ReadFromPeer reads exactly n bytes written by the local side of a mock connection.
func (h *TestHelper) ReadFromPeer(adapter *MockAdapter, address string, n int) []byte {
	peer := adapter.Peer(address)
	require.NotNil(h.T, peer, "no peer for %s", address)
	require.NoError(h.T, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(peer, buf)
	require.NoError(h.T, err)
	return buf
}
