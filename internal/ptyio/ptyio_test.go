package ptyio

import (
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPort(t *testing.T, opts Options) Port {
	t.Helper()
	p, err := Open(opts)
	if err != nil {
		t.Skipf("PTY unavailable: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPort_ReadEmptyIsEAGAIN(t *testing.T) {
	p := openPort(t, Options{})

	n, err := p.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.True(t, errors.Is(err, syscall.EAGAIN))
	assert.NotEmpty(t, p.TTYName())
}

func TestPort_SlaveRoundTrip(t *testing.T) {
	p := openPort(t, Options{PollTimeout: 10 * time.Millisecond})

	slave, err := os.OpenFile(p.TTYName(), os.O_RDWR, 0)
	require.NoError(t, err)
	defer slave.Close()

	// slave -> port
	_, err = slave.Write([]byte("ping"))
	require.NoError(t, err)

	var got []byte
	require.Eventually(t, func() bool {
		buf := make([]byte, 16)
		n, _ := p.Read(buf)
		got = append(got, buf[:n]...)
		return string(got) == "ping"
	}, 2*time.Second, 10*time.Millisecond)

	// port -> slave
	n, err := p.Write([]byte("pong"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, slave.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4)
	_, err = slave.Read(buf)
	if err != nil && errors.Is(err, os.ErrNoDeadline) {
		t.Skip("slave does not support deadlines")
	}
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf))
}

func TestPort_WriteOverflowDrops(t *testing.T) {
	p := openPort(t, Options{WriteCap: 4})

	n, err := p.Write([]byte("abcdefgh"))
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 4)
	assert.Equal(t, uint64(8-n), p.Stats().DroppedWrite)
}

func TestPort_Close(t *testing.T) {
	p := openPort(t, Options{})

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())

	_, err := p.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
	_, err = p.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrClosed)
}
