// Package session owns the live RFCOMM connections: the connection registry,
// the receive buffers, the listening set and the polling workers that move
// bytes from sockets into buffers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/groutine"
	"github.com/srg/btclassic/internal/metrics"
	"github.com/srg/btclassic/internal/ringchan"
)

var (
	ErrEmptyPayload     = errors.New("empty payload")
	ErrListenerPoolFull = errors.New("listener pool is full")
	ErrClosed           = errors.New("session is shut down")
)

// ConnectedDeviceName is reported for registry entries, which carry no remote name.
const ConnectedDeviceName = "Connected Device"

// ----------------------------
// Options
// ----------------------------

// Options tunes connection and polling behavior.
type Options struct {
	ConnectTimeout time.Duration // bounds a whole connect attempt; 0 means unbounded
	PollInterval   time.Duration
	ReadTimeout    time.Duration // per-read deadline when the socket supports it
	ReadChunkSize  int
	MaxListeners   int
	EventBuffer    int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 30 * time.Second,
		PollInterval:   10 * time.Millisecond,
		ReadTimeout:    100 * time.Millisecond,
		ReadChunkSize:  1024,
		MaxListeners:   64,
		EventBuffer:    64,
	}
}

// Event reports a connection state change.
type Event struct {
	Address     string `json:"address"`
	IsConnected bool   `json:"isConnected"`
}

// ----------------------------
// Registry entries
// ----------------------------

type connection struct {
	address string
	socket  device.Socket
	gen     uint64
	writeMu sync.Mutex
}

type listener struct {
	gen  uint64 // generation of the connection it was started for
	stop chan struct{}
	once sync.Once
}

func (l *listener) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// ----------------------------
// Manager
// ----------------------------

// Manager owns the connection registry, the listening set and the receive buffers.
// Both maps are read without locking; every mutation happens under mu.
type Manager struct {
	adapter device.Adapter
	opts    Options
	logger  *logrus.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	gen       uint64
	closed    bool
	conns     *hashmap.Map[string, *connection]
	listeners *hashmap.Map[string, *listener]

	buffers *Buffers
	pool    *ants.Pool
	events  *ringchan.Ring[Event]
}

// NewManager creates a Manager dialing through adapter. A nil logger gets a fresh one;
// a nil metrics records nothing.
func NewManager(adapter device.Adapter, opts Options, logger *logrus.Logger, m *metrics.Metrics) (*Manager, error) {
	if adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ReadChunkSize <= 0 {
		opts.ReadChunkSize = def.ReadChunkSize
	}
	if opts.MaxListeners <= 0 {
		opts.MaxListeners = def.MaxListeners
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}

	pool, err := ants.NewPool(opts.MaxListeners,
		ants.WithNonblocking(true),
		ants.WithLogger(logger),
		ants.WithPanicHandler(func(p any) {
			logger.WithField("panic", p).Error("Polling worker panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	events := ringchan.New[Event](opts.EventBuffer)
	events.OnDrop(func() { m.EventDropped("session") })

	return &Manager{
		adapter:   adapter,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		conns:     hashmap.New[string, *connection](),
		listeners: hashmap.New[string, *listener](),
		buffers:   NewBuffers(),
		pool:      pool,
		events:    events,
	}, nil
}

// Events delivers connection state changes. The channel is closed by Shutdown.
func (m *Manager) Events() <-chan Event {
	return m.events.C()
}

func (m *Manager) emit(address string, connected bool) {
	m.events.Send(Event{Address: address, IsConnected: connected})
}

// ----------------------------
// Connection lifecycle
// ----------------------------

// Connect opens an RFCOMM stream to address and registers it.
// Connecting to an already registered address succeeds without dialing.
func (m *Manager) Connect(ctx context.Context, address string) error {
	if _, ok := m.conns.Get(address); ok {
		m.logger.WithField("address", address).Debug("Already connected")
		return nil
	}

	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}

	m.logger.WithField("address", address).Debug("Dialing RFCOMM...")
	socket, err := m.adapter.Dial(ctx, address)
	if err != nil {
		m.metrics.ConnectResult(false)
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = socket.Close()
		return ErrClosed
	}
	if _, ok := m.conns.Get(address); ok {
		// A concurrent connect registered first; keep that one.
		m.mu.Unlock()
		_ = socket.Close()
		return nil
	}
	m.gen++
	m.conns.Set(address, &connection{address: address, socket: socket, gen: m.gen})
	n := m.conns.Len()
	m.mu.Unlock()

	m.metrics.ConnectResult(true)
	m.metrics.SetConnections(n)
	m.logger.WithField("address", address).Info("Connected")
	m.emit(address, true)
	return nil
}

// Disconnect closes the connection to address and cleans up its listening entry and buffer.
// Unknown addresses are a no-op.
func (m *Manager) Disconnect(address string) {
	m.mu.Lock()
	c, ok := m.conns.Get(address)
	if ok {
		m.conns.Del(address)
	}
	n := m.conns.Len()
	m.mu.Unlock()

	m.Close(address)
	m.metrics.SetConnections(n)

	if ok {
		m.closeSocket(c)
		m.emit(address, false)
	}
}

// DisconnectAll closes every connection and clears all listening entries and buffers.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	var conns []*connection
	m.conns.Range(func(_ string, c *connection) bool {
		conns = append(conns, c)
		return true
	})
	for _, c := range conns {
		m.conns.Del(c.address)
	}
	m.mu.Unlock()

	m.CleanupAll()
	m.metrics.SetConnections(0)

	for _, c := range conns {
		m.closeSocket(c)
		m.emit(c.address, false)
	}
}

func (m *Manager) closeSocket(c *connection) {
	if err := c.socket.Close(); err != nil {
		m.logger.WithError(err).WithField("address", c.address).Debug("Close error ignored")
	}
	m.logger.WithField("address", c.address).Info("Disconnected")
}

// IsConnected reports registry membership.
func (m *Manager) IsConnected(address string) bool {
	_, ok := m.conns.Get(address)
	return ok
}

// ConnectedDevices returns one entry per registered connection, sorted by address.
func (m *Manager) ConnectedDevices() []device.Info {
	devices := make([]device.Info, 0, m.conns.Len())
	m.conns.Range(func(addr string, _ *connection) bool {
		devices = append(devices, device.Info{
			Name:        ConnectedDeviceName,
			Address:     addr,
			Type:        device.TypeClassic,
			IsConnected: true,
		})
		return true
	})
	sort.Slice(devices, func(i, j int) bool { return devices[i].Address < devices[j].Address })
	return devices
}

// ----------------------------
// Data transfer
// ----------------------------

// Write sends data over the connection to address. Writes on one connection are serialised.
func (m *Manager) Write(address string, data []byte) error {
	c, ok := m.conns.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, address)
	}
	if len(data) == 0 {
		return ErrEmptyPayload
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := c.socket.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", address, device.NormalizeError(err))
	}
	m.metrics.Written(n)
	m.logger.WithFields(logrus.Fields{"address": address, "bytes": n}).Debug("Wrote data")
	return nil
}

// Read drains the receive buffer for address.
func (m *Manager) Read(address string) []byte {
	return m.buffers.Drain(address)
}

// Available returns the number of buffered bytes for address.
func (m *Manager) Available(address string) int {
	return m.buffers.Len(address)
}

// Flush discards buffered bytes for address.
func (m *Manager) Flush(address string) {
	m.buffers.Clear(address)
}

// ----------------------------
// Listening
// ----------------------------

// Listen starts a polling worker for a connected address.
// A second call while the worker runs is a no-op. Starting a worker clears the buffer.
func (m *Manager) Listen(address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns.Get(address)
	if !ok {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, address)
	}
	if _, ok := m.listeners.Get(address); ok {
		return nil
	}

	l := &listener{gen: c.gen, stop: make(chan struct{})}
	m.listeners.Set(address, l)
	m.buffers.Clear(address)

	err := m.pool.Submit(func() {
		groutine.Do(context.Background(), "poll:"+address, func(ctx context.Context) {
			m.poll(ctx, c, l)
		})
	})
	if err != nil {
		m.listeners.Del(address)
		l.Stop()
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("%w: %d workers running", ErrListenerPoolFull, m.pool.Running())
		}
		return fmt.Errorf("failed to start polling worker: %w", err)
	}

	m.metrics.SetListeners(m.listeners.Len())
	m.logger.WithField("address", address).Debug("Listening")
	return nil
}

// IsListening reports whether a polling worker is registered for address.
func (m *Manager) IsListening(address string) bool {
	_, ok := m.listeners.Get(address)
	return ok
}

// Cancel stops the polling worker for address, keeping the buffer.
func (m *Manager) Cancel(address string) {
	m.mu.Lock()
	l, ok := m.listeners.Get(address)
	if ok {
		m.listeners.Del(address)
	}
	n := m.listeners.Len()
	m.mu.Unlock()

	if ok {
		l.Stop()
		m.metrics.SetListeners(n)
	}
}

// Close stops the polling worker for address and erases its buffer.
func (m *Manager) Close(address string) {
	m.Cancel(address)
	m.buffers.Erase(address)
}

// CleanupAll erases every listening entry and buffer.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	var stops []*listener
	m.listeners.Range(func(_ string, l *listener) bool {
		stops = append(stops, l)
		return true
	})
	m.removeAllListenersLocked()
	m.mu.Unlock()

	for _, l := range stops {
		l.Stop()
	}
	m.buffers.EraseAll()
	m.metrics.SetListeners(0)
}

func (m *Manager) removeAllListenersLocked() {
	var addrs []string
	m.listeners.Range(func(addr string, _ *listener) bool {
		addrs = append(addrs, addr)
		return true
	})
	for _, addr := range addrs {
		m.listeners.Del(addr)
	}
}

// isCurrent reports whether c is still the registered connection for its address
// and l is still its listening entry.
func (m *Manager) isCurrent(c *connection, l *listener) bool {
	cur, ok := m.conns.Get(c.address)
	if !ok || cur.gen != l.gen {
		return false
	}
	curL, ok := m.listeners.Get(c.address)
	return ok && curL == l
}

// ----------------------------
// Shutdown
// ----------------------------

// Shutdown closes every connection, stops the worker pool and closes the event stream.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.DisconnectAll()
	m.events.Close()

	if err := m.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("polling workers did not stop: %w", err)
	}
	return nil
}
