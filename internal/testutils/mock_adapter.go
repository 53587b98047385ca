package testutils

import (
	"context"
	"net"
	"sort"
	"sync"

	"github.com/srg/btclassic/internal/device"
)

// MockAdapter is an in-memory device.Adapter. Dial hands out one end of a net.Pipe
// and keeps the other end so a test can play the remote device.
type MockAdapter struct {
	mu sync.Mutex

	state      device.AdapterState
	paired     []device.Info
	discovered []device.Info

	stateErr    error
	powerErr    error
	pairedErr   error
	discoverErr error
	dialErrs    map[string]error

	peers      map[string]net.Conn
	dials      map[string]int
	powerCalls []bool
	closed     bool
}

// NewMockAdapter returns a powered adapter that accepts every dial.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		state: device.AdapterState{
			Present: true,
			Powered: true,
			Name:    "mock-hci0",
			Address: "00:11:22:33:44:55",
		},
		dialErrs: make(map[string]error),
		peers:    make(map[string]net.Conn),
		dials:    make(map[string]int),
	}
}

// WithState replaces the reported controller state.
func (m *MockAdapter) WithState(state device.AdapterState) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return m
}

// WithPaired sets the bonded device list.
func (m *MockAdapter) WithPaired(devices ...device.Info) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paired = devices
	return m
}

// WithDiscovered sets the devices reported during inquiry.
func (m *MockAdapter) WithDiscovered(devices ...device.Info) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discovered = devices
	return m
}

// FailState makes State return err.
func (m *MockAdapter) FailState(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateErr = err
	return m
}

// FailPower makes SetPowered return err.
func (m *MockAdapter) FailPower(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerErr = err
	return m
}

// FailPaired makes PairedDevices return err.
func (m *MockAdapter) FailPaired(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pairedErr = err
	return m
}

// FailDiscover makes Discover return err immediately.
func (m *MockAdapter) FailDiscover(err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverErr = err
	return m
}

// FailDial makes dials to address return err. A nil err clears the failure.
func (m *MockAdapter) FailDial(address string, err error) *MockAdapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.dialErrs, address)
	} else {
		m.dialErrs[address] = err
	}
	return m
}

func (m *MockAdapter) State(context.Context) (device.AdapterState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stateErr != nil {
		return device.AdapterState{}, m.stateErr
	}
	return m.state, nil
}

func (m *MockAdapter) SetPowered(_ context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerCalls = append(m.powerCalls, on)
	if m.powerErr != nil {
		return m.powerErr
	}
	m.state.Powered = on
	return nil
}

func (m *MockAdapter) PairedDevices(context.Context) ([]device.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pairedErr != nil {
		return nil, m.pairedErr
	}
	return append([]device.Info(nil), m.paired...), nil
}

// Discover reports the configured devices, then blocks until ctx is done.
func (m *MockAdapter) Discover(ctx context.Context, handler func(device.Info)) error {
	m.mu.Lock()
	err := m.discoverErr
	devices := append([]device.Info(nil), m.discovered...)
	m.state.Discovering = err == nil
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, d := range devices {
		handler(d)
	}
	<-ctx.Done()

	m.mu.Lock()
	m.state.Discovering = false
	m.mu.Unlock()
	return nil
}

func (m *MockAdapter) Dial(ctx context.Context, address string) (device.Socket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := device.ParseAddress(address); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dials[address]++
	if err := m.dialErrs[address]; err != nil {
		return nil, err
	}

	local, remote := net.Pipe()
	m.peers[address] = remote
	return local, nil
}

func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for _, p := range m.peers {
		_ = p.Close()
	}
	return nil
}

// Peer returns the remote end of the most recent dial to address.
func (m *MockAdapter) Peer(address string) net.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peers[address]
}

// DialCount reports how many times address was dialed.
func (m *MockAdapter) DialCount(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dials[address]
}

// PowerCalls returns the arguments SetPowered was called with.
func (m *MockAdapter) PowerCalls() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.powerCalls...)
}

// Closed reports whether Close was called.
func (m *MockAdapter) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// DialedAddresses returns every address dialed at least once, sorted.
func (m *MockAdapter) DialedAddresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.dials))
	for addr := range m.dials {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
