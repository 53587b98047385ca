package testutils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/btclassic/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONAsserter_DefaultOptions(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.NilToEmptyArray)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{name: "identical", actual: `{"a":1}`, expected: `{"a":1}`, match: true},
		{name: "different value", actual: `{"a":1}`, expected: `{"a":2}`, match: false},
		{name: "extra key ignored", actual: `{"a":1,"b":2}`, expected: `{"a":1}`, match: true},
		{name: "extra key reported", opts: []Option{WithIgnoreExtraKeys(false)}, actual: `{"a":1,"b":2}`, expected: `{"a":1}`, match: false},
		{name: "presence placeholder", actual: `{"id":"xyz"}`, expected: `{"id":"<<PRESENCE>>"}`, match: true},
		{name: "null equals empty array", actual: `{"a":null}`, expected: `{"a":[]}`, match: true},
		{name: "root array", actual: `[1,2]`, expected: `[1,2]`, match: true},
		{name: "root array order", actual: `[2,1]`, expected: `[1,2]`, match: false},
		{name: "root array order ignored", opts: []Option{WithIgnoreArrayOrder(true)}, actual: `[2,1]`, expected: `[1,2]`, match: true},
		{name: "root scalar", actual: `true`, expected: `true`, match: true},
		{name: "ignored field", opts: []Option{WithIgnoredFields("ts")}, actual: `{"a":1,"ts":5}`, expected: `{"a":1,"ts":9}`, match: true},
		{name: "invalid expected", actual: `{}`, expected: `{`, match: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestJSONAsserter_AssertValue(t *testing.T) {
	NewJSONAsserter(t).AssertValue(
		[]device.Info{ClassicDevice("Printer", "AA:BB:CC:DD:EE:FF")},
		`[{"name":"Printer","address":"AA:BB:CC:DD:EE:FF","type":"classic","isConnected":false}]`,
	)
}

func TestMockAdapter_Dial(t *testing.T) {
	h := NewTestHelper(t)
	m := NewMockAdapter()
	ctx := context.Background()

	sock, err := m.Dial(ctx, "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	defer sock.Close()

	h.SendFromPeer(m, "AA:BB:CC:DD:EE:FF", []byte("ping"))
	buf := make([]byte, 4)
	_, err = sock.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))

	go func() { _, _ = sock.Write([]byte("pong")) }()
	assert.Equal(t, "pong", string(h.ReadFromPeer(m, "AA:BB:CC:DD:EE:FF", 4)))
	assert.Equal(t, 1, m.DialCount("AA:BB:CC:DD:EE:FF"))
}

func TestMockAdapter_DialFailures(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()

	_, err := m.Dial(ctx, "not-an-address")
	assert.ErrorIs(t, err, device.ErrInvalidAddress)

	boom := errors.New("boom")
	m.FailDial("AA:BB:CC:DD:EE:FF", boom)
	_, err = m.Dial(ctx, "AA:BB:CC:DD:EE:FF")
	assert.ErrorIs(t, err, boom)

	m.FailDial("AA:BB:CC:DD:EE:FF", nil)
	_, err = m.Dial(ctx, "AA:BB:CC:DD:EE:FF")
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Dial(cancelled, "AA:BB:CC:DD:EE:FF")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockAdapter_Discover(t *testing.T) {
	m := NewMockAdapter().WithDiscovered(ClassicDevice("A", "AA:BB:CC:DD:EE:01"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var seen []string
	require.NoError(t, m.Discover(ctx, func(info device.Info) { seen = append(seen, info.Address) }))
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:01"}, seen)

	st, err := m.State(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Discovering)
}

func TestMockAdapter_SetPowered(t *testing.T) {
	m := NewMockAdapter().WithState(device.AdapterState{Present: true})
	require.NoError(t, m.SetPowered(context.Background(), true))

	st, _ := m.State(context.Background())
	assert.True(t, st.Powered)
	assert.Equal(t, []bool{true}, m.PowerCalls())
}
