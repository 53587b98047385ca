package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/btclassic/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_MarshalJSON(t *testing.T) {
	id := json.RawMessage(`7`)
	tests := []struct {
		name     string
		resp     Response
		expected string
	}{
		{name: "false result is kept", resp: Response{ID: id, Result: false}, expected: `{"id":7,"result":false}`},
		{name: "empty string result is kept", resp: Response{ID: id, Result: ""}, expected: `{"id":7,"result":""}`},
		{name: "nil result is null", resp: Response{ID: id}, expected: `{"id":7,"result":null}`},
		{name: "error", resp: Response{ID: id, Error: &Error{Code: CodeBadRequest, Message: "nope"}}, expected: `{"id":7,"error":{"code":"bad_request","message":"nope"}}`},
		{name: "not implemented", resp: Response{ID: id, NotImplemented: true}, expected: `{"id":7,"notImplemented":true}`},
		{name: "missing id is omitted", resp: Response{Result: 1}, expected: `{"result":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	t.Run("numbers stay json.Number", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":"a","channel":"c","method":"writeData","arguments":{"data":[104,105]}}`))
		require.NoError(t, err)

		assert.Equal(t, json.RawMessage(`"a"`), req.ID)
		assert.Equal(t, "writeData", req.Method)
		data, ok := NewArgs(req.Arguments).Value(KeyData)
		require.True(t, ok)
		assert.Equal(t, []any{json.Number("104"), json.Number("105")}, data)
	})

	t.Run("missing method", func(t *testing.T) {
		req, err := DecodeRequest([]byte(`{"id":1,"channel":"c"}`))
		assert.Error(t, err)
		require.NotNil(t, req)
		assert.Equal(t, json.RawMessage(`1`), req.ID)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := DecodeRequest([]byte(`hello`))
		assert.ErrorContains(t, err, "malformed request")
	})

	t.Run("trailing data", func(t *testing.T) {
		_, err := DecodeRequest([]byte(`{"method":"a"} {"method":"b"}`))
		assert.Error(t, err)
	})
}

func TestArgs(t *testing.T) {
	args := NewArgs(map[string]any{
		KeyAddress: "AA:BB:CC:DD:EE:FF",
		"number":   json.Number("3"),
	})

	addr, ok := args.String(KeyAddress)
	assert.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr)

	_, ok = args.String("number")
	assert.False(t, ok, "non-string values do not match")

	_, ok = args.String("missing")
	assert.False(t, ok)

	assert.True(t, NewArgs(nil).IsNil())
	_, ok = NewArgs("scalar").String(KeyAddress)
	assert.False(t, ok, "non-map arguments carry no keys")
}

func TestArgs_Bytes(t *testing.T) {
	tests := []struct {
		name     string
		data     any
		expected []byte
		ok       bool
	}{
		{name: "string", data: "hi", expected: []byte("hi"), ok: true},
		{name: "json numbers", data: []any{json.Number("104"), json.Number("105")}, expected: []byte("hi"), ok: true},
		{name: "float64 numbers", data: []any{104.0, 105.0}, expected: []byte("hi"), ok: true},
		{name: "masked to a byte", data: []any{json.Number("360"), -1}, expected: []byte{0x68, 0xFF}, ok: true},
		{name: "non-integers skipped", data: []any{"x", 104, 1.5, nil, json.Number("2.5"), 105}, expected: []byte("hi"), ok: true},
		{name: "empty list", data: []any{}, expected: []byte{}, ok: true},
		{name: "int slice", data: []int{104, 105}, expected: []byte("hi"), ok: true},
		{name: "unsupported type", data: true, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NewArgs(map[string]any{KeyData: tt.data}).Bytes(KeyData)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}

	_, ok := NewArgs(map[string]any{}).Bytes(KeyData)
	assert.False(t, ok, "missing key")
}

func TestIntList(t *testing.T) {
	assert.Equal(t, []int{0, 104, 255}, IntList([]byte{0, 104, 255}))
	assert.Equal(t, []int{}, IntList(nil))
}

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, channel, method string, args Args) (any, error) {
		switch method {
		case "echo":
			v, _ := args.String("v")
			return v, nil
		case "fail":
			return false, errors.New("boom")
		case "panic":
			panic("kaboom")
		default:
			return nil, ErrNotImplemented
		}
	})
}

func quietLogger() *logrus.Logger {
	return testutils.QuietLogger()
}

func TestServer_Serve(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"channel":"c","method":"echo","arguments":{"v":"hi"}}`,
		``,
		`not json`,
		`{"id":2,"channel":"c","method":"unknown"}`,
		`{"id":3,"channel":"c","method":"panic"}`,
		`{"id":4,"channel":"c","method":"fail"}`,
		`{"id":5,"channel":"c","method":"echo","arguments":{"v":"still alive"}}`,
	}, "\n")

	var out bytes.Buffer
	srv := NewServer(echoHandler(), &out, quietLogger())
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(input)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)

	ja := testutils.NewJSONAsserter(t).WithOptions(testutils.WithIgnoreExtraKeys(false))
	ja.Assert(lines[0], `{"id":1,"result":"hi"}`)
	ja.Assert(lines[1], `{"error":{"code":"bad_request","message":"<<PRESENCE>>"}}`)
	ja.Assert(lines[2], `{"id":2,"notImplemented":true}`)
	ja.Assert(lines[3], `{"id":3,"error":{"code":"internal","message":"kaboom"}}`)
	ja.Assert(lines[4], `{"id":4,"error":{"code":"error","message":"boom"}}`)
	ja.Assert(lines[5], `{"id":5,"result":"still alive"}`)
}

func TestServer_ServeStopsOnContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(echoHandler(), io.Discard, quietLogger()).Serve(ctx, pr)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_Notify(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(echoHandler(), &out, quietLogger())

	// events sent before Serve starts reach the host
	require.NoError(t, srv.Notify("connectionStateChanged", map[string]any{"address": "A", "isConnected": true}))
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(`{"id":1,"channel":"c","method":"echo","arguments":{"v":"hi"}}`)))
	require.NoError(t, srv.Notify("connectionStateChanged", map[string]any{"address": "A", "isConnected": false}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"event":"connectionStateChanged","arguments":{"address":"A","isConnected":true}}`, lines[0])
	assert.JSONEq(t, `{"id":1,"result":"hi"}`, lines[1])
	assert.JSONEq(t, `{"event":"connectionStateChanged","arguments":{"address":"A","isConnected":false}}`, lines[2])
}
