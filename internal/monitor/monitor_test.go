package monitor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/internal/metrics"
	"github.com/srg/btclassic/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Received(42)

	code, body := get(t, NewHandler(testutils.NewMockAdapter(), reg), "/metrics")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "btclassic_received_bytes_total 42")
}

func TestHandler_Probes(t *testing.T) {
	tests := []struct {
		name      string
		adapter   *testutils.MockAdapter
		readyCode int
	}{
		{name: "powered", adapter: testutils.NewMockAdapter(), readyCode: http.StatusOK},
		{name: "powered off", adapter: testutils.NewMockAdapter().WithState(device.AdapterState{Present: true}), readyCode: http.StatusServiceUnavailable},
		{name: "no controller", adapter: testutils.NewMockAdapter().WithState(device.AdapterState{}), readyCode: http.StatusServiceUnavailable},
		{name: "backend error", adapter: testutils.NewMockAdapter().FailState(errors.New("dbus gone")), readyCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.adapter, prometheus.NewRegistry())

			code, _ := get(t, h, "/live")
			assert.Equal(t, http.StatusOK, code)

			code, _ = get(t, h, "/ready")
			assert.Equal(t, tt.readyCode, code)
		})
	}
}

func TestAdapterCheck(t *testing.T) {
	assert.NoError(t, AdapterCheck(testutils.NewMockAdapter())())
	assert.ErrorIs(t, AdapterCheck(testutils.NewMockAdapter().WithState(device.AdapterState{Present: true}))(), device.ErrBluetoothOff)
	assert.True(t, device.IsNotFound(AdapterCheck(device.Unavailable(nil))(), "adapter"))
}

func TestStart(t *testing.T) {
	srv, err := Start("127.0.0.1:0", NewHandler(testutils.NewMockAdapter(), prometheus.NewRegistry()), testutils.QuietLogger())
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	}()

	resp, err := http.Get("http://" + srv.Addr() + "/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStart_BadAddress(t *testing.T) {
	_, err := Start("not-an-address", http.NotFoundHandler(), testutils.QuietLogger())
	assert.Error(t, err)
}
