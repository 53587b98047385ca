package groutine

import (
	"context"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_LabelsContext(t *testing.T) {
	var name, label string
	Do(context.Background(), "poll:AA:BB:CC:DD:EE:FF", func(ctx context.Context) {
		name = GetName(ctx)
		label, _ = pprof.Label(ctx, "goroutine_name")
	})

	assert.Equal(t, "poll:AA:BB:CC:DD:EE:FF", name)
	assert.Equal(t, "poll:AA:BB:CC:DD:EE:FF", label)
}

func TestGo_RunsInBackground(t *testing.T) {
	got := make(chan string, 1)
	//nolint:staticcheck // nil parent context is part of the contract
	Go(nil, "bridge-pump", func(ctx context.Context) {
		got <- GetName(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "bridge-pump", name)
	case <-time.After(time.Second):
		require.Fail(t, "goroutine did not run")
	}
}

func TestGetName_Empty(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, "", GetName(nil))
}
