package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const addrA = "AA:BB:CC:DD:EE:01"

func always() bool { return true }

func TestBuffers_AppendDrain(t *testing.T) {
	b := NewBuffers()

	b.AppendIf(addrA, []byte("hel"), always)
	b.AppendIf(addrA, []byte("lo"), always)
	assert.Equal(t, 5, b.Len(addrA))

	assert.Equal(t, []byte("hello"), b.Drain(addrA))
	assert.Equal(t, 0, b.Len(addrA))
	assert.Nil(t, b.Drain(addrA), "second drain yields nothing")
}

func TestBuffers_UnknownAddress(t *testing.T) {
	b := NewBuffers()

	assert.Equal(t, 0, b.Len("nope"))
	assert.Nil(t, b.Drain("nope"))
	assert.NotPanics(t, func() {
		b.Clear("nope")
		b.Erase("nope")
	})
}

func TestBuffers_AppendIf(t *testing.T) {
	b := NewBuffers()

	assert.False(t, b.AppendIf(addrA, []byte("x"), func() bool { return false }))
	assert.Equal(t, 0, b.Len(addrA))

	assert.True(t, b.AppendIf(addrA, []byte("y"), func() bool { return true }))
	assert.Equal(t, []byte("y"), b.Drain(addrA))
}

func TestBuffers_ClearAndErase(t *testing.T) {
	b := NewBuffers()
	b.AppendIf(addrA, []byte("abc"), always)
	b.AppendIf("AA:BB:CC:DD:EE:02", []byte("def"), always)

	b.Clear(addrA)
	assert.Equal(t, 0, b.Len(addrA))

	b.AppendIf(addrA, []byte("z"), always)
	b.Erase(addrA)
	assert.Equal(t, 0, b.Len(addrA))
	assert.Equal(t, 3, b.Len("AA:BB:CC:DD:EE:02"))

	b.EraseAll()
	assert.Equal(t, 0, b.Len("AA:BB:CC:DD:EE:02"))
}

func TestBuffers_DrainReturnsCopy(t *testing.T) {
	b := NewBuffers()
	b.AppendIf(addrA, []byte("abc"), always)

	out := b.Drain(addrA)
	b.AppendIf(addrA, []byte("XYZ"), always)

	assert.Equal(t, []byte("abc"), out, "drained slice must not alias pooled storage")
}

func TestBuffers_ConcurrentAppend(t *testing.T) {
	b := NewBuffers()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.AppendIf(addrA, []byte{1}, always)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 800, b.Len(addrA))
}
