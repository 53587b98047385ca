package session

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// Buffers holds the per-address receive buffers. A single lock guards every
// read, append and clear so a drain always observes a consistent snapshot.
type Buffers struct {
	mu   sync.Mutex
	bufs map[string]*bytebufferpool.ByteBuffer
}

// NewBuffers creates an empty buffer store.
func NewBuffers() *Buffers {
	return &Buffers{bufs: make(map[string]*bytebufferpool.ByteBuffer)}
}

// AppendIf appends data to the buffer for address when cond reports true.
// cond is evaluated while the store lock is held.
func (b *Buffers) AppendIf(address string, data []byte, cond func() bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cond != nil && !cond() {
		return false
	}
	buf, ok := b.bufs[address]
	if !ok {
		buf = bytebufferpool.Get()
		b.bufs[address] = buf
	}
	_, _ = buf.Write(data)
	return true
}

// Drain returns the buffered bytes for address and empties the buffer.
// Returns nil when nothing is buffered.
func (b *Buffers) Drain(address string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.bufs[address]
	if !ok || buf.Len() == 0 {
		return nil
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	buf.Reset()
	return out
}

// Len returns the number of buffered bytes, 0 for an unknown address.
func (b *Buffers) Len(address string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.bufs[address]; ok {
		return buf.Len()
	}
	return 0
}

// Clear empties the buffer but keeps the entry.
func (b *Buffers) Clear(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.bufs[address]; ok {
		buf.Reset()
	}
}

// Erase removes the entry for address and returns its storage to the pool.
func (b *Buffers) Erase(address string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.bufs[address]; ok {
		delete(b.bufs, address)
		bytebufferpool.Put(buf)
	}
}

// EraseAll removes every entry.
func (b *Buffers) EraseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for addr, buf := range b.bufs {
		delete(b.bufs, addr)
		bytebufferpool.Put(buf)
	}
}
