package terminal

import "sync"

// Buffer is a bounded FIFO of output chunks. Appending beyond capacity
// evicts the oldest chunk, so memory stays bounded regardless of how much
// a session prints. Append and Snapshot are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	chunks   []Chunk
	capacity int
	evicted  bool
}

// DefaultBufferChunks is the stock ring buffer capacity.
const DefaultBufferChunks = 100

// NewBuffer creates a ring buffer holding at most capacity chunks.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferChunks
	}
	return &Buffer{
		chunks:   make([]Chunk, 0, capacity),
		capacity: capacity,
	}
}

// Append adds a chunk, evicting the oldest when full.
func (b *Buffer) Append(c Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.chunks) == b.capacity {
		copy(b.chunks, b.chunks[1:])
		b.chunks[len(b.chunks)-1] = c
		b.evicted = true
		return
	}
	b.chunks = append(b.chunks, c)
}

// Snapshot returns the buffered chunks in insertion order.
func (b *Buffer) Snapshot() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Len returns the number of buffered chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Evicted reports whether any chunk has ever been dropped.
func (b *Buffer) Evicted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
