package terminal

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkSeq(n int) []Chunk {
	out := make([]Chunk, n)
	for i := range out {
		out[i] = Chunk{Data: fmt.Sprintf("chunk-%d", i)}
	}
	return out
}

func TestBufferAppendUnderCapacity(t *testing.T) {
	b := NewBuffer(10)
	for _, c := range chunkSeq(4) {
		b.Append(c)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 4)
	for i, c := range snap {
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), c.Data)
	}
	assert.False(t, b.Evicted())
}

func TestBufferEvictsOldest(t *testing.T) {
	b := NewBuffer(5)
	for _, c := range chunkSeq(12) {
		b.Append(c)
	}

	snap := b.Snapshot()
	require.Len(t, snap, 5)
	// Appending capacity+k chunks leaves exactly the last capacity, in order.
	for i, c := range snap {
		assert.Equal(t, fmt.Sprintf("chunk-%d", i+7), c.Data)
	}
	assert.True(t, b.Evicted())
	assert.Equal(t, 5, b.Len())
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := NewBuffer(5)
	b.Append(Chunk{Data: "original"})

	snap := b.Snapshot()
	snap[0].Data = "mutated"

	assert.Equal(t, "original", b.Snapshot()[0].Data)
}

func TestBufferEmpty(t *testing.T) {
	b := NewBuffer(5)
	assert.Empty(t, b.Snapshot())
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Evicted())
}
