package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_AcquireReleaseConservation(t *testing.T) {
	p := New(4, 128)

	idxs := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		idx, ok := p.Acquire()
		require.True(t, ok)
		idxs = append(idxs, idx)
	}

	_, ok := p.Acquire()
	assert.False(t, ok, "pool should be exhausted")
	assert.Equal(t, 4, p.InFlight())

	for _, idx := range idxs {
		p.Release(idx)
	}
	assert.Equal(t, 0, p.InFlight())

	idx, ok := p.Acquire()
	assert.True(t, ok)
	assert.Equal(t, 1, p.InFlight())
	p.Release(idx)
}

func Test_AcquireReturnsDistinctIndices(t *testing.T) {
	p := New(8, 64)
	seen := map[int]bool{}
	for i := 0; i < 8; i++ {
		idx, ok := p.Acquire()
		require.True(t, ok)
		assert.False(t, seen[idx], "index %d reused while still in flight", idx)
		seen[idx] = true
	}
}

func Test_DoubleReleaseIsNoop(t *testing.T) {
	p := New(2, 64)
	idx, ok := p.Acquire()
	require.True(t, ok)

	p.Release(idx)
	p.Release(idx)
	assert.Equal(t, 0, p.InFlight())

	// both slots should still be independently acquirable
	_, ok = p.Acquire()
	require.True(t, ok)
	_, ok = p.Acquire()
	require.True(t, ok)
}

func Test_BufferReturnsCorrectSize(t *testing.T) {
	p := New(1, 256)
	idx, ok := p.Acquire()
	require.True(t, ok)
	assert.Len(t, p.Buffer(idx), 256)
}

func Test_DroppedCounter(t *testing.T) {
	p := New(1, 64)
	assert.Equal(t, uint64(0), p.Dropped())
	p.IncDropped()
	p.IncDropped()
	assert.Equal(t, uint64(2), p.Dropped())
}
