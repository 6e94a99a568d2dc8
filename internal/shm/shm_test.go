package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParsePolicy(t *testing.T) {
	p, err := ParsePolicy("require")
	require.NoError(t, err)
	assert.Equal(t, PolicyRequire, p)

	_, err = ParsePolicy("bogus")
	assert.Error(t, err)
}

func Test_RingPushAndTryPopRoundTrip(t *testing.T) {
	dir := t.TempDir()

	ring, err := Create(dir, 0, "chatter", 8)
	require.NoError(t, err)
	defer ring.Close(true)

	reader := NewReader(ring)

	require.NoError(t, ring.Push([]byte("hello")))
	require.NoError(t, ring.Push([]byte("world")))

	got, ok := reader.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), got)

	got, ok = reader.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte("world"), got)

	_, ok = reader.TryPop()
	assert.False(t, ok, "no more frames until the writer pushes again")
}

func Test_RingReaderAttachingLaterMissesEarlierFrames(t *testing.T) {
	dir := t.TempDir()

	ring, err := Create(dir, 0, "chatter", 8)
	require.NoError(t, err)
	defer ring.Close(true)

	require.NoError(t, ring.Push([]byte("before")))

	reader := NewReader(ring)
	_, ok := reader.TryPop()
	assert.False(t, ok)

	require.NoError(t, ring.Push([]byte("after")))
	got, ok := reader.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte("after"), got)
}

func Test_RingOverwritesOldestWhenReaderFallsBehind(t *testing.T) {
	dir := t.TempDir()

	ring, err := Create(dir, 0, "chatter", 4)
	require.NoError(t, err)
	defer ring.Close(true)

	reader := NewReader(ring)

	for i := 0; i < 10; i++ {
		require.NoError(t, ring.Push([]byte{byte(i)}))
	}

	got, ok := reader.TryPop()
	require.True(t, ok)
	assert.Equal(t, []byte{6}, got, "reader fast-forwards to the oldest still-retained frame")
}

func Test_SegmentNameIsStableForSameInputs(t *testing.T) {
	assert.Equal(t, SegmentName(1, "chatter"), SegmentName(1, "chatter"))
	assert.NotEqual(t, SegmentName(1, "chatter"), SegmentName(2, "chatter"))
}
