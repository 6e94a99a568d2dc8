package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/wire"
)

func Test_WriterCachePushAssignsIncreasingSequence(t *testing.T) {
	c := NewWriterCache(0)

	s1 := c.Push([]byte("a"))
	s2 := c.Push([]byte("b"))

	assert.Equal(t, wire.SequenceNumber(1), s1.SeqNum)
	assert.Equal(t, wire.SequenceNumber(2), s2.SeqNum)

	first, last, ok := c.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(1), first)
	assert.Equal(t, wire.SequenceNumber(2), last)
}

func Test_WriterCacheHistoryDepthTrims(t *testing.T) {
	c := NewWriterCache(2)

	c.Push([]byte("a"))
	c.Push([]byte("b"))
	c.Push([]byte("c"))

	first, last, ok := c.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(2), first)
	assert.Equal(t, wire.SequenceNumber(3), last)

	_, ok = c.Get(1)
	assert.False(t, ok)
}

func Test_WriterCacheAckPositiveTrimsToMinimumAcked(t *testing.T) {
	c := NewWriterCache(0)
	c.Push([]byte("a"))
	c.Push([]byte("b"))
	c.Push([]byte("c"))

	readerA := wire.GUID{EntityID: wire.NewEntityID(1, wire.EntityKindReaderWithKey)}
	readerB := wire.GUID{EntityID: wire.NewEntityID(2, wire.EntityKindReaderWithKey)}

	c.AckPositive(readerA, 2)
	c.AckPositive(readerB, 1)

	first, _, ok := c.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(2), first, "cache trims only up to the slower reader's ack")

	c.AckPositive(readerB, 3)
	first, _, ok = c.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(3), first)
}

func Test_WriterCacheGetRangeSkipsTrimmedEntries(t *testing.T) {
	c := NewWriterCache(1)
	c.Push([]byte("a"))
	c.Push([]byte("b"))

	samples := c.GetRange(1, 2)
	require.Len(t, samples, 1)
	assert.Equal(t, wire.SequenceNumber(2), samples[0].SeqNum)
}

func Test_WriterCachePushAtFixedPositionalSequence(t *testing.T) {
	c := NewWriterCache(0)
	c.PushAt(5, []byte("endpoint-announcement"))

	s, ok := c.Get(5)
	require.True(t, ok)
	assert.Equal(t, []byte("endpoint-announcement"), s.Payload)

	c.PushAt(7, []byte("later"))
	first, last, ok := c.Range()
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(5), first)
	assert.Equal(t, wire.SequenceNumber(7), last)
}
