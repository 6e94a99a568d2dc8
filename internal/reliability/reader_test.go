package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ReaderStateInOrderDeliversImmediately(t *testing.T) {
	s := NewReaderState()

	out := s.Insert(1, []byte("a"))
	require.Len(t, out, 1)
	assert.Equal(t, []byte("a"), out[0].Payload)
	assert.EqualValues(t, 2, s.NextExpected())
}

func Test_ReaderStateOutOfOrderBuffersUntilGapFills(t *testing.T) {
	s := NewReaderState()

	out := s.Insert(2, []byte("b"))
	assert.Empty(t, out, "sample 2 arriving before 1 must not be delivered yet")

	out = s.Insert(1, []byte("a"))
	require.Len(t, out, 2, "delivering 1 should flush the buffered contiguous run through 2")
	assert.Equal(t, []byte("a"), out[0].Payload)
	assert.Equal(t, []byte("b"), out[1].Payload)
	assert.EqualValues(t, 3, s.NextExpected())
}

func Test_ReaderStateDuplicateIsIgnored(t *testing.T) {
	s := NewReaderState()
	s.Insert(1, []byte("a"))

	out := s.Insert(1, []byte("a-dup"))
	assert.Empty(t, out)
}

func Test_ReaderStateMissingReportsUnreceivedOffsets(t *testing.T) {
	s := NewReaderState()
	s.Insert(3, []byte("c")) // 1 and 2 still missing

	missing := s.Missing(3)
	assert.Equal(t, []uint32{0, 1}, missing)
}

func Test_ReaderStateShouldRespondRateLimitsPerHeartbeatCount(t *testing.T) {
	s := NewReaderState()

	assert.True(t, s.ShouldRespond(1))
	assert.False(t, s.ShouldRespond(1), "same heartbeat count must not trigger a second ACKNACK")
	assert.True(t, s.ShouldRespond(2))
}
