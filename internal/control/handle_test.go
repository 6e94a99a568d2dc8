package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RegistryInsertGetRelease(t *testing.T) {
	r := newRegistry[string]()

	h := r.insert("hello")
	v, err := r.get(h)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	value, ok := r.release(h)
	assert.True(t, ok)
	assert.Equal(t, "hello", value)

	_, err = r.get(h)
	assert.Error(t, err)
}

func Test_RegistryRetainKeepsEntryAliveAcrossOneRelease(t *testing.T) {
	r := newRegistry[string]()

	h := r.insert("hello")
	require.NoError(t, r.retain(h))

	_, ok := r.release(h)
	assert.False(t, ok, "one reference remains")

	v, err := r.get(h)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, ok = r.release(h)
	assert.True(t, ok)
}

func Test_RegistryGetUnknownHandleReturnsNotFound(t *testing.T) {
	r := newRegistry[string]()
	_, err := r.get(Handle(12345))
	assert.Error(t, err)
}
