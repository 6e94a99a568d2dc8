package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/config"
	"github.com/hdds-team/hdds/internal/wire"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	// A domain far from any real deployment's range keeps the bound ports
	// clear of whatever else might be listening on the test host.
	cfg.DomainID = 200
	return cfg
}

func Test_NewBindsListenersAndWiresSubsystems(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.NotZero(t, p.GUIDPrefix)
	assert.Equal(t, 0, p.ParticipantID)
	assert.NotNil(t, p.Discovery())
	assert.NotNil(t, p.Reliability())
	assert.NotNil(t, p.Pool())
}

func Test_NewProbesNextParticipantIDWhenPortInUse(t *testing.T) {
	cfg := testConfig()

	first, err := New(cfg, nil)
	require.NoError(t, err)
	defer first.Close()

	second, err := New(cfg, nil)
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.ParticipantID, second.ParticipantID)
}

func Test_LookupReadersReturnsEmptyForUnmatchedWriter(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer p.Close()

	out := p.lookupReaders(wire.GUID{})
	assert.Empty(t, out)
}

func Test_MetricsAggregatesFreshParticipant(t *testing.T) {
	p, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer p.Close()

	snap := p.Metrics()
	assert.Zero(t, snap.Discovery)
	assert.Zero(t, snap.Listener)
	assert.Zero(t, snap.RetransmitsSent)
	assert.Zero(t, snap.AckNacksSent)
	assert.Zero(t, snap.HeartbeatsSent)
}
