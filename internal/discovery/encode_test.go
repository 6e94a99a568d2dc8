package discovery

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdds-team/hdds/internal/wire"
)

func Test_EncodeSPDPRoundTripsThroughDecodeSPDP(t *testing.T) {
	guid := wire.ParticipantGUID(wire.GUIDPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	meta := []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:7410")}
	metaMulticast := []netip.AddrPort{netip.MustParseAddrPort("239.255.0.1:7400")}

	payload := EncodeSPDP(guid, 7, 30*time.Second, meta, nil, metaMulticast, nil)

	decoded, err := DecodeSPDP(payload)
	require.NoError(t, err)
	assert.Equal(t, guid, decoded.ParticipantGUID)
	assert.Equal(t, uint32(7), decoded.DomainID)
	assert.Equal(t, 30*time.Second, decoded.LeaseDuration)
	require.Len(t, decoded.MetatrafficUnicast, 1)
	assert.Equal(t, meta[0], decoded.MetatrafficUnicast[0])
	require.Len(t, decoded.MetatrafficMulticast, 1)
	assert.Equal(t, metaMulticast[0], decoded.MetatrafficMulticast[0])
}

func Test_EncodeSEDPRoundTripsThroughDecodeSEDP(t *testing.T) {
	guid := wire.NewGUID(wire.GUIDPrefix{9}, wire.EntityIDSEDPPubWriter)
	endpoint := EndpointInfo{
		EndpointGUID: guid,
		TopicName:    "chatter",
		TypeName:     "ChatMessage",
		QoS: QoS{
			Reliability:    ReliabilityReliable,
			Durability:     DurabilityTransientLocal,
			Partitions:     []string{"room-a"},
			DeadlineMillis: 500,
			LifespanMillis: 60_000,
			Liveliness:     2 * time.Second,
			UserData:       []byte("hello"),
		},
	}

	payload := EncodeSEDP(endpoint)

	decoded, err := DecodeSEDP(payload)
	require.NoError(t, err)
	assert.Equal(t, guid, decoded.EndpointGUID)
	assert.Equal(t, "chatter", decoded.TopicName)
	assert.Equal(t, "ChatMessage", decoded.TypeName)
	assert.Equal(t, ReliabilityReliable, decoded.QoS.Reliability)
	assert.Equal(t, DurabilityTransientLocal, decoded.QoS.Durability)
	assert.Equal(t, []string{"room-a"}, decoded.QoS.Partitions)
	assert.Equal(t, int64(500), decoded.QoS.DeadlineMillis)
	assert.Equal(t, int64(60_000), decoded.QoS.LifespanMillis)
	assert.Equal(t, 2*time.Second, decoded.QoS.Liveliness)
	assert.Equal(t, []byte("hello"), decoded.QoS.UserData)
}
