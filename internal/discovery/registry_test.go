package discovery

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_RegisterPrefersUsableOverLoopback(t *testing.T) {
	r := NewEndpointRegistry()
	p := guidFromBytes(0x10)

	Register(r, p,
		[]netip.AddrPort{
			netip.MustParseAddrPort("127.0.0.1:7410"),
			netip.MustParseAddrPort("10.0.0.5:7410"),
		},
		nil,
	)

	dest, ok := r.Lookup(p)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:7410", dest.String())
}

func Test_RegisterFallsBackToLoopbackWhenNothingUsableAnnounced(t *testing.T) {
	r := NewEndpointRegistry()
	p := guidFromBytes(0x11)

	Register(r, p, []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:7410")}, nil)

	dest, ok := r.Lookup(p)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7410", dest.String())
}

func Test_RegisterFallsBackToMetatrafficLoopbackWhenDefaultUnicastEmpty(t *testing.T) {
	r := NewEndpointRegistry()
	p := guidFromBytes(0x12)

	Register(r, p, nil, []netip.AddrPort{netip.MustParseAddrPort("127.0.0.1:7411")})

	dest, ok := r.Lookup(p)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1:7411", dest.String())
}

func Test_RegisterStoresNothingForNoCandidates(t *testing.T) {
	r := NewEndpointRegistry()
	p := guidFromBytes(0x13)

	Register(r, p, nil, nil)

	_, ok := r.Lookup(p)
	assert.False(t, ok)
}
