package xnetip

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUsableLocator(t *testing.T) {
	tests := []struct {
		name string
		addr string
		want bool
	}{
		{"loopback", "127.0.0.1", false},
		{"unspecified", "0.0.0.0", false},
		{"docker bridge", "172.17.0.5", false},
		{"private 192.168", "192.168.1.10", true},
		{"private 10", "10.0.0.1", true},
		{"private 172.16 non-docker", "172.16.0.1", true},
		{"public", "8.8.8.8", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUsableLocator(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestPreferLocator(t *testing.T) {
	none := netip.Addr{}

	got := PreferLocator(none, netip.MustParseAddr("127.0.0.1"))
	assert.False(t, got.IsValid(), "loopback should not replace an invalid current")

	got = PreferLocator(none, netip.MustParseAddr("8.8.8.8"))
	assert.Equal(t, "8.8.8.8", got.String())

	got = PreferLocator(netip.MustParseAddr("8.8.8.8"), netip.MustParseAddr("192.168.1.5"))
	assert.Equal(t, "192.168.1.5", got.String(), "192.168/16 outranks a public address")

	got = PreferLocator(netip.MustParseAddr("192.168.1.5"), netip.MustParseAddr("10.0.0.5"))
	assert.Equal(t, "192.168.1.5", got.String(), "192.168/16 outranks 10/8")

	got = PreferLocator(netip.MustParseAddr("192.168.1.5"), netip.MustParseAddr("172.17.0.5"))
	assert.Equal(t, "192.168.1.5", got.String(), "docker bridge candidate never wins")
}
