package xnetip

import "net/netip"

// dockerBridge is the conventional Docker default bridge subnet, excluded
// from locator preference per spec §4.6 / §3 EndpointRegistry.
var dockerBridge = netip.MustParsePrefix("172.17.0.0/16")

// privatePrefixes are preferred private ranges, in the order spec §4.6
// wants them tried: 192.168/16, 10/8, 172.16/12. The Docker bridge
// 172.17/16 lies inside 172.16/12 here; IsUsableLocator excludes it.
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
}

// IsDockerBridge reports whether addr falls in the default Docker bridge
// subnet (172.17.0.0/16).
func IsDockerBridge(addr netip.Addr) bool {
	return dockerBridge.Contains(addr)
}

// IsUsableLocator reports whether addr is eligible as a preferred unicast
// locator: not loopback, not unspecified, and not the Docker bridge subnet.
func IsUsableLocator(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	if addr.IsLoopback() || addr.IsUnspecified() {
		return false
	}
	if addr.Is4() && IsDockerBridge(addr) {
		return false
	}
	return true
}

// PrivacyRank returns a lower-is-better rank for addr among the private
// ranges spec §4.6 prefers (192.168/16, then 10/8, then 172.16/12,
// including 172.17/16), or len(privatePrefixes) if addr matches none of
// them.
func PrivacyRank(addr netip.Addr) int {
	for i, prefix := range privatePrefixes {
		if prefix.Contains(addr) {
			return i
		}
	}
	return len(privatePrefixes)
}

// PreferLocator picks the best of two candidate addresses by the ordering
// rule in spec §4.6: first usable (non-Docker, non-loopback, non-unspecified)
// wins; among usable candidates, lower PrivacyRank wins; ties keep the
// first-seen candidate so discovery order stays deterministic.
func PreferLocator(current, candidate netip.Addr) netip.Addr {
	if !current.IsValid() {
		if IsUsableLocator(candidate) {
			return candidate
		}
		return current
	}
	if !IsUsableLocator(candidate) {
		return current
	}
	if !IsUsableLocator(current) {
		return candidate
	}
	if PrivacyRank(candidate) < PrivacyRank(current) {
		return candidate
	}
	return current
}
