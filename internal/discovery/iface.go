package discovery

import (
	"fmt"
	"net/netip"

	"github.com/vishvananda/netlink"
)

// LocalAddresses enumerates the non-loopback IPv4 addresses of the host's
// network interfaces, for building a participant's default-unicast and
// metatraffic-unicast locator lists (spec §4.2 "participant construction",
// §4.10). When ifaceName is non-empty, only that interface is consulted;
// otherwise every link is enumerated (spec §6 HDDS_INTERFACE config).
func LocalAddresses(ifaceName string) ([]netip.Addr, error) {
	links, err := linksToScan(ifaceName)
	if err != nil {
		return nil, err
	}

	var out []netip.Addr
	for _, link := range links {
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("list addresses on %s: %w", link.Attrs().Name, err)
		}
		for _, a := range addrs {
			if a.IP.IsLoopback() {
				continue
			}
			addr, ok := netip.AddrFromSlice(a.IP.To4())
			if !ok {
				continue
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

func linksToScan(ifaceName string) ([]netlink.Link, error) {
	if ifaceName != "" {
		link, err := netlink.LinkByName(ifaceName)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %q: %w", ifaceName, err)
		}
		return []netlink.Link{link}, nil
	}

	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	return links, nil
}
