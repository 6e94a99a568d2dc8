package transport

import (
	"context"
	"net"
	"net/netip"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hdds-team/hdds/common/go/xerror"
)

// listen binds a UDP socket, optionally with SO_REUSEPORT set before bind
// so multiple participant processes (or multiple listeners within one
// process) can share a port (spec §6, HDDS_REUSEPORT).
func listen(addr *net.UDPAddr, reusePort bool) (*net.UDPConn, error) {
	if !reusePort {
		return net.ListenUDP("udp", addr)
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			err := c.Control(func(fd uintptr) {
				ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return ctrlErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", addr.String())
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(s.Addr[:]), Port: s.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, s.Addr[:])
		return &net.UDPAddr{IP: ip, Port: s.Port}
	default:
		return nil
	}
}

func deadlineSoon() time.Time {
	return time.Now().Add(time.Millisecond)
}

func isTimeout(err error) bool {
	type timeoutErr interface {
		Timeout() bool
	}
	if te, ok := err.(timeoutErr); ok {
		return te.Timeout()
	}
	return false
}

// Port formula constants (spec §4.10): base ports plus per-domain and
// per-participant offsets.
const (
	SPDPMulticastPort  = 7400
	MetatrafficBase    = 7410
	UserDataBase       = 7411
	DomainIDMultiplier = 250
)

// MetatrafficUnicastPort returns the metatraffic unicast port for a given
// domain/participant pair, per the RTPS v2.3 port formula (spec §4.10).
func MetatrafficUnicastPort(domainID uint32, participantID int) int {
	return MetatrafficBase + int(domainID)*DomainIDMultiplier + 2*participantID
}

// UserDataUnicastPort returns the user-data unicast port.
func UserDataUnicastPort(domainID uint32, participantID int) int {
	return UserDataBase + int(domainID)*DomainIDMultiplier + 2*participantID
}

// SPDPMulticastAddr is the default SPDP multicast group (spec §6). Parsed
// once at init time: the literal is known-valid, so a parse failure here
// would be a typo in this constant, not a runtime condition.
var SPDPMulticastAddr = xerror.Unwrap(netip.ParseAddr("239.255.0.1"))

// SPDPMulticastUDPAddr returns the SPDP multicast group/port as a
// net.UDPAddr, for Listener.WriteTo.
func SPDPMulticastUDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(SPDPMulticastAddr, SPDPMulticastPort))
}

// Role selects which of a participant's two unicast ports to bind.
type Role int

const (
	RoleMetatraffic Role = iota
	RoleUserData
)

func (r Role) port(domainID uint32, participantID int) int {
	if r == RoleUserData {
		return UserDataUnicastPort(domainID, participantID)
	}
	return MetatrafficUnicastPort(domainID, participantID)
}

// Listen binds the unicast socket for role on the given domain/participant
// pair, using the spec §4.10 port formula. Binding fails with "address in
// use" when the port is already taken, which is how the sequential
// participant-id probe (internal/runtime) finds a free id.
func Listen(domainID uint32, participantID int, role Role, reusePort bool) (*net.UDPConn, error) {
	addr := &net.UDPAddr{Port: role.port(domainID, participantID)}
	return listen(addr, reusePort)
}

// DefaultEnvHostname returns the host name, or "unknown-host" when it
// cannot be read. The GUID prefix (internal/runtime) does not use it; it
// calls os.Hostname directly.
func DefaultEnvHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}
