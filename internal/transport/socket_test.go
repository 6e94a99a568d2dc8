package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_PortFormula(t *testing.T) {
	// spec §4.10: port = base + domain_id*250 + 2*participant_id
	assert.Equal(t, 7410, MetatrafficUnicastPort(0, 0))
	assert.Equal(t, 7411, UserDataUnicastPort(0, 0))
	assert.Equal(t, 7412, MetatrafficUnicastPort(0, 1))
	assert.Equal(t, 7660, MetatrafficUnicastPort(1, 0))
	assert.Equal(t, 7912, MetatrafficUnicastPort(2, 1))
}

func Test_SPDPMulticastUDPAddr(t *testing.T) {
	addr := SPDPMulticastUDPAddr()
	assert.Equal(t, "239.255.0.1", addr.IP.String())
	assert.Equal(t, SPDPMulticastPort, addr.Port)
}
