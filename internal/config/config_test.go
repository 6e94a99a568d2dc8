package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfigAppliesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
domain_id: 3
participant_id: 2
shm:
  policy: require
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.EqualValues(t, 3, cfg.DomainID)
	assert.Equal(t, 2, cfg.ParticipantID)
	assert.Equal(t, "require", cfg.SHM.Policy)
	assert.Equal(t, 1024, cfg.SHM.RingCapacity, "unset fields keep the default")
}

func Test_LoadConfigEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("domain_id: 1\n"), 0o644))

	t.Setenv(EnvDomainID, "9")
	t.Setenv(EnvParticipantID, "4")
	t.Setenv(EnvReusePort, "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.EqualValues(t, 9, cfg.DomainID)
	assert.Equal(t, 4, cfg.ParticipantID)
	assert.False(t, cfg.ReusePort)
}

func Test_DefaultConfigParticipantIDMeansProbe(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, -1, cfg.ParticipantID)
}
