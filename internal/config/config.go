// Package config loads a participant's YAML configuration, applying
// environment variable overrides after the file is parsed (spec §6,
// following common/go/logging's HDDS_LOG_LEVEL override convention).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/hdds-team/hdds/common/go/logging"
)

// Environment variable names overriding the YAML config (spec §6).
const (
	EnvDomainID      = "HDDS_DOMAIN_ID"
	EnvParticipantID = "HDDS_PARTICIPANT_ID"
	EnvReusePort     = "HDDS_REUSEPORT"
	EnvInterface     = "HDDS_INTERFACE"
)

// Config is a participant's full configuration.
type Config struct {
	// Logging configures the structured logger (spec: ambient stack).
	Logging logging.Config `yaml:"logging"`

	// DomainID partitions participants into independent domains (spec §3,
	// §4.10 port formula).
	DomainID uint32 `yaml:"domain_id"`

	// ParticipantID selects a fixed slot in the per-domain port range.
	// -1 (the default) means "probe sequentially" (spec §4.10).
	ParticipantID int `yaml:"participant_id"`

	// Interface is the network interface (or bind address) SPDP
	// multicast and unicast traffic use. Empty means the OS default
	// route.
	Interface string `yaml:"interface"`

	// ReusePort enables SO_REUSEPORT on the bound UDP sockets, letting
	// multiple participants share a metatraffic multicast port on one
	// host (spec §4.10).
	ReusePort bool `yaml:"reuse_port"`

	// MTU bounds the size of a single UDP datagram the pool will hold
	// and the fragmenter will emit (spec §4.8).
	MTU datasize.ByteSize `yaml:"mtu"`

	// LeaseDuration is this participant's advertised SPDP lease (spec
	// §4.6, §5).
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// SPDPPeriod is the interval between SPDP announcements (spec §5).
	SPDPPeriod time.Duration `yaml:"spdp_period"`

	// SHM configures the same-host shared-memory transport (spec §4.9).
	SHM SHMConfig `yaml:"shm"`
}

// SHMConfig configures the same-host zero-copy transport (spec §4.9).
type SHMConfig struct {
	// Policy selects whether SHM is used opportunistically, mandated, or
	// turned off entirely. One of "prefer", "require", "disable".
	Policy string `yaml:"policy"`

	// RingCapacity is the number of frame slots per topic ring.
	RingCapacity int `yaml:"ring_capacity"`

	// Directory is the base directory backing the SHM segments (spec
	// §4.9 default: /dev/shm).
	Directory string `yaml:"directory"`
}

// DefaultConfig returns the configuration used when a participant is
// constructed without an explicit config file.
func DefaultConfig() *Config {
	return &Config{
		Logging:       *logging.DefaultConfig(),
		DomainID:      0,
		ParticipantID: -1,
		ReusePort:     true,
		MTU:           65507 * datasize.B,
		LeaseDuration: 30 * time.Second,
		SPDPPeriod:    100 * time.Millisecond,
		SHM: SHMConfig{
			Policy:       "prefer",
			RingCapacity: 1024,
			Directory:    "/dev/shm",
		},
	}
}

// LoadConfig reads and parses the YAML configuration at path, then applies
// environment variable overrides (spec §6).
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("deserialize config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	logging.ApplyEnvOverride(&cfg.Logging)

	if raw, ok := os.LookupEnv(EnvDomainID); ok {
		if v, err := strconv.ParseUint(raw, 10, 32); err == nil {
			cfg.DomainID = uint32(v)
		}
	}
	if raw, ok := os.LookupEnv(EnvParticipantID); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.ParticipantID = v
		}
	}
	if raw, ok := os.LookupEnv(EnvReusePort); ok {
		if v, err := strconv.ParseBool(raw); err == nil {
			cfg.ReusePort = v
		}
	}
	if raw, ok := os.LookupEnv(EnvInterface); ok && raw != "" {
		cfg.Interface = raw
	}
}
