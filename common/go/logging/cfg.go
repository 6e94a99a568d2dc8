package logging

import "go.uber.org/zap/zapcore"

// Config is the configuration for the logging subsystem.
//
// Level is overridden by the HDDS_LOG_LEVEL environment variable, if set,
// after the YAML config is loaded (see internal/config).
type Config struct {
	// Level is the logging level.
	Level zapcore.Level `yaml:"level"`
}

// DefaultConfig returns the logging configuration used when none is
// supplied, matching the default in spec §6 (HDDS_LOG_LEVEL).
func DefaultConfig() *Config {
	return &Config{Level: zapcore.InfoLevel}
}
