package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// EnvLevelVar is the environment variable that overrides the configured
// logging level, per spec §6.
const EnvLevelVar = "HDDS_LOG_LEVEL"

// ApplyEnvOverride overrides cfg.Level from HDDS_LOG_LEVEL when it is set
// and parses as a valid zap level.
func ApplyEnvOverride(cfg *Config) {
	raw, ok := os.LookupEnv(EnvLevelVar)
	if !ok || raw == "" {
		return
	}

	var level zapcore.Level
	if err := level.Set(raw); err != nil {
		return
	}
	cfg.Level = level
}

// Init initializes the logging subsystem.
//
// The returned zap.AtomicLevel allows the level to be changed at runtime,
// e.g. from the control-plane channel.
func Init(cfg *Config) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()

	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.Sugar(), config.Level, nil
}
