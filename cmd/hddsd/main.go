package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hdds-team/hdds/common/go/logging"
	"github.com/hdds-team/hdds/common/go/xcmd"
	"github.com/hdds-team/hdds/internal/config"
	"github.com/hdds-team/hdds/internal/runtime"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to the participant's YAML configuration.
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:   "hddsd",
	Short: "HDDS participant daemon",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a participant and run it until interrupted",
	Run: func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			var interrupted xcmd.Interrupted
			if errors.As(err, &interrupted) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the participant's YAML configuration")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg := config.DefaultConfig()
	if cmd.ConfigPath != "" {
		loaded, err := config.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	logging.ApplyEnvOverride(&cfg.Logging)
	logger, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	p, err := runtime.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize participant: %w", err)
	}
	defer p.Close()

	logger.Infow("participant started",
		"domain_id", cfg.DomainID,
		"guid_prefix", p.GUIDPrefix,
	)

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return p.Run(ctx)
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		logger.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
