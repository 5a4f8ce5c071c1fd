// Package cmd implements the agent's command-line entrypoint.
package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/inference-sim/sched-core/agent"
)

var (
	configPath string
	logLevel   string
)

// rootCmd is the scheduler agent's entrypoint. Per spec.md §6, the
// agent's operational CLI surface is a single -h flag (cobra provides
// that automatically); --config and --log are development conveniences
// for pointing at an alternate YAML file and setting verbosity, and are
// not part of that contract (see SPEC_FULL.md §6).
var rootCmd = &cobra.Command{
	Use:   "sched-agent",
	Short: "Userspace control/telemetry agent for the heterogeneous-aware EEVDF scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg, err := agent.LoadConfig(configPath)
		if err != nil {
			logrus.WithError(err).Fatal("agent: could not load config")
		}

		source := agent.NewSysfsCapacitySource(cfg.SysfsRoot)
		capMap, globalMap, hist, stats := defaultCollaborators(cfg)
		a := agent.New(cfg, source, capMap, globalMap, hist, stats)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM)
		go func() {
			<-sigCh
			logrus.Info("agent: signal received, detaching and shutting down")
			cancel()
		}()

		return a.Run(ctx)
	},
}

// Execute runs the root command, exiting non-zero on any fatal setup
// error per spec.md §7's "fatal setup errors" taxonomy.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("agent: exiting")
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", agent.DefaultConfigPath, "path to the agent's YAML config file")
	rootCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
}
