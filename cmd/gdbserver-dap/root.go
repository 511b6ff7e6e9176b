package main

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ctagard/gdbserver-dap/internal/config"
	"github.com/ctagard/gdbserver-dap/internal/logger"
	"github.com/ctagard/gdbserver-dap/internal/ports"
)

type rootFlagData struct {
	configPath string
	verbosity  string
	logFile    string
}

var (
	rootFlags rootFlagData

	// set up by the root command before any subcommand runs
	cfg *config.Config
	log *logger.Logger
)

const (
	configFlag      = "config"
	configFlagShort = "c"
	logFileFlag     = "log-file"
)

func newRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "gdbserver-dap",
		Short: "Debug adapter for embedded targets behind OpenOCD or pyOCD.",
		Long: `Debug adapter for embedded targets behind OpenOCD or pyOCD.

gdbserver-dap speaks the Debug Adapter Protocol to an editor, starts a gdb
server for the debug probe, flashes the firmware through gdb and exposes
locals, statics and globals of the halted target.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, configFlag, configFlagShort, "", "Configuration file (JSON or YAML). Defaults are used when omitted.")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logFile, logFileFlag, "", "Also append JSON log records to this file.")
	logger.AddVerbosityFlag(rootCmd.PersistentFlags(), &rootFlags.verbosity)

	rootCmd.AddCommand(
		newServeCommand(),
		newSymbolsCommand(),
		newPortsCommand(),
		newMCPCommand(),
		newLaunchConfigCommand(),
		newVersionCommand(),
	)
	return rootCmd, nil
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadConfig(rootFlags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg = loaded

	logFile := rootFlags.logFile
	if logFile == "" {
		logFile = cfg.LogFile
	}
	l, err := logger.New("gdbserver-dap", logFile)
	if err != nil {
		return err
	}
	log = l

	verbosity := cfg.Verbosity
	if cmd.Flags().Changed("verbosity") || verbosity == "" {
		verbosity = rootFlags.verbosity
	}
	return log.SetVerbosity(verbosity)
}

func flushLogger() {
	if log != nil {
		log.Flush()
	}
}

// newScanner builds the port scanner selected by the configuration
func newScanner(l logr.Logger) *ports.Scanner {
	var prober ports.Prober
	if cfg.Ports.ProbeCommand {
		prober = ports.CommandProber{Log: l.WithName("ports")}
	}
	return ports.NewScanner(prober, l.WithName("ports"))
}
