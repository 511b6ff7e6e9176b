package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctagard/gdbserver-dap/internal/launchconfig"
)

type launchConfigFlagData struct {
	file      string
	workspace string
}

var launchConfigFlags launchConfigFlagData

func newLaunchConfigCommand() *cobra.Command {
	launchConfigCmd := &cobra.Command{
		Use:   "launch-config [name]",
		Short: "List launch.json configurations or print one with variables resolved.",
		Long: `List launch.json configurations or print one with variables resolved.

Without a name the configuration names are listed. With a name the
configuration is validated and printed as the launch arguments the adapter
would receive, with ${workspaceFolder}, ${env:...} and friends substituted:

    gdbserver-dap launch-config "Flash and debug"`,
		RunE: showLaunchConfig,
		Args: cobra.MaximumNArgs(1),
	}

	launchConfigCmd.Flags().StringVar(&launchConfigFlags.file, "file", "", "Path to launch.json. Discovered from --workspace when omitted.")
	launchConfigCmd.Flags().StringVar(&launchConfigFlags.workspace, "workspace", "", "Directory to start launch.json discovery from. Defaults to the current directory.")
	return launchConfigCmd
}

func showLaunchConfig(cmd *cobra.Command, args []string) error {
	var (
		lj  *launchconfig.File
		err error
	)
	if launchConfigFlags.file != "" {
		lj, err = launchconfig.Open(launchConfigFlags.file)
	} else {
		lj, err = launchconfig.Find(launchConfigFlags.workspace)
	}
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, name := range lj.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	resolved, err := lj.LaunchArguments(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resolved)
}
