package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	dbgerrors "github.com/ctagard/gdbserver-dap/internal/errors"
	"github.com/ctagard/gdbserver-dap/internal/mcp"
	"github.com/ctagard/gdbserver-dap/internal/ports"
	"github.com/ctagard/gdbserver-dap/internal/symbols"
	"github.com/ctagard/gdbserver-dap/internal/version"
)

type symbolsFlagData struct {
	objdump string
	file    string
	asJSON  bool
}

type portsFlagData struct {
	start  int
	length int
	owner  int
}

var (
	symbolsFlags symbolsFlagData
	portsFlags   portsFlagData
)

func newSymbolsCommand() *cobra.Command {
	symbolsCmd := &cobra.Command{
		Use:   "symbols <executable>",
		Short: "List the global (or one file's static) variables of an ELF image.",
		RunE:  listSymbols,
		Args:  cobra.ExactArgs(1),
	}

	symbolsCmd.Flags().StringVar(&symbolsFlags.objdump, "objdump", "", "Symbol dump tool. Overrides the configured objdumpPath.")
	symbolsCmd.Flags().StringVar(&symbolsFlags.file, "file", "", "List the static variables of this source file instead of the globals.")
	symbolsCmd.Flags().BoolVar(&symbolsFlags.asJSON, "json", false, "Print JSON instead of a table.")
	return symbolsCmd
}

func listSymbols(cmd *cobra.Command, args []string) error {
	tool := symbolsFlags.objdump
	if tool == "" {
		tool = cfg.ObjdumpPath
	}

	table, err := symbols.Load(cmd.Context(), args[0], tool)
	if err != nil {
		return err
	}

	syms := table.GlobalVariables()
	if symbolsFlags.file != "" {
		syms = table.StaticVariables(symbolsFlags.file)
	}

	if symbolsFlags.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(syms)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSIZE\tSECTION\tNAME\tFILE")
	for _, s := range syms {
		fmt.Fprintf(w, "0x%08x\t%d\t%s\t%s\t%s\n", s.Address, s.Length, s.Section, s.Name, s.File)
	}
	return w.Flush()
}

func newPortsCommand() *cobra.Command {
	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "Find the port a launch would pick, or show who owns a port.",
		RunE:  probePorts,
		Args:  cobra.NoArgs,
	}

	portsCmd.Flags().IntVar(&portsFlags.start, "start", 0, "First port to probe. Defaults to the configured gdb port start.")
	portsCmd.Flags().IntVar(&portsFlags.length, "length", 0, "Number of ports to probe. Defaults to the configured range length.")
	portsCmd.Flags().IntVar(&portsFlags.owner, "owner", 0, "Print the process listening on this port instead.")
	return portsCmd
}

func probePorts(cmd *cobra.Command, _ []string) error {
	if portsFlags.owner > 0 {
		owner, ok := ports.CommandProber{Log: log.Logger}.Owner(cmd.Context(), portsFlags.owner)
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "port %d: no listener found\n", portsFlags.owner)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "port %d: pid %d %s\n", portsFlags.owner, owner.PID, owner.Executable)
		return nil
	}

	start, length := portsFlags.start, portsFlags.length
	if start == 0 {
		start = cfg.Ports.GdbStart
	}
	if length == 0 {
		length = cfg.Ports.Length
	}

	port, ok, err := newScanner(log.Logger).FindFreePort(cmd.Context(), start, length)
	if err != nil {
		return err
	}
	if !ok {
		return dbgerrors.NoFreePort(start, length)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strconv.Itoa(port))
	return nil
}

func newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the symbol and port inspection tools over MCP on stdio.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			l := log.Logger.WithName("mcp")
			return mcp.NewServer(cfg, newScanner(l), l).ServeStdio()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
