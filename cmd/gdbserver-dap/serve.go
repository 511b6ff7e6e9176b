package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ctagard/gdbserver-dap/internal/dap"
)

type serveFlagData struct {
	listen string
}

var serveFlags serveFlagData

const listenFlag = "listen"

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve DAP on stdio or a TCP address.",
		Long: `Serve DAP on stdio or a TCP address.

Without --listen a single session is served over stdin/stdout, which is how
editors usually start a debug adapter. With --listen every accepted TCP
connection gets its own session:

    gdbserver-dap serve --listen 127.0.0.1:4711`,
		RunE: serve,
		Args: cobra.NoArgs,
	}

	serveCmd.Flags().StringVar(&serveFlags.listen, listenFlag, "", "TCP address to accept DAP clients on. Overrides the configured listen address.")
	return serveCmd
}

func serve(cmd *cobra.Command, _ []string) error {
	listen := cfg.Listen
	if serveFlags.listen != "" {
		listen = serveFlags.listen
	}

	l := log.Logger
	backend := dap.NewBackend(newScanner(l), l)
	server := dap.NewServer(cfg, backend, l.WithName("dap"))

	if listen == "" {
		l.Info("serving DAP on stdio")
		return server.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
	}
	return server.ListenAndServe(cmd.Context(), listen)
}
