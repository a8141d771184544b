// Command worker runs one inference worker: an operator registry served
// over HTTP, reachable by the coordinator's handles.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shardrunner/engine/internal/transport"
	"github.com/shardrunner/engine/internal/worker"
)

func main() {
	var addr string

	root := &cobra.Command{
		Use:           "worker",
		Short:         "Serve an AQLM/INT8 operator registry over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := worker.NewRegistry()
			server := worker.NewServer(registry, slog.Default())
			httpServer := transport.NewHTTPServer(server)

			slog.Info("worker listening", "addr", addr)
			return httpServer.Run(addr)
		},
	}
	root.Flags().StringVar(&addr, "addr", ":9100", "address to listen on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
