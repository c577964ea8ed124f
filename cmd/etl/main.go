// Command etl analyses vibration sensor logs, imports GPS tracks and exports
// the severity map.
//
// Usage:
//
//	etl analyze [--force] [FILE]
//	etl gps import
//	etl gps process
//	etl gps clear-raw | clear-results
//	etl delete FILE
//	etl export geojson [--out PATH]
//
// Settings come from the environment (see internal/config); a .env file in
// the working directory is honoured.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "etl",
		Short:         "Vibration severity pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newAnalyzeCmd(),
		newGPSCmd(),
		newDeleteCmd(),
		newExportCmd(),
	)
	return root
}
