// Command assetsyncd is a thin demonstration binary for the
// manifest-driven asset synchronizer library (pkg/sync). It is not part
// of the importable API: embedders construct sync.Synchronizer directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "assetsyncd",
		Short:        "Resilient manifest-driven asset synchronizer",
		SilenceUsage: true,
	}

	cmd.AddCommand(newSyncCmd())
	return cmd
}
