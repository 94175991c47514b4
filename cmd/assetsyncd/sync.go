package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cperrin88/assetsync/pkg/manifest"
	"github.com/cperrin88/assetsync/pkg/sync"
)

func newSyncCmd() *cobra.Command {
	var (
		manifestPath string
		workingDir   string
		interval     time.Duration
		verbose      bool
		once         bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the reconciliation loop against a YAML manifest",
		RunE: func(c *cobra.Command, _ []string) error {
			opts := sync.Options{
				WorkingDirectory: workingDir,
				Interval:         interval,
				Verbose:          verbose,
				GetManifest:      manifest.YAMLFileProducer(manifestPath),
			}

			s := sync.New(opts)
			if err := s.Init(); err != nil {
				return fmt.Errorf("init: %w", err)
			}
			defer func() { _ = s.Close() }()

			if once {
				return nil
			}

			<-c.Context().Done()
			fmt.Fprintln(os.Stderr, "shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "manifest.yaml", "path to the YAML manifest")
	cmd.Flags().StringVar(&workingDir, "working-dir", "./downloads", "working directory to synchronize")
	cmd.Flags().DurationVar(&interval, "interval", 60*time.Second, "reconciliation interval")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit instead of looping")

	return cmd
}
