package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-share/pkg/simpleshare/reaper"
)

var (
	reapInterval  time.Duration
	reapBatchSize int
	reapGrace     time.Duration
	reapDryRun    bool
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete blobs of expired bundles",
	Long: `reap removes stored payloads whose bundle expired, then drops the
expired metadata rows. By default it runs once and exits; with --interval it
keeps running until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runReap,
}

func init() {
	reapCmd.Flags().DurationVar(&reapInterval, "interval", 0, "repeat every interval instead of running once")
	reapCmd.Flags().IntVar(&reapBatchSize, "batch-size", 0, "expired payloads handled per batch (default from REAPER_BATCH_SIZE)")
	reapCmd.Flags().DurationVar(&reapGrace, "grace", -1, "only reap bundles expired for at least this long (default from REAPER_GRACE)")
	reapCmd.Flags().BoolVar(&reapDryRun, "dry-run", false, "report what would be deleted without deleting")

	rootCmd.AddCommand(reapCmd)
}

func runReap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.BuildService(ctx, logger.Logger)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	opts := reaper.Options{
		BatchSize: cfg.Reaper.BatchSize,
		Grace:     cfg.Reaper.Grace,
		DryRun:    reapDryRun,
	}
	if reapBatchSize > 0 {
		opts.BatchSize = reapBatchSize
	}
	if reapGrace >= 0 {
		opts.Grace = reapGrace
	}

	r := reaper.New(rt.Repository, rt.BlobStore, logger.Logger)

	if reapInterval > 0 {
		err := r.Run(ctx, reapInterval, opts)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	if verbose {
		opts.OnProgress = func(n int64) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  processed %d payloads\n", n)
		}
	}
	res, err := r.Reap(ctx, opts)
	if err != nil {
		return fmt.Errorf("reap failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if reapDryRun {
		fmt.Fprintln(out, "Dry run, nothing deleted")
	}
	fmt.Fprintf(out, "Expired payloads found: %d\n", res.BlobsFound)
	fmt.Fprintf(out, "Blobs deleted:          %d\n", res.BlobsDeleted)
	fmt.Fprintf(out, "Blob deletes failed:    %d\n", res.BlobsFailed)
	fmt.Fprintf(out, "Metadata rows removed:  %d\n", res.RowsDeleted)
	for _, h := range res.FailedHandles {
		fmt.Fprintf(out, "  failed: %s\n", h)
	}
	if res.BlobsFailed > 0 {
		return fmt.Errorf("%d blob deletes failed", res.BlobsFailed)
	}
	return nil
}
