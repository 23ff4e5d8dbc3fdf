package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gastoabierto/ordenes-cli/internal/resolve"
	"github.com/gastoabierto/ordenes-cli/internal/schedule"
	"github.com/gastoabierto/ordenes-cli/internal/source"
)

var (
	batchInput string
	batchSize  int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Schedule the input across multiple runs",
	Long:  "Splits the unprocessed codes into fixed-size batches on disk, then drains them one batch per invocation. Useful under cron when the full input is too large for one session.",
}

// -- batch init --

var batchInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Split unprocessed codes into pending batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input := batchInput
		if input == "" {
			input = cfg.Input.Path
		}
		if input == "" {
			return eris.New("no input file: pass --input or set input.path")
		}

		codes, err := source.Load(input, source.Options{CodeColumn: cfg.Input.CodeColumn})
		if err != nil {
			return eris.Wrap(err, "load input")
		}

		reg, cp, err := loadProgress()
		if err != nil {
			return err
		}
		work := resolve.Resolve(codes, reg, cp, resolve.Request{Mode: resolve.ModeIncremental})

		size := batchSize
		if size <= 0 {
			size = cfg.Batch.Size
		}

		q, err := newQueue()
		if err != nil {
			return err
		}
		n, err := q.Init(work, size)
		if err != nil {
			return err
		}

		zap.L().Info("batch queue initialized",
			zap.Int("codes", len(work)),
			zap.Int("batches", n),
			zap.Int("size", size),
		)
		return nil
	},
}

// -- batch run --

var batchRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the next pending batch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		q, err := newQueue()
		if err != nil {
			return err
		}
		b, err := q.Next()
		if err != nil {
			return err
		}
		if b == nil {
			fmt.Fprintln(os.Stderr, "No pending batches.")
			return nil
		}

		reg, cp, err := loadProgress()
		if err != nil {
			return err
		}

		// Codes completed since the queue was built are skipped here, not
		// at init time, so stale queues stay safe to drain.
		work := resolve.Resolve(b.Codes, reg, cp, resolve.Request{Mode: resolve.ModeIncremental})
		zap.L().Info("processing batch",
			zap.String("batch", b.ID),
			zap.Int("codes", len(b.Codes)),
			zap.Int("remaining", len(work)),
		)

		summary, err := runWorkSet(ctx, work, "batch", reg, cp)
		if err != nil {
			if mErr := q.MarkFailed(b, err.Error()); mErr != nil {
				zap.L().Warn("failed to mark batch failed", zap.Error(mErr))
			}
			return err
		}
		if ctx.Err() != nil {
			// Interrupted batches stay pending so the next invocation
			// resumes them.
			zap.L().Warn("batch interrupted, leaving pending", zap.String("batch", b.ID))
			return nil
		}

		if err := q.MarkProcessed(b); err != nil {
			return err
		}
		zap.L().Info("batch complete",
			zap.String("batch", b.ID),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
		)
		return nil
	},
}

// -- batch status --

var batchStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch queue counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		q, err := newQueue()
		if err != nil {
			return err
		}
		pending, processed, failed, err := q.Counts()
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\nprocessed: %d\nfailed: %d\n", pending, processed, failed)
		return nil
	},
}

func newQueue() (*schedule.Queue, error) {
	return schedule.NewQueue(filepath.Join(cfg.Data.Dir, "batches"))
}

func init() {
	batchInitCmd.Flags().StringVar(&batchInput, "input", "", "input file with order codes (.xlsx or .csv)")
	batchInitCmd.Flags().IntVar(&batchSize, "size", 0, "codes per batch (default batch.size)")
	batchCmd.AddCommand(batchInitCmd)
	batchCmd.AddCommand(batchRunCmd)
	batchCmd.AddCommand(batchStatusCmd)
	rootCmd.AddCommand(batchCmd)
}
