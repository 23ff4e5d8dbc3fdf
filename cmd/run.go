package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gastoabierto/ordenes-cli/internal/coordinator"
	"github.com/gastoabierto/ordenes-cli/internal/extract"
	"github.com/gastoabierto/ordenes-cli/internal/fetch"
	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/internal/progress"
	"github.com/gastoabierto/ordenes-cli/internal/resilience"
	"github.com/gastoabierto/ordenes-cli/internal/resolve"
	"github.com/gastoabierto/ordenes-cli/internal/source"
	anthropicpkg "github.com/gastoabierto/ordenes-cli/pkg/anthropic"
)

var (
	runInput       string
	runModeFlag    string
	runSample      int
	runConcurrency int
	runMirror      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process a work set of order codes",
	Long:  "Resolves the work set from the input file and progress stores, then fetches, extracts, and classifies each code. Per-code failures are recorded and never abort the batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		mode, err := resolve.ParseMode(runModeFlag)
		if err != nil {
			return err
		}

		input := runInput
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

		work := resolve.Resolve(codes, reg, cp, resolve.Request{
			Mode:        mode,
			SampleSize:  runSample,
			MaxAttempts: cfg.Fetch.MaxAttempts,
		})
		zap.L().Info("work set resolved",
			zap.String("mode", string(mode)),
			zap.Int("input", len(codes)),
			zap.Int("work", len(work)),
		)
		if len(work) == 0 {
			zap.L().Info("nothing to do")
			return nil
		}

		summary, err := runWorkSet(ctx, work, string(mode), reg, cp)
		if err != nil {
			return err
		}

		// Exit zero even when some codes failed: recorded failures are a
		// normal outcome, the checkpoint carries them to the next run.
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "input file with order codes (.xlsx or .csv)")
	runCmd.Flags().StringVar(&runModeFlag, "mode", "incremental", "work-set mode: incremental, fresh, or retry")
	runCmd.Flags().IntVar(&runSample, "sample", 0, "process only the first N resolved codes")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "override run.concurrency")
	runCmd.Flags().StringVar(&runMirror, "mirror", "", "portal document mirror directory (default <data.dir>/mirror)")
	rootCmd.AddCommand(runCmd)
}

// runWorkSet wires the pipeline and drives the coordinator over work. It is
// shared by `run` and `batch run`.
func runWorkSet(ctx context.Context, work []string, mode string, reg *progress.Registry, cp *progress.Checkpoint) (*model.RunSummary, error) {
	archive := initStoreOptional(ctx)
	if archive != nil {
		defer archive.Close()
	}

	concurrency := cfg.Run.Concurrency
	if runConcurrency > 0 {
		concurrency = runConcurrency
	}

	coord := coordinator.New(buildFetcher(), buildExtractor(), reg, cp, archive, coordinator.Options{
		Concurrency:        concurrency,
		FlushEvery:         cfg.Run.FlushEvery,
		AgreementThreshold: cfg.Classify.AgreementThreshold,
		Mode:               mode,
		OutputDir:          filepath.Join(cfg.Data.Dir, "output"),
		DocumentsDir:       filepath.Join(cfg.Data.Dir, "documents"),
	})

	summary, err := coord.Run(ctx, work)
	if err != nil {
		return summary, eris.Wrap(err, "coordinator run")
	}
	return summary, nil
}

// loadProgress opens both progress stores under the data directory.
func loadProgress() (*progress.Registry, *progress.Checkpoint, error) {
	reg, err := progress.LoadRegistry(filepath.Join(cfg.Data.Dir, "registry.json"))
	if err != nil {
		return nil, nil, eris.Wrap(err, "load registry")
	}
	cp, err := progress.LoadCheckpoint(filepath.Join(cfg.Data.Dir, "checkpoint.json"))
	if err != nil {
		return nil, nil, eris.Wrap(err, "load checkpoint")
	}
	return reg, cp, nil
}

func buildFetcher() *fetch.Fetcher {
	mirror := runMirror
	if mirror == "" {
		mirror = filepath.Join(cfg.Data.Dir, "mirror")
	}
	browser := fetch.NewLocalBrowser(mirror)

	backoff := resilience.DefaultRetryConfig()
	backoff.MaxAttempts = cfg.Fetch.MaxAttempts
	backoff.InitialBackoff = time.Duration(cfg.Fetch.BackoffInitialSecs) * time.Second
	backoff.MaxBackoff = time.Duration(cfg.Fetch.BackoffMaxSecs) * time.Second

	return fetch.New(browser, fetch.Options{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Backoff:     backoff,
		JitterMin:   cfg.Fetch.JitterMin(),
		JitterMax:   cfg.Fetch.JitterMax(),
		DownloadDir: filepath.Join(cfg.Data.Dir, "documents"),
	})
}

func buildExtractor() *extract.Adapter {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return extract.New(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.RequestsPerMinute)
}
