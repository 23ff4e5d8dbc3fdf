// Package coordinator runs the per-code pipelines over a resolved work set,
// owns both progress stores for the duration of a run, and produces the
// final manifest. All per-code errors are converted to recorded failures at
// the pipeline boundary; only setup and store-flush problems surface as
// process errors.
package coordinator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gastoabierto/ordenes-cli/internal/classify"
	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/internal/progress"
	"github.com/gastoabierto/ordenes-cli/internal/store"
)

// Fetcher retrieves all documents for one order code and reports the
// attempts consumed.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (model.FetchResult, int)
}

// Extractor turns fetched documents into extraction results, in input order.
type Extractor interface {
	ProcessMany(ctx context.Context, paths []string) []model.ExtractionResult
}

// Options configures a Coordinator.
type Options struct {
	// Concurrency bounds in-flight per-code pipelines. Default 1: the
	// portal penalizes concurrent sessions from one client, so parallelism
	// is opt-in policy, not the baseline.
	Concurrency int
	// FlushEvery flushes both progress stores after this many completions.
	// A crash loses at most FlushEvery-1 completions of bookkeeping; the
	// affected codes are reprocessed on resume, never skipped.
	FlushEvery int
	// AgreementThreshold is passed through to the classifier.
	AgreementThreshold float64
	// Mode is recorded in the manifest and run archive.
	Mode string
	// OutputDir receives per-code classification files and the manifest.
	OutputDir string
	// DocumentsDir is the fetch download root; a code's documents are
	// deleted from it once the code completes.
	DocumentsDir string
}

// Coordinator drives the batch.
type Coordinator struct {
	fetcher    Fetcher
	extractor  Extractor
	registry   *progress.Registry
	checkpoint *progress.Checkpoint
	archive    store.Store // optional; nil disables the run archive
	opts       Options

	mu         sync.Mutex
	sinceFlush int
	processed  int
	failed     int
	documents  int
	entries    []model.ManifestEntry
}

// New creates a Coordinator. archive may be nil.
func New(f Fetcher, e Extractor, reg *progress.Registry, cp *progress.Checkpoint, archive store.Store, opts Options) *Coordinator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = 10
	}
	return &Coordinator{
		fetcher:    f,
		extractor:  e,
		registry:   reg,
		checkpoint: cp,
		archive:    archive,
		opts:       opts,
	}
}

// Run processes the work set in resolver order. Individual code failures
// are recorded, not returned; the returned error reflects coordinator-level
// problems only. Both stores are flushed before Run returns, on every path.
func (c *Coordinator) Run(ctx context.Context, codes []string) (summary *model.RunSummary, err error) {
	started := time.Now()
	runID := c.openRun(ctx)

	log := zap.L().With(zap.String("run_id", runID))
	log.Info("coordinator: starting run",
		zap.String("mode", c.opts.Mode),
		zap.Int("codes", len(codes)),
		zap.Int("concurrency", c.opts.Concurrency),
	)

	defer func() {
		// Final unconditional flush, also reached on fatal paths.
		if flushErr := c.flushStores(); flushErr != nil && err == nil {
			err = flushErr
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for _, code := range codes {
		g.Go(func() error {
			// Codes not yet started when the run is cancelled stay
			// pending; only the in-flight ones are recorded as failed.
			if gctx.Err() != nil {
				return nil
			}
			c.process(gctx, code)
			return nil // individual failures never abort the batch
		})
	}
	_ = g.Wait()

	summary = c.buildSummary(len(codes), started)

	if mErr := c.writeManifest(runID, started, summary); mErr != nil {
		log.Warn("coordinator: failed to write manifest", zap.Error(mErr))
	}
	c.closeRun(runID, summary, ctx.Err() != nil)

	log.Info("coordinator: run complete",
		zap.Int("processed", summary.Processed),
		zap.Int("failed", summary.Failed),
		zap.Int64("duration_ms", summary.DurationMS),
	)
	return summary, nil
}

// process runs one code's pipeline: fetch, extract, classify, record.
func (c *Coordinator) process(ctx context.Context, code string) {
	log := zap.L().With(zap.String("code", code))

	fr, attempts := c.fetcher.Fetch(ctx, code)
	if !fr.Success {
		c.recordFailure(code, interruptedError(ctx, fr.Error), attempts)
		return
	}

	var results []model.ExtractionResult
	if len(fr.DocumentPaths) > 0 {
		results = c.extractor.ProcessMany(ctx, fr.DocumentPaths)
	}
	if ctx.Err() != nil {
		c.recordFailure(code, interruptedError(ctx, "pipeline cancelled"), attempts)
		return
	}

	cls := classify.Classify(code, results, c.opts.AgreementThreshold)

	outPath, err := c.writeClassification(cls)
	if err != nil {
		c.recordFailure(code, err.Error(), attempts)
		return
	}

	c.recordCompletion(code, cls, len(fr.DocumentPaths), outPath)
	c.cleanupDocuments(code)

	log.Info("coordinator: code complete",
		zap.String("label", string(cls.Label)),
		zap.String("confidence", string(cls.Confidence)),
		zap.Int("documents", len(fr.DocumentPaths)),
	)
}

// recordCompletion marks a code completed in both stores inside one
// critical section, so counters and periodic flushes stay consistent under
// concurrency.
func (c *Coordinator) recordCompletion(code string, cls model.Classification, docs int, outPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.checkpoint.MarkProcessed(code) {
		c.processed++
	}
	c.registry.Add(code)
	c.documents += docs

	c.entries = append(c.entries, model.ManifestEntry{
		Code:       code,
		Success:    true,
		Documents:  docs,
		Items:      len(cls.Items),
		Label:      cls.Label,
		OutputPath: outPath,
	})

	c.sinceFlush++
	if c.sinceFlush >= c.opts.FlushEvery {
		c.sinceFlush = 0
		if err := c.flushStoresLocked(); err != nil {
			zap.L().Warn("coordinator: periodic flush failed", zap.Error(err))
		}
	}
}

// recordFailure converts a per-code error into a recorded failure. The
// code is never added to the all-time registry.
func (c *Coordinator) recordFailure(code, errMsg string, attempts int) {
	zap.L().Warn("coordinator: code failed",
		zap.String("code", code),
		zap.String("error", errMsg),
		zap.Int("attempts", attempts),
	)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.checkpoint.MarkFailed(code, errMsg, attempts)
	c.failed++
	c.entries = append(c.entries, model.ManifestEntry{
		Code:  code,
		Error: errMsg,
	})
}

func (c *Coordinator) flushStores() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushStoresLocked()
}

func (c *Coordinator) flushStoresLocked() error {
	if err := c.registry.Flush(); err != nil {
		return eris.Wrap(err, "coordinator: flush registry")
	}
	if err := c.checkpoint.Flush(); err != nil {
		return eris.Wrap(err, "coordinator: flush checkpoint")
	}
	return nil
}

// writeClassification persists one code's classification record. A re-run
// overwrites the whole file, never merges.
func (c *Coordinator) writeClassification(cls model.Classification) (string, error) {
	dir := filepath.Join(c.opts.OutputDir, "classifications")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "coordinator: create output dir")
	}

	path := filepath.Join(dir, cls.Code+".json")
	data, err := json.MarshalIndent(cls, "", "  ")
	if err != nil {
		return "", eris.Wrapf(err, "coordinator: marshal classification %s", cls.Code)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "coordinator: write classification %s", cls.Code)
	}
	return path, nil
}

// cleanupDocuments reclaims the code's downloaded documents once its
// classification is written.
func (c *Coordinator) cleanupDocuments(code string) {
	if c.opts.DocumentsDir == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(c.opts.DocumentsDir, code)); err != nil {
		zap.L().Warn("coordinator: failed to clean documents",
			zap.String("code", code),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) buildSummary(resolved int, started time.Time) *model.RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &model.RunSummary{
		Resolved:   resolved,
		Processed:  c.processed,
		Failed:     c.failed,
		Documents:  c.documents,
		DurationMS: time.Since(started).Milliseconds(),
	}
}

func (c *Coordinator) writeManifest(runID string, started time.Time, summary *model.RunSummary) error {
	c.mu.Lock()
	entries := append([]model.ManifestEntry(nil), c.entries...)
	c.mu.Unlock()

	m := model.Manifest{
		RunID:      runID,
		Mode:       c.opts.Mode,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
		Processed:  summary.Processed,
		Failed:     summary.Failed,
		Entries:    entries,
	}

	if err := os.MkdirAll(c.opts.OutputDir, 0o755); err != nil {
		return eris.Wrap(err, "coordinator: create output dir")
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "coordinator: marshal manifest")
	}
	path := filepath.Join(c.opts.OutputDir, "manifest-"+runID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "coordinator: write manifest")
	}
	return nil
}

// openRun registers the run in the archive, falling back to a bare UUID
// when no archive is configured or the insert fails.
func (c *Coordinator) openRun(ctx context.Context) string {
	if c.archive == nil {
		return uuid.New().String()
	}
	run, err := c.archive.CreateRun(ctx, c.opts.Mode)
	if err != nil {
		zap.L().Warn("coordinator: failed to create archive run", zap.Error(err))
		return uuid.New().String()
	}
	return run.ID
}

func (c *Coordinator) closeRun(runID string, summary *model.RunSummary, interrupted bool) {
	if c.archive == nil {
		return
	}
	status := model.RunStatusComplete
	if interrupted {
		status = model.RunStatusAborted
	}
	// Archive writes use a fresh context: the run context may already be
	// cancelled and the record must still land.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.archive.CompleteRun(ctx, runID, status, summary); err != nil {
		zap.L().Warn("coordinator: failed to complete archive run", zap.Error(err))
	}
}

// interruptedError labels an error that is actually a run-level
// cancellation, so resumed sessions can tell interruption from portal
// failures.
func interruptedError(ctx context.Context, msg string) string {
	if ctx.Err() != nil {
		return "interrupted: " + msg
	}
	return msg
}
