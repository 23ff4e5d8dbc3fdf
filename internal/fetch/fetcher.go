// Package fetch drives the external procurement-portal session through the
// fixed document retrieval protocol for one order code, with bounded retry
// and mandatory randomized pacing between network-facing operations.
package fetch

import (
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/internal/resilience"
)

// Attachment identifies one downloadable file listed on an order's
// attachment popup.
type Attachment struct {
	ID   string
	Name string
}

// Browser is the external interactive-session collaborator. Each method is
// one stage of the portal protocol; implementations own their own session
// state (navigation, popups) and report stage failures as errors.
type Browser interface {
	// Search locates the order code on the portal. Stage 1.
	Search(ctx context.Context, code string) error
	// OpenDetail opens the order's detail view. Stage 2.
	OpenDetail(ctx context.Context, code string) error
	// DownloadReport downloads the order's direct report into dir when the
	// portal offers one. Returns ("", nil) when no report exists; that is
	// not a failure. Stage 3.
	DownloadReport(ctx context.Context, code, dir string) (string, error)
	// ListAttachments opens the attachment popup and lists its entries.
	// An empty list is a valid outcome. Stage 4.
	ListAttachments(ctx context.Context, code string) ([]Attachment, error)
	// DownloadAttachment downloads one listed attachment into dir. Stage 5.
	DownloadAttachment(ctx context.Context, code string, att Attachment, dir string) (string, error)
}

// Options configures the fetch shell.
type Options struct {
	MaxAttempts int
	Backoff     resilience.RetryConfig
	JitterMin   time.Duration
	JitterMax   time.Duration
	// DownloadDir is the root under which per-code document directories are
	// materialized.
	DownloadDir string
}

// Fetcher wraps a Browser with retry, backoff and pacing. One Fetcher may
// be shared across pipelines; the Browser implementation decides whether it
// tolerates concurrent sessions.
type Fetcher struct {
	browser Browser
	opts    Options

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a Fetcher.
func New(browser Browser, opts Options) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	return &Fetcher{
		browser: browser,
		opts:    opts,
		sleep:   resilience.Sleep,
	}
}

// Fetch retrieves all documents for one order code. It returns the fetch
// result and the number of attempts consumed. A success with no documents
// is terminal: the order simply has no attachments, and it is never retried.
// Only transient stage failures are retried; a permanent one fails the code
// on the spot. Failed attempts never partially commit: documents only become
// the code's result once a whole attempt succeeds.
func (f *Fetcher) Fetch(ctx context.Context, code string) (model.FetchResult, int) {
	cfg := f.opts.Backoff
	cfg.MaxAttempts = f.opts.MaxAttempts
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("portal", "fetch "+code)
	}

	var paths []string
	used := 0
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		used++
		staged, err := f.attempt(ctx, code)
		if err != nil {
			return err
		}
		paths = staged
		return nil
	})
	if err != nil {
		zap.L().Warn("fetch: giving up",
			zap.String("code", code),
			zap.Int("attempts", used),
			zap.Error(err),
		)
		return failure(code, err), used
	}

	return model.FetchResult{
		Code:          code,
		Success:       true,
		DocumentPaths: paths,
	}, used
}

// attempt runs the full protocol once. Any stage failure aborts the attempt
// and discards everything downloaded so far in it.
func (f *Fetcher) attempt(ctx context.Context, code string) ([]string, error) {
	// Downloads land in an attempt-scoped staging dir; only a fully
	// successful attempt is promoted to the code's document dir.
	if err := os.MkdirAll(f.opts.DownloadDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetch: create download dir")
	}
	staging, err := os.MkdirTemp(f.opts.DownloadDir, code+".attempt-*")
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create staging dir")
	}
	defer os.RemoveAll(staging) //nolint:errcheck

	if err := f.browser.Search(ctx, code); err != nil {
		return nil, eris.Wrapf(err, "fetch: search %s", code)
	}
	f.pause(ctx)

	if err := f.browser.OpenDetail(ctx, code); err != nil {
		return nil, eris.Wrapf(err, "fetch: open detail %s", code)
	}
	f.pause(ctx)

	var staged []string

	report, err := f.browser.DownloadReport(ctx, code, staging)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: download report %s", code)
	}
	if report != "" {
		staged = append(staged, report)
	}
	f.pause(ctx)

	atts, err := f.browser.ListAttachments(ctx, code)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: list attachments %s", code)
	}

	for _, att := range atts {
		f.pause(ctx)
		path, err := f.browser.DownloadAttachment(ctx, code, att, staging)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch: download attachment %s of %s", att.Name, code)
		}
		staged = append(staged, path)
	}

	return f.promote(code, staging, staged)
}

// promote moves a successful attempt's staged files into the code's final
// document directory, replacing any leftovers from an earlier aborted run.
func (f *Fetcher) promote(code, staging string, staged []string) ([]string, error) {
	final := filepath.Join(f.opts.DownloadDir, code)
	if err := os.RemoveAll(final); err != nil {
		return nil, eris.Wrapf(err, "fetch: clear document dir %s", code)
	}
	if len(staged) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(final, 0o755); err != nil {
		return nil, eris.Wrapf(err, "fetch: create document dir %s", code)
	}

	out := make([]string, 0, len(staged))
	for _, src := range staged {
		dst := filepath.Join(final, filepath.Base(src))
		if err := os.Rename(src, dst); err != nil {
			return nil, eris.Wrapf(err, "fetch: promote %s", src)
		}
		out = append(out, dst)
	}
	return out, nil
}

// pause sleeps a random duration within the configured jitter bounds. The
// portal rejects sessions that fire requests back to back, so pacing is a
// correctness requirement, not politeness.
func (f *Fetcher) pause(ctx context.Context) {
	if f.opts.JitterMax <= 0 {
		return
	}
	d := f.opts.JitterMin
	if span := f.opts.JitterMax - f.opts.JitterMin; span > 0 {
		d += time.Duration(rand.Int64N(int64(span)))
	}
	f.sleep(ctx, d)
}

func failure(code string, err error) model.FetchResult {
	msg := "fetch failed"
	if err != nil {
		msg = err.Error()
	}
	return model.FetchResult{Code: code, Error: msg}
}
