package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastoabierto/ordenes-cli/internal/resilience"
)

// stubBrowser scripts the protocol stages. failSearch counts down: each
// Search call decrements it and fails while it is positive. searchErr
// overrides the default transient search failure.
type stubBrowser struct {
	failSearch  int
	searchErr   error
	failList    bool
	report      []byte
	attachments map[string][]byte

	searchCalls   int
	downloadCalls int
}

func (s *stubBrowser) Search(_ context.Context, code string) error {
	s.searchCalls++
	if s.failSearch > 0 {
		s.failSearch--
		if s.searchErr != nil {
			return s.searchErr
		}
		return errors.New("navigation timeout")
	}
	return nil
}

func (s *stubBrowser) OpenDetail(context.Context, string) error { return nil }

func (s *stubBrowser) DownloadReport(_ context.Context, _, dir string) (string, error) {
	if s.report == nil {
		return "", nil
	}
	s.downloadCalls++
	return writeStub(dir, "report.pdf", s.report)
}

func (s *stubBrowser) ListAttachments(context.Context, string) ([]Attachment, error) {
	if s.failList {
		return nil, errors.New("popup did not open")
	}
	atts := make([]Attachment, 0, len(s.attachments))
	for name := range s.attachments {
		atts = append(atts, Attachment{ID: name, Name: name})
	}
	return atts, nil
}

func (s *stubBrowser) DownloadAttachment(_ context.Context, _ string, att Attachment, dir string) (string, error) {
	s.downloadCalls++
	return writeStub(dir, att.Name, s.attachments[att.Name])
}

func writeStub(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, data, 0o644)
}

func testFetcher(t *testing.T, b Browser) *Fetcher {
	t.Helper()
	f := New(b, Options{
		MaxAttempts: 3,
		Backoff: resilience.RetryConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			JitterFraction: 0,
		},
		JitterMin:   time.Microsecond,
		JitterMax:   2 * time.Microsecond,
		DownloadDir: t.TempDir(),
	})
	f.sleep = func(context.Context, time.Duration) bool { return true }
	return f
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	b := &stubBrowser{
		report:      []byte("pdf"),
		attachments: map[string][]byte{"factura.pdf": []byte("f")},
	}
	f := testFetcher(t, b)

	res, attempts := f.Fetch(context.Background(), "3506-434-SE25")

	require.True(t, res.Success)
	assert.Equal(t, 1, attempts)
	assert.Len(t, res.DocumentPaths, 2)
	for _, p := range res.DocumentPaths {
		assert.FileExists(t, p)
		assert.Equal(t, "3506-434-SE25", filepath.Base(filepath.Dir(p)), "documents live under the code's dir")
	}
}

func TestFetchZeroDocumentsIsSuccess(t *testing.T) {
	t.Parallel()

	f := testFetcher(t, &stubBrowser{})

	res, attempts := f.Fetch(context.Background(), "1-2-AB01")

	assert.True(t, res.Success)
	assert.Empty(t, res.DocumentPaths)
	assert.Equal(t, 1, attempts)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	b := &stubBrowser{failSearch: 2, report: []byte("pdf")}
	f := testFetcher(t, b)

	res, attempts := f.Fetch(context.Background(), "1-2-AB01")

	require.True(t, res.Success)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, b.searchCalls)
}

func TestFetchExhaustsAttempts(t *testing.T) {
	t.Parallel()

	b := &stubBrowser{failSearch: 99}
	f := testFetcher(t, b)

	res, attempts := f.Fetch(context.Background(), "1-2-AB01")

	assert.False(t, res.Success)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, res.Error, "search")
}

func TestFetchPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	// An order that simply is not on the portal stays gone; burning the
	// remaining attempts on it would only slow the batch down.
	b := &stubBrowser{failSearch: 99, searchErr: errors.New("no results for code")}
	f := testFetcher(t, b)

	res, attempts := f.Fetch(context.Background(), "1-2-AB01")

	assert.False(t, res.Success)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, b.searchCalls)
}

func TestFetchNoPartialCommit(t *testing.T) {
	t.Parallel()

	// The report downloads, then the attachment popup fails: nothing may
	// land in the code's document directory.
	b := &stubBrowser{report: []byte("pdf"), failList: true}
	f := testFetcher(t, b)

	res, _ := f.Fetch(context.Background(), "1-2-AB01")

	assert.False(t, res.Success)
	assert.NoDirExists(t, filepath.Join(f.opts.DownloadDir, "1-2-AB01"))

	// Staging dirs are cleaned up too.
	entries, err := os.ReadDir(f.opts.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &stubBrowser{report: []byte("pdf")}
	f := testFetcher(t, b)

	res, attempts := f.Fetch(ctx, "1-2-AB01")
	assert.False(t, res.Success)
	assert.Equal(t, 0, b.searchCalls, "no attempt starts on a dead context")
	assert.Equal(t, 0, attempts)
	assert.Contains(t, res.Error, "context canceled", "the checkpoint records the interruption, not a generic failure")
}
