package fetch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// LocalBrowser serves the portal protocol from a pre-staged local mirror:
// a directory tree with one subdirectory per order code holding its
// documents. Used for offline runs and tests; the production browser driver
// plugs in behind the same Browser interface.
type LocalBrowser struct {
	root string
}

// NewLocalBrowser creates a LocalBrowser over the given mirror root.
func NewLocalBrowser(root string) *LocalBrowser {
	return &LocalBrowser{root: root}
}

func (l *LocalBrowser) codeDir(code string) string {
	return filepath.Join(l.root, code)
}

// Search fails when the mirror has no entry for the code, mirroring a
// portal search with no match.
func (l *LocalBrowser) Search(_ context.Context, code string) error {
	info, err := os.Stat(l.codeDir(code))
	if err != nil || !info.IsDir() {
		return eris.Errorf("local: no match for %s", code)
	}
	return nil
}

func (l *LocalBrowser) OpenDetail(context.Context, string) error { return nil }

// DownloadReport serves a file named report.pdf when present.
func (l *LocalBrowser) DownloadReport(_ context.Context, code, dir string) (string, error) {
	src := filepath.Join(l.codeDir(code), "report.pdf")
	if _, err := os.Stat(src); err != nil {
		return "", nil // no direct report on this order
	}
	return copyInto(src, dir)
}

// ListAttachments lists every document except the direct report.
func (l *LocalBrowser) ListAttachments(_ context.Context, code string) ([]Attachment, error) {
	entries, err := os.ReadDir(l.codeDir(code))
	if err != nil {
		return nil, eris.Wrapf(err, "local: list %s", code)
	}

	var atts []Attachment
	for _, e := range entries {
		if e.IsDir() || e.Name() == "report.pdf" {
			continue
		}
		atts = append(atts, Attachment{ID: e.Name(), Name: e.Name()})
	}
	sort.Slice(atts, func(i, j int) bool { return atts[i].Name < atts[j].Name })
	return atts, nil
}

func (l *LocalBrowser) DownloadAttachment(_ context.Context, code string, att Attachment, dir string) (string, error) {
	return copyInto(filepath.Join(l.codeDir(code), att.Name), dir)
}

func copyInto(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", eris.Wrapf(err, "local: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	dst := filepath.Join(dir, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return "", eris.Wrapf(err, "local: create %s", dst)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, in); err != nil {
		return "", eris.Wrapf(err, "local: copy %s", src)
	}
	return dst, nil
}
