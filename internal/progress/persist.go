// Package progress holds the two durable progress stores: the all-time
// registry of ever-completed order codes and the per-session checkpoint.
// Both are human-inspectable JSON files. Mutation goes through transition
// methods; persistence is an explicit Flush, never a side effect of mutation.
package progress

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// loadJSON reads path into v. Returns (false, nil) when the file does not
// exist. A corrupt file is logged and treated as absent so a damaged store
// never aborts a run; the caller falls back to an empty default.
func loadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "progress: read %s", path)
	}

	if err := json.Unmarshal(data, v); err != nil {
		zap.L().Warn("progress: store file corrupt, falling back to empty default",
			zap.String("path", path),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

// writeJSONAtomic marshals v and replaces path via a same-directory temp
// file and rename, so a crash mid-write never leaves a torn store.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "progress: mkdir for %s", path)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "progress: marshal %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrapf(err, "progress: create temp for %s", path)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: write temp for %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: close temp for %s", path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(err, "progress: rename %s", path)
	}
	return nil
}
