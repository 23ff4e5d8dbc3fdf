// Package schedule implements the multi-run automated mode: the unfinished
// work set is split into fixed-size batch files, and each scheduled
// invocation processes exactly one pending batch. Batch files are plain
// JSON so an operator can inspect or requeue them by moving files around.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	pendingDir   = "pending"
	processedDir = "processed"
	failedDir    = "failed"
)

// Batch is one unit of scheduled work.
type Batch struct {
	ID        string    `json:"id"`
	Codes     []string  `json:"codes"`
	CreatedAt time.Time `json:"created_at"`
	// Error is set when the batch lands in failed/.
	Error string `json:"error,omitempty"`

	fileName string
}

// Queue manages the three batch directories under root.
type Queue struct {
	root string
}

// NewQueue creates a Queue rooted at dir, creating the subdirectories.
func NewQueue(dir string) (*Queue, error) {
	for _, sub := range []string{pendingDir, processedDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, eris.Wrapf(err, "schedule: create %s", sub)
		}
	}
	return &Queue{root: dir}, nil
}

// Init splits codes into pending batch files of at most size codes each and
// returns the number of batches written. Existing pending batches are left
// in place; Init only appends new ones.
func (q *Queue) Init(codes []string, size int) (int, error) {
	if size <= 0 {
		size = 50
	}

	seq := q.nextSequence()
	written := 0
	for start := 0; start < len(codes); start += size {
		end := start + size
		if end > len(codes) {
			end = len(codes)
		}

		b := Batch{
			ID:        fmt.Sprintf("batch-%04d", seq),
			Codes:     append([]string(nil), codes[start:end]...),
			CreatedAt: time.Now().UTC(),
		}
		path := filepath.Join(q.root, pendingDir, b.ID+".json")
		if err := writeBatch(path, b); err != nil {
			return written, err
		}
		seq++
		written++
	}

	zap.L().Info("schedule: batches queued",
		zap.Int("batches", written),
		zap.Int("codes", len(codes)),
	)
	return written, nil
}

// Next returns the lexically first readable pending batch, or nil when the
// queue is drained. A batch file that no longer parses (an operator edit
// gone wrong, a torn write) must not stall the whole schedule: it is
// quarantined into failed/ and the scan moves on.
func (q *Queue) Next() (*Batch, error) {
	names, err := q.list(pendingDir)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(q.root, pendingDir, name))
		if err != nil {
			return nil, eris.Wrapf(err, "schedule: read batch %s", name)
		}

		var b Batch
		if err := json.Unmarshal(data, &b); err != nil {
			zap.L().Warn("schedule: corrupt batch file, quarantining",
				zap.String("file", name),
				zap.Error(err),
			)
			src := filepath.Join(q.root, pendingDir, name)
			dst := filepath.Join(q.root, failedDir, name)
			if err := os.Rename(src, dst); err != nil {
				return nil, eris.Wrapf(err, "schedule: quarantine batch %s", name)
			}
			continue
		}
		b.fileName = name
		return &b, nil
	}
	return nil, nil
}

// MarkProcessed moves the batch from pending/ to processed/.
func (q *Queue) MarkProcessed(b *Batch) error {
	return q.move(b, processedDir)
}

// MarkFailed annotates the batch with the error and moves it to failed/.
func (q *Queue) MarkFailed(b *Batch, errMsg string) error {
	b.Error = errMsg
	return q.move(b, failedDir)
}

func (q *Queue) move(b *Batch, dest string) error {
	if b.fileName == "" {
		return eris.Errorf("schedule: batch %s not loaded from queue", b.ID)
	}
	if err := writeBatch(filepath.Join(q.root, dest, b.fileName), *b); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(q.root, pendingDir, b.fileName)); err != nil {
		return eris.Wrapf(err, "schedule: remove pending %s", b.fileName)
	}
	return nil
}

// Counts returns (pending, processed, failed) batch counts.
func (q *Queue) Counts() (int, int, int, error) {
	var out [3]int
	for i, sub := range []string{pendingDir, processedDir, failedDir} {
		names, err := q.list(sub)
		if err != nil {
			return 0, 0, 0, err
		}
		out[i] = len(names)
	}
	return out[0], out[1], out[2], nil
}

func (q *Queue) list(sub string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(q.root, sub))
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: list %s", sub)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// nextSequence finds the first unused batch number across all three
// directories so re-running init never reuses an ID.
func (q *Queue) nextSequence() int {
	max := 0
	for _, sub := range []string{pendingDir, processedDir, failedDir} {
		names, err := q.list(sub)
		if err != nil {
			continue
		}
		for _, name := range names {
			var n int
			if _, err := fmt.Sscanf(name, "batch-%d.json", &n); err == nil && n > max {
				max = n
			}
		}
	}
	return max + 1
}

func writeBatch(path string, b Batch) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "schedule: marshal batch %s", b.ID)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "schedule: write batch %s", b.ID)
	}
	return nil
}
