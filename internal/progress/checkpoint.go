package progress

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// FailureRecord is one failed order code in the session checkpoint.
// Attempts is cumulative across runs that resume the same session.
type FailureRecord struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Attempts  int       `json:"attempts"`
}

// checkpointFile is the persisted shape of the session checkpoint.
type checkpointFile struct {
	ProcessedCodes  []string                 `json:"processed_codes"`
	FailedCodes     map[string]FailureRecord `json:"failed_codes"`
	TotalProcessed  int                      `json:"total_processed"`
	TotalFailed     int                      `json:"total_failed"`
	LastProcessedAt time.Time                `json:"last_processed_at"`
}

// Checkpoint tracks one run's (or resumed session's) view of completed and
// failed order codes, independently of the all-time registry. Invariants:
// TotalProcessed == len(processed) and TotalFailed == len(failed); marking
// the same code twice never double-counts.
type Checkpoint struct {
	mu           sync.Mutex
	path         string
	processed    []string
	processedIdx map[string]struct{}
	failed       map[string]FailureRecord
	lastAt       time.Time
}

// LoadCheckpoint reads the checkpoint at path, or returns an empty one when
// the file is absent or corrupt.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	var f checkpointFile
	found, err := loadJSON(path, &f)
	if err != nil {
		return nil, err
	}

	c := &Checkpoint{
		path:         path,
		processedIdx: make(map[string]struct{}, len(f.ProcessedCodes)),
		failed:       make(map[string]FailureRecord, len(f.FailedCodes)),
	}
	if found {
		c.lastAt = f.LastProcessedAt
		for _, code := range f.ProcessedCodes {
			if _, dup := c.processedIdx[code]; dup {
				continue
			}
			c.processedIdx[code] = struct{}{}
			c.processed = append(c.processed, code)
		}
		for code, rec := range f.FailedCodes {
			c.failed[code] = rec
		}
		zap.L().Info("progress: loaded session checkpoint",
			zap.String("path", path),
			zap.Int("processed", len(c.processed)),
			zap.Int("failed", len(c.failed)),
		)
	}
	return c, nil
}

// MarkProcessed records a completed code. A code that previously failed in
// this session is removed from the failed map. Returns false (and changes
// nothing) if the code was already marked processed.
func (c *Checkpoint) MarkProcessed(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.processedIdx[code]; ok {
		return false
	}
	c.processedIdx[code] = struct{}{}
	c.processed = append(c.processed, code)
	delete(c.failed, code)
	c.lastAt = time.Now().UTC()
	return true
}

// MarkFailed records a failed code, adding attempts to any existing record
// in place rather than creating a duplicate entry.
func (c *Checkpoint) MarkFailed(code, errMsg string, attempts int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := c.failed[code]
	rec.Error = errMsg
	rec.Timestamp = time.Now().UTC()
	rec.Attempts += attempts
	c.failed[code] = rec
}

// Processed reports whether code completed in this session.
func (c *Checkpoint) Processed(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processedIdx[code]
	return ok
}

// Failure returns the failure record for code, if any.
func (c *Checkpoint) Failure(code string) (FailureRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.failed[code]
	return rec, ok
}

// Failures returns a copy of all failure records keyed by code.
func (c *Checkpoint) Failures() map[string]FailureRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]FailureRecord, len(c.failed))
	for code, rec := range c.failed {
		out[code] = rec
	}
	return out
}

// Counts returns (totalProcessed, totalFailed).
func (c *Checkpoint) Counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processed), len(c.failed)
}

// Flush writes the checkpoint to its backing file.
func (c *Checkpoint) Flush() error {
	c.mu.Lock()
	f := checkpointFile{
		ProcessedCodes:  append([]string(nil), c.processed...),
		FailedCodes:     make(map[string]FailureRecord, len(c.failed)),
		TotalProcessed:  len(c.processed),
		TotalFailed:     len(c.failed),
		LastProcessedAt: c.lastAt,
	}
	for code, rec := range c.failed {
		f.FailedCodes[code] = rec
	}
	c.mu.Unlock()

	return writeJSONAtomic(c.path, f)
}
