package model

import "time"

// RunStatus tracks the lifecycle of a run in the archive.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is one invocation of the batch coordinator, as recorded in the run
// archive. The JSON progress stores remain the source of truth for
// per-code state; the archive exists for inspection and history.
type Run struct {
	ID        string      `json:"id"`
	Mode      string      `json:"mode"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary aggregates the outcome of one run.
type RunSummary struct {
	Resolved   int   `json:"resolved"`
	Processed  int   `json:"processed"`
	Failed     int   `json:"failed"`
	Documents  int   `json:"documents"`
	DurationMS int64 `json:"duration_ms"`
}

// ManifestEntry is the per-code line of the run manifest.
type ManifestEntry struct {
	Code       string `json:"code"`
	Success    bool   `json:"success"`
	Documents  int    `json:"documents"`
	Items      int    `json:"items"`
	Label      Label  `json:"label,omitempty"`
	Error      string `json:"error,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// Manifest is the final per-run report written alongside the progress stores.
type Manifest struct {
	RunID      string          `json:"run_id"`
	Mode       string          `json:"mode"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Processed  int             `json:"processed"`
	Failed     int             `json:"failed"`
	Entries    []ManifestEntry `json:"entries"`
}
