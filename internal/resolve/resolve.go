// Package resolve computes the set of order codes a run should process,
// from the identifier source and the two progress stores.
package resolve

import (
	"github.com/rotisserie/eris"

	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/internal/progress"
)

// Mode selects which codes a run considers.
type Mode string

const (
	// ModeIncremental processes codes this session has not yet touched:
	// not in the registry, not completed and not failed in this session.
	ModeIncremental Mode = "incremental"
	// ModeFresh ignores this session's completed set but still excludes the
	// all-time registry; proven completions are never refetched.
	ModeFresh Mode = "fresh"
	// ModeRetry processes only codes that failed in this session with
	// attempts still under the retry cap.
	ModeRetry Mode = "retry"
)

// ParseMode validates a mode string from the CLI.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIncremental, ModeFresh, ModeRetry:
		return Mode(s), nil
	case "":
		return ModeIncremental, nil
	default:
		return "", eris.Errorf("resolve: unknown mode %q (want incremental, fresh or retry)", s)
	}
}

// Request describes one resolution.
type Request struct {
	Mode Mode
	// SampleSize, when > 0, truncates the resolved set to its first N codes.
	SampleSize int
	// MaxAttempts bounds retry-mode selection: codes whose cumulative
	// attempts reached this cap are permanently excluded from automatic
	// retry.
	MaxAttempts int
}

// Resolve returns the codes to process this run, preserving the relative
// order of all so output stays deterministic across runs sharing the same
// input. Structurally invalid codes are silently dropped; validation is a
// filter, not a gate. Resolve never mutates its inputs: called twice with
// the same stores it returns the same sequence.
func Resolve(all []string, reg *progress.Registry, cp *progress.Checkpoint, req Request) []string {
	out := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))

	for _, code := range all {
		if !model.ValidCode(code) {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		switch req.Mode {
		case ModeRetry:
			rec, failed := cp.Failure(code)
			if !failed {
				continue
			}
			if req.MaxAttempts > 0 && rec.Attempts >= req.MaxAttempts {
				continue
			}
		case ModeFresh:
			if reg.Contains(code) {
				continue
			}
		default: // incremental
			if reg.Contains(code) || cp.Processed(code) {
				continue
			}
			// Failed codes are retry mode's territory; the default mode
			// never hammers a code the session already gave up on.
			if _, failed := cp.Failure(code); failed {
				continue
			}
		}

		out = append(out, code)
		if req.SampleSize > 0 && len(out) >= req.SampleSize {
			break
		}
	}

	return out
}
