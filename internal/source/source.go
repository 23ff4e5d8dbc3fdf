// Package source reads the identifier input file and produces the full,
// deduplicated, structurally-validated list of order codes to consider.
package source

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

// Options configures input parsing.
type Options struct {
	// CodeColumn is the header name of the identifier column, matched
	// case-insensitively. Other columns are opaque pass-through.
	CodeColumn string
}

// Load reads the tabular file at path and returns the order codes in input
// order, deduplicated and filtered to structurally valid codes. The format
// is chosen by extension: .xlsx uses the spreadsheet reader, everything
// else is parsed as CSV.
func Load(path string, opts Options) ([]string, error) {
	if opts.CodeColumn == "" {
		opts.CodeColumn = "codigo"
	}

	var rows [][]string
	var err error
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err = readXLSX(path)
	} else {
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("source: %s has no header row", path)
	}

	col, err := findCodeColumn(rows[0], opts.CodeColumn)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(rows)-1)
	seen := make(map[string]struct{}, len(rows)-1)
	dropped := 0
	for _, row := range rows[1:] {
		// Malformed rows are tolerated: a missing trailing column resolves
		// to an empty value, not an error.
		var raw string
		if col < len(row) {
			raw = strings.TrimSpace(row[col])
		}
		if raw == "" {
			continue
		}
		if !model.ValidCode(raw) {
			dropped++
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, raw)
	}

	if dropped > 0 {
		zap.L().Debug("source: dropped structurally invalid codes",
			zap.String("path", path),
			zap.Int("dropped", dropped),
		)
	}
	zap.L().Info("source: loaded order codes",
		zap.String("path", path),
		zap.Int("codes", len(codes)),
	)
	return codes, nil
}

// findCodeColumn locates the identifier column in the header row.
func findCodeColumn(header []string, name string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, nil
		}
	}
	return 0, eris.Errorf("source: identifier column %q not found in header %v", name, header)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: open csv")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "source: read csv")
	}
	return rows, nil
}
