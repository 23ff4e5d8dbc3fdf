// Package model defines the domain types shared across the pipeline:
// order codes, fetch and extraction results, classifications, and run records.
package model

import "regexp"

// codePattern is the structural shape of a procurement order code:
// numeric segment, numeric segment, two letters, two digits.
// Example: 3506-434-SE25.
var codePattern = regexp.MustCompile(`^\d+-\d+-[A-Z]{2}\d{2}$`)

// ValidCode reports whether s is a structurally valid order code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// FetchResult is the outcome of one fetch pipeline for a single order code.
// Success with an empty DocumentPaths is a valid terminal state: the order
// exists but carries no attachments.
type FetchResult struct {
	Code          string   `json:"code"`
	Success       bool     `json:"success"`
	DocumentPaths []string `json:"document_paths,omitempty"`
	Error         string   `json:"error,omitempty"`
}
