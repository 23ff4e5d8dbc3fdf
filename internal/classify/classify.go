// Package classify reconciles the per-document extractions of one order
// code into a single classification with a confidence level.
package classify

import (
	"time"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

// DefaultAgreementThreshold is the fraction of successful extractions
// required for MEDIUM confidence when documents disagree. Policy value,
// configurable, no derived meaning beyond "most documents were readable".
const DefaultAgreementThreshold = 0.7

// Classify compares the extraction results of one order's documents and
// decides a label and confidence. It is deterministic: identical inputs in
// identical order always yield the same classification; only ProcessedAt is
// time-dependent.
//
// Decision rules:
//   - no successful extraction: INSUFFICIENT_DATA / LOW
//   - all successful extractions agree on exactly one line item:
//     OVERPRICED / HIGH (independent sources corroborating a single good)
//   - all agree on a multi-item list: NORMAL / HIGH
//   - disagreement: INSUFFICIENT_DATA, MEDIUM when the successful share
//     reaches threshold, LOW otherwise.
func Classify(code string, results []model.ExtractionResult, threshold float64) model.Classification {
	if threshold <= 0 {
		threshold = DefaultAgreementThreshold
	}

	cls := model.Classification{
		Code:        code,
		ProcessedAt: time.Now().UTC(),
	}

	var successful []model.ExtractionResult
	for _, r := range results {
		if r.Success {
			successful = append(successful, r)
		}
	}
	cls.DocumentsConsidered = len(successful)

	if len(successful) == 0 {
		cls.Label = model.LabelInsufficientData
		cls.Confidence = model.ConfidenceLow
		cls.Items = []model.LineItem{}
		return cls
	}

	// The first successful result is the reference item list; when all
	// results agree its choice is arbitrary by construction.
	reference := successful[0].Items
	agree := true
	for _, r := range successful[1:] {
		if !itemsEqual(reference, r.Items) {
			agree = false
			break
		}
	}

	if !agree {
		cls.Label = model.LabelInsufficientData
		if float64(len(successful))/float64(len(results)) >= threshold {
			cls.Confidence = model.ConfidenceMedium
		} else {
			cls.Confidence = model.ConfidenceLow
		}
		cls.Items = append([]model.LineItem{}, reference...)
		cls.TotalAmount = sumAmounts(reference)
		return cls
	}

	switch {
	case len(reference) == 0:
		// Legible documents agreeing on zero line items carry no evidence
		// to price-check.
		cls.Label = model.LabelInsufficientData
		cls.Confidence = model.ConfidenceLow
		cls.Items = []model.LineItem{}
		return cls
	case len(reference) == 1:
		cls.Label = model.LabelOverpriced
	default:
		cls.Label = model.LabelNormal
	}
	cls.Confidence = model.ConfidenceHigh
	cls.Items = append([]model.LineItem{}, reference...)
	// The total is always rederived from the agreed items. Per-document
	// self-reported totals can disagree even when the item data agrees.
	cls.TotalAmount = sumAmounts(reference)
	return cls
}

// itemsEqual requires exact structural equality: same items, same order,
// same field values.
func itemsEqual(a, b []model.LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sumAmounts(items []model.LineItem) float64 {
	var total float64
	for _, it := range items {
		total += it.Amount()
	}
	return total
}
