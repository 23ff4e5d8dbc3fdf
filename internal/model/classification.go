package model

import "time"

// Label is the consensus classification of an order code.
type Label string

const (
	LabelOverpriced       Label = "OVERPRICED"
	LabelNormal           Label = "NORMAL"
	LabelInsufficientData Label = "INSUFFICIENT_DATA"
)

// Confidence grades how strongly the per-document extractions corroborate
// the label.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Classification is the per-code verdict derived from comparing all document
// extractions for one order. Written once per code per run; a reprocessing
// run overwrites the whole record.
type Classification struct {
	Code                string     `json:"code"`
	Label               Label      `json:"label"`
	Confidence          Confidence `json:"confidence"`
	Items               []LineItem `json:"items"`
	TotalAmount         float64    `json:"total_amount"`
	DocumentsConsidered int        `json:"documents_considered"`
	ProcessedAt         time.Time  `json:"processed_at"`
}
