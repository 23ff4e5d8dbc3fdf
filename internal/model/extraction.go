package model

// LineItem is a single purchased good or service as stated on an order
// document. JSON keys match the inference service's response schema.
type LineItem struct {
	Description string  `json:"descripcion"`
	Quantity    float64 `json:"cantidad"`
	UnitPrice   float64 `json:"precio_unitario"`
}

// Amount returns the line total.
func (li LineItem) Amount() float64 {
	return li.Quantity * li.UnitPrice
}

// FailureKind distinguishes why a document extraction failed. Illegible and
// malformed responses are content-level evidence, never retried.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureIllegible FailureKind = "illegible"
	FailureMalformed FailureKind = "malformed_response"
	FailureRequest   FailureKind = "request_error"
)

// ExtractionResult is the normalized outcome of extracting one document.
type ExtractionResult struct {
	DocumentID  string      `json:"document_id"`
	Success     bool        `json:"success"`
	Items       []LineItem  `json:"items,omitempty"`
	TotalAmount float64     `json:"total_amount,omitempty"`
	Failure     FailureKind `json:"failure,omitempty"`
	Error       string      `json:"error,omitempty"`
}
