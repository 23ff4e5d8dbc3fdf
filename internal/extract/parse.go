package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

// responsePayload is the strict expected response shape. Legible is a
// pointer so a response missing the field is detected as malformed rather
// than silently read as false.
type responsePayload struct {
	Items      []model.LineItem `json:"items"`
	TotalOrden *float64         `json:"total_orden"`
	Legible    *bool            `json:"legible"`
	Error      string           `json:"error"`
}

// parseResponse validates the raw response text against the expected JSON
// shape. Illegibility and malformed responses are distinct typed failures:
// the first is the service stating the document cannot be read, the second
// is the service not honoring the contract.
func parseResponse(docID, text string) model.ExtractionResult {
	var payload responsePayload
	if err := json.Unmarshal([]byte(cleanJSON(text)), &payload); err != nil || payload.Legible == nil {
		return model.ExtractionResult{
			DocumentID: docID,
			Failure:    model.FailureMalformed,
			Error:      "response does not match expected shape",
		}
	}

	if !*payload.Legible {
		reason := payload.Error
		if reason == "" {
			reason = "document not legible"
		}
		return model.ExtractionResult{
			DocumentID: docID,
			Failure:    model.FailureIllegible,
			Error:      reason,
		}
	}

	items := make([]model.LineItem, len(payload.Items))
	var total float64
	for i, it := range payload.Items {
		it.Description = normalizeDescription(it.Description)
		items[i] = it
		total += it.Amount()
	}
	if payload.TotalOrden != nil {
		total = *payload.TotalOrden
	}

	return model.ExtractionResult{
		DocumentID:  docID,
		Success:     true,
		Items:       items,
		TotalAmount: total,
	}
}

// normalizeDescription canonicalizes an item description so the consensus
// comparison is insensitive to Unicode composition differences between
// documents (the portal PDFs mix precomposed and decomposed accents).
func normalizeDescription(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// cleanJSON strips markdown fences and surrounding prose from a model
// response, leaving the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
