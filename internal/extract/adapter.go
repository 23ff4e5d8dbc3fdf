// Package extract sends fetched order documents to the inference service
// and normalizes responses into typed extraction results. Calls are paced
// by a single shared limiter derived from the service's per-minute quota;
// the pacing is global across all concurrent pipelines, not per document.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/pkg/anthropic"
)

const extractSystemPrompt = `Eres un extractor de datos de ordenes de compra publicas. Recibes un documento adjunto de una orden de compra y devuelves exclusivamente un objeto JSON con esta forma exacta:
{"items": [{"descripcion": "...", "cantidad": 0, "precio_unitario": 0}], "total_orden": 0, "legible": true, "error": ""}
Si el documento no es legible o no es una orden de compra, responde {"items": [], "legible": false, "error": "<motivo>"}. No agregues texto fuera del JSON.`

const extractUserPrompt = `Extrae los items de compra del documento adjunto.`

// Adapter turns documents into ExtractionResults.
type Adapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// New creates an Adapter. requestsPerMinute is the inference service's
// published quota; the limiter spaces calls evenly across the minute with
// no burst so the quota holds regardless of caller concurrency.
func New(client anthropic.Client, modelID string, maxTokens, requestsPerMinute int) *Adapter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 10
	}
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Adapter{
		client:    client,
		model:     modelID,
		maxTokens: int64(maxTokens),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

// Extract processes one document. Failures are data, not errors: an
// illegible document, a malformed response, or a failed request all come
// back as a typed unsuccessful result.
func (a *Adapter) Extract(ctx context.Context, path string) model.ExtractionResult {
	docID := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return model.ExtractionResult{
			DocumentID: docID,
			Failure:    model.FailureRequest,
			Error:      "read document: " + err.Error(),
		}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return model.ExtractionResult{
			DocumentID: docID,
			Failure:    model.FailureRequest,
			Error:      "pacing wait: " + err.Error(),
		}
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    extractSystemPrompt,
		Prompt:    extractUserPrompt,
		Document:  data,
	})
	if err != nil {
		zap.L().Warn("extract: inference request failed",
			zap.String("document", docID),
			zap.Error(err),
		)
		return model.ExtractionResult{
			DocumentID: docID,
			Failure:    model.FailureRequest,
			Error:      err.Error(),
		}
	}
	resp.Usage.LogUsage(a.model, "extract")

	return parseResponse(docID, resp.Text)
}

// ProcessMany extracts each document strictly sequentially, preserving
// input order in the output. The shared limiter paces consecutive calls.
func (a *Adapter) ProcessMany(ctx context.Context, paths []string) []model.ExtractionResult {
	results := make([]model.ExtractionResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, a.Extract(ctx, path))
	}
	return results
}
