package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gastoabierto/ordenes-cli/internal/model"
	"github.com/gastoabierto/ordenes-cli/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func writeDoc(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644))
	return path
}

// fastAdapter uses a high per-minute quota so tests never block on pacing.
func fastAdapter(client anthropic.Client) *Adapter {
	return New(client, "claude-test", 1024, 600000)
}

func respondWith(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Text: text, StopReason: "end_turn"}
}

func TestExtractSuccess(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(respondWith(
		`{"items":[{"descripcion":"resma papel","cantidad":10,"precio_unitario":4.5}],"legible":true,"error":""}`,
	), nil)

	path := writeDoc(t, "factura.pdf")
	got := fastAdapter(client).Extract(context.Background(), path)

	require.True(t, got.Success)
	assert.Equal(t, "factura.pdf", got.DocumentID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "resma papel", got.Items[0].Description)
	assert.InDelta(t, 45.0, got.TotalAmount, 0.001)
	client.AssertExpectations(t)
}

func TestExtractSelfReportedTotalWins(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(respondWith(
		`{"items":[{"descripcion":"x","cantidad":1,"precio_unitario":10}],"total_orden":12.5,"legible":true}`,
	), nil)

	got := fastAdapter(client).Extract(context.Background(), writeDoc(t, "a.pdf"))

	require.True(t, got.Success)
	assert.InDelta(t, 12.5, got.TotalAmount, 0.001)
}

func TestExtractIllegible(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(respondWith(
		`{"items":[],"legible":false,"error":"documento escaneado ilegible"}`,
	), nil)

	got := fastAdapter(client).Extract(context.Background(), writeDoc(t, "a.pdf"))

	assert.False(t, got.Success)
	assert.Equal(t, model.FailureIllegible, got.Failure)
	assert.Equal(t, "documento escaneado ilegible", got.Error)
}

func TestExtractMalformedResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"not json", "lo siento, no puedo procesar esto"},
		{"missing legible field", `{"items":[]}`},
		{"truncated", `{"items":[{"descripcion":"x"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := new(mockClient)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(respondWith(tt.text), nil)

			got := fastAdapter(client).Extract(context.Background(), writeDoc(t, "a.pdf"))

			assert.False(t, got.Success)
			assert.Equal(t, model.FailureMalformed, got.Failure)
		})
	}
}

func TestExtractRequestError(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	got := fastAdapter(client).Extract(context.Background(), writeDoc(t, "a.pdf"))

	assert.False(t, got.Success)
	assert.Equal(t, model.FailureRequest, got.Failure)
	assert.Contains(t, got.Error, "overloaded")
}

func TestExtractUnreadableFile(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	got := fastAdapter(client).Extract(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	assert.Equal(t, model.FailureRequest, got.Failure)
	client.AssertNotCalled(t, "CreateMessage")
}

func TestProcessManyPreservesOrder(t *testing.T) {
	t.Parallel()

	client := new(mockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(respondWith(
		`{"items":[],"legible":false,"error":"x"}`,
	), nil)

	dir := t.TempDir()
	paths := make([]string, 3)
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("doc"), 0o644))
	}

	results := fastAdapter(client).ProcessMany(context.Background(), paths)

	require.Len(t, results, 3)
	assert.Equal(t, "a.pdf", results[0].DocumentID)
	assert.Equal(t, "b.pdf", results[1].DocumentID)
	assert.Equal(t, "c.pdf", results[2].DocumentID)
}
