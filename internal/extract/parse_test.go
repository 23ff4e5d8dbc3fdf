package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gastoabierto/ordenes-cli/internal/model"
)

func TestCleanJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"legible":true}`, `{"legible":true}`},
		{"json fence", "```json\n{\"legible\":true}\n```", `{"legible":true}`},
		{"bare fence", "```\n{\"legible\":true}\n```", `{"legible":true}`},
		{"surrounding prose", "Aqui esta el resultado: {\"legible\":true} espero que sirva", `{"legible":true}`},
		{"whitespace", "  \n{\"legible\":true}\n ", `{"legible":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, cleanJSON(tt.in))
		})
	}
}

func TestParseResponseFencedPayload(t *testing.T) {
	t.Parallel()

	text := "```json\n{\"items\":[{\"descripcion\":\"toner\",\"cantidad\":2,\"precio_unitario\":30}],\"legible\":true}\n```"
	got := parseResponse("doc.pdf", text)

	require.True(t, got.Success)
	assert.InDelta(t, 60.0, got.TotalAmount, 0.001)
}

func TestParseResponseNormalizesDescriptions(t *testing.T) {
	t.Parallel()

	// "papelería" with a decomposed i + combining acute accent.
	decomposed := "papelería"
	text := `{"items":[{"descripcion":"  ` + decomposed + `  ","cantidad":1,"precio_unitario":1}],"legible":true}`

	got := parseResponse("doc.pdf", text)
	require.True(t, got.Success)
	assert.Equal(t, "papelería", got.Items[0].Description)
}

func TestParseResponseLegibleFalseWithoutReason(t *testing.T) {
	t.Parallel()

	got := parseResponse("doc.pdf", `{"items":[],"legible":false}`)
	assert.Equal(t, model.FailureIllegible, got.Failure)
	assert.Equal(t, "document not legible", got.Error)
}
