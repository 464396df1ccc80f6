package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"```{\"a\":1}```":         `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"```JSON\n{}\n```\n":      `{}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, StripFences(in), in)
	}
}

func TestParseResponse_Valid(t *testing.T) {
	raw := "```json\n" + `{
		"uuid": "6F6E1A1B-1C2D-4E5F-8A9B-0C1D2E3F4A5B",
		"rfc_emisor": "AAA010101AAA",
		"rfc_receptor": null,
		"total": 116.00,
		"subtotal": 100,
		"iva": 16,
		"fecha": "2024-03-15",
		"forma_pago": "tarjeta_credito",
		"establecimiento": "ABARROTES LA ESPERANZA",
		"conceptos": [{"descripcion": "Refresco", "cantidad": 2, "importe": 50}]
	}` + "\n```"

	f, body, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Nil(t, f.RFCReceptor)
	assert.Equal(t, "116", f.Total.Decimal.String())

	cands := f.Candidates()
	byField := map[entity.Field]entity.FieldCandidate{}
	for _, c := range cands {
		assert.Equal(t, entity.MethodAI, c.Method)
		assert.Equal(t, entity.PriorityAI, c.Priority)
		byField[c.Field] = c
	}
	assert.Len(t, cands, 8)
	assert.Equal(t, "AAA010101AAA", byField[entity.FieldRFCEmisor].Value)
	assert.Equal(t, "tarjeta_credito", byField[entity.FieldFormaPago].Value)
	_, hasReceptor := byField[entity.FieldRFCReceptor]
	assert.False(t, hasReceptor)

	items := f.LineItems()
	require.Len(t, items, 1)
	assert.Equal(t, "Refresco", items[0].Descripcion)
	assert.Equal(t, "50.00", items[0].Importe.String())
	assert.False(t, items[0].ValorUnitario.Valid())
}

func TestParseResponse_FailsClosed(t *testing.T) {
	tests := map[string]string{
		"empty":              "",
		"not json":           "Sure! The total is 116.",
		"array":              `[{"total": 1}]`,
		"unknown field":      `{"total": 1, "merchant": "x"}`,
		"amount as string":   `{"total": "116.00"}`,
		"negative amount":    `{"total": -5}`,
		"short rfc":          `{"rfc_emisor": "ABC"}`,
		"bad date format":    `{"fecha": "15/03/2024"}`,
		"unknown payment":    `{"forma_pago": "cheque"}`,
		"two objects":        `{"total": 1}{"total": 2}`,
		"concepto extra key": `{"conceptos": [{"descripcion": "x", "sku": "1"}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseResponse(raw)
			require.Error(t, err)
			assert.True(t, common.IsKind(err, common.KindAIInvalidResponse), err.Error())
			assert.ErrorIs(t, err, common.ErrAIInvalidResponse)
		})
	}
}

func TestParseResponse_AllNullIsEmpty(t *testing.T) {
	f, _, err := ParseResponse(`{"uuid": null, "total": null, "forma_pago": null}`)
	require.NoError(t, err)
	assert.Empty(t, f.Candidates())
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]any{"a": map[string]any{"type": "integer"}},
	}
	assert.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"a": 1}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`{"b": 1}`)))
	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`nope`)))
}

func TestUserPrompt_Truncates(t *testing.T) {
	p := UserPrompt("ñññññññññññ", 3)
	assert.Contains(t, p, "ñññ\n…(truncated)")
	assert.NotContains(t, UserPrompt("short", 10), "truncated")
}

func TestSystemPrompt_IsFixed(t *testing.T) {
	assert.Equal(t, SystemPrompt(), SystemPrompt())
	assert.Contains(t, SystemPrompt(), "tarjeta_debito")
}
