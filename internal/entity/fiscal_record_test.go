package entity

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

func TestMoney_JSON(t *testing.T) {
	m := NewMoney(decimal.NewFromInt(116))
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "116.00", string(b))

	b, err = json.Marshal(Money{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	var back Money
	require.NoError(t, json.Unmarshal([]byte(`"4139.191"`), &back))
	assert.Equal(t, "4139.19", back.String())
	require.NoError(t, json.Unmarshal([]byte(`null`), &back))
	assert.False(t, back.Valid())
	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &back))
}

func TestFiscalRecord_MarshalIsStable(t *testing.T) {
	rec := FiscalRecord{
		RFCEmisor: StringPtr("SEM950215S98"),
		Total:     NewMoney(decimal.RequireFromString("4139.19")),
		FieldProvenance: map[Field]Method{
			FieldTotal:     MethodPattern,
			FieldRFCEmisor: MethodPattern,
			FieldSubtotal:  MethodDerived,
		},
		DocumentKind:      constants.IMAGE,
		AcquisitionMethod: AcquiredFromOCR,
	}
	a, err := json.Marshal(rec)
	require.NoError(t, err)
	b, err := json.Marshal(rec.Clone())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.Contains(t, string(a), `"total":4139.19`)
	assert.Contains(t, string(a), `"uuid":null`)
	assert.Contains(t, string(a), `"fieldProvenance":{"rfcEmisor":"pattern","subtotal":"derived","total":"pattern"}`)
}

func TestFiscalRecord_CloneIsDeep(t *testing.T) {
	rec := FiscalRecord{
		UUID:            StringPtr("6F1E6B2C-3C0B-4D4E-9B7A-2C1F0E9D8A7B"),
		FieldProvenance: map[Field]Method{FieldUUID: MethodXMLAttr},
		Warnings:        []string{"a"},
	}
	cp := rec.Clone()
	*cp.UUID = "changed"
	cp.FieldProvenance[FieldUUID] = MethodAI
	cp.Warnings[0] = "b"

	assert.Equal(t, "6F1E6B2C-3C0B-4D4E-9B7A-2C1F0E9D8A7B", *rec.UUID)
	assert.Equal(t, MethodXMLAttr, rec.FieldProvenance[FieldUUID])
	assert.Equal(t, "a", rec.Warnings[0])
}

func TestRecordValueAndResolvedCount(t *testing.T) {
	rec := FiscalRecord{
		RFCEmisor: StringPtr("SEM950215S98"),
		Total:     NewMoney(decimal.NewFromInt(116)),
	}
	assert.Equal(t, "116.00", rec.Value(FieldTotal))
	assert.Equal(t, "", rec.Value(FieldIVA))
	assert.Equal(t, 2, rec.ResolvedCount())
}

func TestNewRawDocument_DeterministicID(t *testing.T) {
	a := NewRawDocument([]byte("same"), "image/png", "a.png")
	b := NewRawDocument([]byte("same"), "", "b.png")
	c := NewRawDocument([]byte("other"), "image/png", "a.png")
	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}
