package entity

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// Concepto is one line item of a fiscal document.
type Concepto struct {
	Descripcion   string          `json:"descripcion"`
	Cantidad      decimal.Decimal `json:"cantidad"`
	ValorUnitario Money           `json:"valorUnitario"`
	Importe       Money           `json:"importe"`
	ClaveProdServ string          `json:"claveProdServ,omitempty"`
}

// FiscalRecord is the assembled output of a run. Nil pointers and invalid
// Money are unknown fields. Records are never mutated after assembly; use
// Clone before handing one to code that might.
type FiscalRecord struct {
	UUID              *string                `json:"uuid"`
	RFCEmisor         *string                `json:"rfcEmisor"`
	RFCReceptor       *string                `json:"rfcReceptor"`
	Total             Money                  `json:"total"`
	Subtotal          Money                  `json:"subtotal"`
	IVA               Money                  `json:"iva"`
	Fecha             *string                `json:"fecha"`
	FormaPago         *string                `json:"formaPago"`
	Establecimiento   *string                `json:"establecimiento"`
	Conceptos         []Concepto             `json:"conceptos"`
	FieldProvenance   map[Field]Method       `json:"fieldProvenance"`
	OverallConfidence float64                `json:"overallConfidence"`
	DocumentKind      constants.DocumentKind `json:"documentKind"`
	AcquisitionMethod AcquisitionMethod      `json:"acquisitionMethod"`
	PromptVersion     string                 `json:"promptVersion,omitempty"`
	Warnings          []string               `json:"warnings"`
}

// Clone returns a deep copy.
func (r FiscalRecord) Clone() FiscalRecord {
	out := r
	out.UUID = clonePtr(r.UUID)
	out.RFCEmisor = clonePtr(r.RFCEmisor)
	out.RFCReceptor = clonePtr(r.RFCReceptor)
	out.Fecha = clonePtr(r.Fecha)
	out.FormaPago = clonePtr(r.FormaPago)
	out.Establecimiento = clonePtr(r.Establecimiento)
	out.Conceptos = slices.Clone(r.Conceptos)
	out.FieldProvenance = maps.Clone(r.FieldProvenance)
	out.Warnings = slices.Clone(r.Warnings)
	return out
}

// Value returns the string form of a scalar field, or "" when unknown.
func (r FiscalRecord) Value(f Field) string {
	switch f {
	case FieldUUID:
		return deref(r.UUID)
	case FieldRFCEmisor:
		return deref(r.RFCEmisor)
	case FieldRFCReceptor:
		return deref(r.RFCReceptor)
	case FieldTotal:
		return r.Total.String()
	case FieldSubtotal:
		return r.Subtotal.String()
	case FieldIVA:
		return r.IVA.String()
	case FieldFecha:
		return deref(r.Fecha)
	case FieldFormaPago:
		return deref(r.FormaPago)
	case FieldEstablecimiento:
		return deref(r.Establecimiento)
	}
	return ""
}

// ResolvedCount counts the scalar fields that carry a value.
func (r FiscalRecord) ResolvedCount() int {
	n := 0
	for _, f := range ScalarFields {
		if r.Value(f) != "" {
			n++
		}
	}
	return n
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
