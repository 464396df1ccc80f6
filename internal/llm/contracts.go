package llm

import (
	"context"

	"github.com/shopspring/decimal"
)

// MappedFields is the only shape a model answer may take. Every key is
// optional and nullable; keys outside this set make the answer invalid.
type MappedFields struct {
	UUID            *string             `json:"uuid"`
	RFCEmisor       *string             `json:"rfc_emisor"`
	RFCReceptor     *string             `json:"rfc_receptor"`
	Total           decimal.NullDecimal `json:"total"`
	Subtotal        decimal.NullDecimal `json:"subtotal"`
	IVA             decimal.NullDecimal `json:"iva"`
	Fecha           *string             `json:"fecha"`               // YYYY-MM-DD
	FormaPago       *string             `json:"forma_pago"`          // canonical payment method
	Establecimiento *string             `json:"establecimiento"`     // issuer trade name
	Conceptos       []MappedConcepto    `json:"conceptos,omitempty"` // line items, when legible
}

// MappedConcepto is one line item as read by the model.
type MappedConcepto struct {
	Descripcion   string              `json:"descripcion"`
	Cantidad      decimal.NullDecimal `json:"cantidad"`
	ValorUnitario decimal.NullDecimal `json:"valor_unitario"`
	Importe       decimal.NullDecimal `json:"importe"`
}

// Request is what a backend sends for one document.
type Request struct {
	System string
	User   string
	Schema map[string]any
}

// Model is a generative backend. Generate returns the raw text of the first
// answer. Implementations classify their own failures: quota exhaustion as
// AI_QUOTA_EXCEEDED, retryable network trouble wrapped with common.Transient,
// anything else as AI_UNAVAILABLE. Implementations must be safe for
// concurrent use.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}
