package entity

// Field is a target field of a FiscalRecord, named as in its JSON form.
type Field string

const (
	FieldUUID            Field = "uuid"
	FieldRFCEmisor       Field = "rfcEmisor"
	FieldRFCReceptor     Field = "rfcReceptor"
	FieldTotal           Field = "total"
	FieldSubtotal        Field = "subtotal"
	FieldIVA             Field = "iva"
	FieldFecha           Field = "fecha"
	FieldFormaPago       Field = "formaPago"
	FieldEstablecimiento Field = "establecimiento"
	FieldConceptos       Field = "conceptos"
)

// ScalarFields lists the single-valued fields in assembly order.
var ScalarFields = []Field{
	FieldUUID,
	FieldRFCEmisor,
	FieldRFCReceptor,
	FieldTotal,
	FieldSubtotal,
	FieldIVA,
	FieldFecha,
	FieldFormaPago,
	FieldEstablecimiento,
}

// KeyFields drive confidence coverage.
var KeyFields = []Field{FieldUUID, FieldRFCEmisor, FieldRFCReceptor, FieldTotal, FieldFecha}

// Method is the stage that produced a field value.
type Method string

const (
	MethodXMLAttr Method = "xml-attr"
	MethodPattern Method = "pattern"
	MethodAI      Method = "ai"
	MethodDerived Method = "derived" // back-computed during reconciliation
)

// Candidate priorities. Higher wins.
const (
	PriorityXMLAttr  = 100
	PrioritySATURL   = 80
	PriorityLabeled  = 60
	PriorityGeneric  = 40
	PriorityFallback = 30
	PriorityAI       = 20
)

// FieldCandidate is one strategy's proposal for a field.
type FieldCandidate struct {
	Field         Field  `json:"field"`
	Value         string `json:"value"`
	Method        Method `json:"method"`
	Priority      int    `json:"priority"`
	SourceSnippet string `json:"source_snippet,omitempty"`
	Strategy      string `json:"strategy,omitempty"`
}
