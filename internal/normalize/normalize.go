// Package normalize canonicalizes candidate values, picks one survivor per
// field and reconciles the amounts.
package normalize

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// Candidates are per-field lists in precedence order.
type Candidates map[entity.Field][]entity.FieldCandidate

// Add appends c to its field's list.
func (c Candidates) Add(cands ...entity.FieldCandidate) {
	for _, cand := range cands {
		c[cand.Field] = append(c[cand.Field], cand)
	}
}

// Count returns the total number of candidates.
func (c Candidates) Count() int {
	n := 0
	for _, l := range c {
		n += len(l)
	}
	return n
}

// Input is everything the normalizer needs for one run.
type Input struct {
	Candidates      Candidates
	Conceptos       []entity.Concepto
	ConceptosMethod entity.Method
}

// Result is a normalized record without confidence, plus what happened on
// the way.
type Result struct {
	Record         entity.FiscalRecord
	Chosen         map[entity.Field]entity.FieldCandidate
	Reconciliation Reconciliation
	Rejected       []common.ValidationError
	Warnings       []string
}

var amountFields = []entity.Field{entity.FieldTotal, entity.FieldSubtotal, entity.FieldIVA}

func anyResolved(values map[entity.Field]string, fields []entity.Field) bool {
	for _, f := range fields {
		if _, ok := values[f]; ok {
			return true
		}
	}
	return false
}

// Normalizer is stateless and safe for concurrent use.
type Normalizer struct {
	vatRate decimal.Decimal
	logger  *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithVATRate overrides the 16% rate used to back-compute amounts.
func WithVATRate(rate decimal.Decimal) Option {
	return func(n *Normalizer) { n.vatRate = rate }
}

// New creates a Normalizer.
func New(logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{vatRate: constants.DefaultVATRate, logger: logger}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Missing lists the scalar fields with no candidate that would survive
// normalization.
func (n *Normalizer) Missing(c Candidates) []entity.Field {
	var out []entity.Field
	for _, f := range entity.ScalarFields {
		found := false
		for _, cand := range c[f] {
			if _, verr := Canonical(f, cand.Value); verr == nil {
				found = true
				break
			}
		}
		if !found {
			out = append(out, f)
		}
	}
	return out
}

// Normalize picks, per field, the first candidate whose value canonicalizes,
// then reconciles the amounts. When candidates existed but none survived,
// it fails with VALIDATION_FAILURE; when only descriptive fields survived
// (no key field, amount or line item), with NO_FIELDS_EXTRACTED.
func (n *Normalizer) Normalize(in Input) (Result, error) {
	res := Result{Chosen: map[entity.Field]entity.FieldCandidate{}}
	values := map[entity.Field]string{}
	prov := map[entity.Field]entity.Method{}

	for _, f := range entity.ScalarFields {
		for idx, cand := range in.Candidates[f] {
			v, verr := Canonical(f, cand.Value)
			if verr != nil {
				res.Rejected = append(res.Rejected, *verr)
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s candidate %q from %s discarded: %s", f, cand.Value, cand.Method, verr.Message))
				continue
			}
			if idx > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s taken from lower-ranked %s candidate", f, cand.Method))
			}
			values[f] = v
			prov[f] = cand.Method
			res.Chosen[f] = cand
			break
		}
	}

	if len(values) == 0 && len(in.Conceptos) == 0 {
		if len(res.Rejected) > 0 {
			return Result{}, common.NewError(common.KindValidationFailure,
				fmt.Sprintf("all %d candidates failed normalization", len(res.Rejected)), nil)
		}
		return Result{}, common.Errorf(common.KindNoFieldsExtracted, "no candidates to normalize")
	}
	// a store name or payment method alone does not make a fiscal record
	if len(in.Conceptos) == 0 && !anyResolved(values, entity.KeyFields) && !anyResolved(values, amountFields) {
		return Result{}, common.Errorf(common.KindNoFieldsExtracted,
			"no identifying field or amount among %d normalized values", len(values))
	}

	money := func(f entity.Field) entity.Money {
		if v, ok := values[f]; ok {
			m, _ := Amount(v)
			return m
		}
		return entity.Money{}
	}
	tr := Reconcile(Totals{Total: money(entity.FieldTotal), Subtotal: money(entity.FieldSubtotal), IVA: money(entity.FieldIVA)}, n.vatRate)
	for _, f := range tr.Derived {
		prov[f] = entity.MethodDerived
	}
	if tr.Note != "" {
		res.Warnings = append(res.Warnings, tr.Note)
	}
	res.Reconciliation = tr.Status

	rec := entity.FiscalRecord{
		UUID:            entity.StringPtr(values[entity.FieldUUID]),
		RFCEmisor:       entity.StringPtr(values[entity.FieldRFCEmisor]),
		RFCReceptor:     entity.StringPtr(values[entity.FieldRFCReceptor]),
		Total:           tr.Total,
		Subtotal:        tr.Subtotal,
		IVA:             tr.IVA,
		Fecha:           entity.StringPtr(values[entity.FieldFecha]),
		FormaPago:       entity.StringPtr(values[entity.FieldFormaPago]),
		Establecimiento: entity.StringPtr(values[entity.FieldEstablecimiento]),
		FieldProvenance: prov,
	}
	if len(in.Conceptos) > 0 {
		rec.Conceptos = slices.Clone(in.Conceptos)
		rec.FieldProvenance[entity.FieldConceptos] = in.ConceptosMethod
	}
	res.Record = rec

	n.logger.Debug("normalize.done",
		"fields", len(prov),
		"rejected", len(res.Rejected),
		"reconciliation", string(tr.Status),
	)
	return res, nil
}
