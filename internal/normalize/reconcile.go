package normalize

import (
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// Reconciliation describes how the totals invariant was reached.
type Reconciliation string

const (
	// ReconcileHeld: subtotal + iva matched total as extracted.
	ReconcileHeld Reconciliation = "held"
	// ReconcileDerived: missing amounts were computed, nothing contradicted.
	ReconcileDerived Reconciliation = "derived"
	// ReconcileAdjusted: extracted amounts disagreed and were overridden.
	ReconcileAdjusted Reconciliation = "adjusted"
	// ReconcileIncomplete: not enough amounts to check anything.
	ReconcileIncomplete Reconciliation = "incomplete"
)

// Totals is the amount triple under reconciliation.
type Totals struct {
	Total, Subtotal, IVA entity.Money
}

// TotalsResult carries the reconciled amounts and which of them were computed.
type TotalsResult struct {
	Totals
	Status  Reconciliation
	Derived []entity.Field
	Note    string
}

// Reconcile enforces |subtotal + iva - total| <= 0.01. Total is the anchor:
// when the three disagree, iva becomes total - subtotal, or both are
// back-computed from total at rate when subtotal exceeds total.
func Reconcile(in Totals, rate decimal.Decimal) TotalsResult {
	out := TotalsResult{Totals: in}
	t, s, i := in.Total, in.Subtotal, in.IVA

	backCompute := func() {
		sub := t.Decimal().Div(decimal.NewFromInt(1).Add(rate)).Round(2)
		out.Subtotal = entity.NewMoney(sub)
		out.IVA = entity.NewMoney(t.Decimal().Sub(sub))
	}
	diff := func(a, b entity.Money) decimal.Decimal { return a.Decimal().Sub(b.Decimal()) }

	switch {
	case t.Valid() && s.Valid() && i.Valid():
		gap := s.Decimal().Add(i.Decimal()).Sub(t.Decimal()).Abs()
		if gap.LessThanOrEqual(constants.ReconcileTolerance) {
			out.Status = ReconcileHeld
			return out
		}
		out.Status = ReconcileAdjusted
		if d := diff(t, s); !d.IsNegative() {
			out.IVA = entity.NewMoney(d)
			out.Derived = []entity.Field{entity.FieldIVA}
			out.Note = "subtotal + iva did not match total; iva recomputed from total"
		} else {
			backCompute()
			out.Derived = []entity.Field{entity.FieldSubtotal, entity.FieldIVA}
			out.Note = "subtotal exceeded total; subtotal and iva back-computed from total"
		}

	case t.Valid() && s.Valid():
		if d := diff(t, s); !d.IsNegative() {
			out.IVA = entity.NewMoney(d)
			out.Status = ReconcileDerived
			out.Derived = []entity.Field{entity.FieldIVA}
		} else {
			backCompute()
			out.Status = ReconcileAdjusted
			out.Derived = []entity.Field{entity.FieldSubtotal, entity.FieldIVA}
			out.Note = "subtotal exceeded total; subtotal and iva back-computed from total"
		}

	case t.Valid() && i.Valid():
		if d := diff(t, i); !d.IsNegative() {
			out.Subtotal = entity.NewMoney(d)
			out.Status = ReconcileDerived
			out.Derived = []entity.Field{entity.FieldSubtotal}
		} else {
			backCompute()
			out.Status = ReconcileAdjusted
			out.Derived = []entity.Field{entity.FieldSubtotal, entity.FieldIVA}
			out.Note = "iva exceeded total; subtotal and iva back-computed from total"
		}

	case t.Valid():
		backCompute()
		out.Status = ReconcileDerived
		out.Derived = []entity.Field{entity.FieldSubtotal, entity.FieldIVA}

	case s.Valid() && i.Valid():
		out.Total = entity.NewMoney(s.Decimal().Add(i.Decimal()))
		out.Status = ReconcileDerived
		out.Derived = []entity.Field{entity.FieldTotal}

	default:
		// A lone subtotal or iva says nothing about the rate actually applied.
		out.Status = ReconcileIncomplete
	}
	return out
}
