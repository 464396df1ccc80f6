// Package assemble turns a normalized record into the final FiscalRecord with
// provenance and an overall confidence score.
package assemble

import (
	"log/slog"
	"math"
	"slices"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/normalize"
)

// Base confidence per acquisition path when no OCR score applies.
const (
	baseXML          = 1.0
	basePDFText      = 0.95
	baseOCRUnscored  = 0.5
	weightFields     = 0.7
	weightReconciled = 0.3
	rejectPenalty    = 0.02
)

// Input carries everything the assembler reads. Nothing is mutated.
type Input struct {
	Normalized    normalize.Result
	Acquired      entity.AcquiredText
	PromptVersion string
	Warnings      []string
}

// Assembler is stateless.
type Assembler struct {
	logger *slog.Logger
}

// New creates an Assembler.
func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Assemble builds the immutable output record.
func (a *Assembler) Assemble(in Input) entity.FiscalRecord {
	rec := in.Normalized.Record.Clone()
	rec.DocumentKind = in.Acquired.Kind
	rec.AcquisitionMethod = in.Acquired.Method
	if rec.FieldProvenance == nil {
		rec.FieldProvenance = map[entity.Field]entity.Method{}
	}
	if rec.Conceptos == nil {
		rec.Conceptos = []entity.Concepto{}
	}
	for _, m := range rec.FieldProvenance {
		if m == entity.MethodAI {
			rec.PromptVersion = in.PromptVersion
			break
		}
	}

	warnings := make([]string, 0, len(in.Acquired.Warnings)+len(in.Warnings)+len(in.Normalized.Warnings))
	warnings = append(warnings, in.Acquired.Warnings...)
	warnings = append(warnings, in.Warnings...)
	warnings = append(warnings, in.Normalized.Warnings...)
	rec.Warnings = slices.Compact(warnings)

	rec.OverallConfidence = Confidence(in.Acquired, in.Normalized)

	a.logger.Debug("assemble.done",
		"fields", len(rec.FieldProvenance),
		"confidence", rec.OverallConfidence,
		"warnings", len(rec.Warnings),
	)
	return rec
}

// Confidence combines the acquisition quality, how each key field was
// resolved, and whether the totals held without adjustment. The result is
// rounded to three decimals so equal inputs give equal bytes.
func Confidence(acq entity.AcquiredText, n normalize.Result) float64 {
	base := baseConfidence(acq)

	fieldScore := 0.0
	for _, f := range entity.KeyFields {
		fieldScore += fieldWeight(n.Record.FieldProvenance[f], n.Chosen[f])
	}
	fieldScore /= float64(len(entity.KeyFields))

	score := base*(weightFields*fieldScore+weightReconciled*reconcileWeight(n.Reconciliation)) -
		rejectPenalty*float64(len(n.Rejected))
	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1000) / 1000
}

func baseConfidence(acq entity.AcquiredText) float64 {
	switch acq.Method {
	case entity.AcquiredFromXML:
		return baseXML
	case entity.AcquiredFromPDFText:
		return basePDFText
	}
	if acq.OCRConfidence == nil {
		return baseOCRUnscored
	}
	c := *acq.OCRConfidence
	if c < constants.ImageConfidenceThreshold {
		// Weak transcripts drag harder than their raw score.
		c *= c / constants.ImageConfidenceThreshold
	}
	return math.Max(0, math.Min(1, c))
}

// fieldWeight scores one key field by the strategy that resolved it.
func fieldWeight(m entity.Method, c entity.FieldCandidate) float64 {
	switch m {
	case entity.MethodXMLAttr:
		return 1.0
	case entity.MethodPattern:
		switch {
		case c.Priority >= entity.PrioritySATURL:
			return 1.0
		case c.Priority >= entity.PriorityLabeled:
			return 0.9
		case c.Priority >= entity.PriorityGeneric:
			return 0.75
		default:
			return 0.6
		}
	case entity.MethodDerived:
		return 0.8
	case entity.MethodAI:
		return 0.6
	}
	return 0
}

func reconcileWeight(r normalize.Reconciliation) float64 {
	switch r {
	case normalize.ReconcileHeld:
		return 1.0
	case normalize.ReconcileDerived:
		return 0.9
	case normalize.ReconcileAdjusted:
		return 0.5
	default:
		return 0.7
	}
}
