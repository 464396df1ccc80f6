// Package extract is the pattern extraction engine: for every target field an
// ordered chain of strategies is run over the acquired text, and the first
// strategy that matches wins the field.
package extract

import (
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// Strategy proposes at most one candidate for one field.
type Strategy interface {
	Name() string
	Match(s *Scan) (entity.FieldCandidate, bool)
}

// Scan is the text under extraction plus the fields already selected, so a
// strategy can depend on earlier decisions (the receiver must differ from the
// emitter).
type Scan struct {
	Text     string
	selected map[entity.Field]entity.FieldCandidate
}

// NewScan wraps text for a single extraction pass.
func NewScan(text string) *Scan {
	return &Scan{Text: text, selected: map[entity.Field]entity.FieldCandidate{}}
}

// Selected returns the value chosen so far for f.
func (s *Scan) Selected(f entity.Field) (string, bool) {
	c, ok := s.selected[f]
	return c.Value, ok
}

// strategyFunc adapts a matching function into a Strategy.
type strategyFunc struct {
	name     string
	field    entity.Field
	priority int
	fn       func(s *Scan) (value, snippet string, ok bool)
}

func (f strategyFunc) Name() string { return f.name }

func (f strategyFunc) Match(s *Scan) (entity.FieldCandidate, bool) {
	v, snip, ok := f.fn(s)
	if !ok || strings.TrimSpace(v) == "" {
		return entity.FieldCandidate{}, false
	}
	return entity.FieldCandidate{
		Field:         f.field,
		Value:         strings.TrimSpace(v),
		Method:        entity.MethodPattern,
		Priority:      f.priority,
		SourceSnippet: snip,
		Strategy:      f.name,
	}, true
}

// Chain is the ordered strategy list for one field.
type Chain struct {
	Field      entity.Field
	Strategies []Strategy
}

// Result holds the selected candidate per field and every candidate produced.
type Result struct {
	Selected   map[entity.Field]entity.FieldCandidate
	Candidates []entity.FieldCandidate
}

// Get returns the selected candidate for f.
func (r Result) Get(f entity.Field) (entity.FieldCandidate, bool) {
	c, ok := r.Selected[f]
	return c, ok
}

// Engine runs the strategy chains. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	chains []Chain
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithChains replaces the default chains.
func WithChains(chains ...Chain) Option {
	return func(e *Engine) { e.chains = chains }
}

// NewEngine builds an engine with the default chains.
func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{chains: DefaultChains(), logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract runs every chain in order. All strategies are evaluated so the
// losing candidates remain available for debugging; only the first match per
// field is selected.
func (e *Engine) Extract(text string) Result {
	scan := NewScan(text)
	res := Result{Selected: map[entity.Field]entity.FieldCandidate{}}

	for _, ch := range e.chains {
		for _, st := range ch.Strategies {
			c, ok := st.Match(scan)
			if !ok {
				continue
			}
			res.Candidates = append(res.Candidates, c)
			if _, taken := scan.selected[ch.Field]; !taken {
				scan.selected[ch.Field] = c
				res.Selected[ch.Field] = c
			}
		}
	}

	e.logger.Debug("extract.patterns.done",
		"selected", len(res.Selected),
		"candidates", len(res.Candidates),
	)
	return res
}

// DefaultChains is the built-in precedence: SAT verification URL first, then
// labelled fields, then permissive scans. Emitter precedes receiver.
func DefaultChains() []Chain {
	return []Chain{
		{entity.FieldUUID, []Strategy{satUUID, labeledUUID, genericUUID}},
		{entity.FieldRFCEmisor, []Strategy{satEmisor, labeledEmisor, genericEmisor}},
		{entity.FieldRFCReceptor, []Strategy{satReceptor, labeledReceptor, genericReceptor}},
		{entity.FieldTotal, []Strategy{satTotal, totalAPagar, importeTotal, labeledTotal, lastDollarAmount}},
		{entity.FieldSubtotal, []Strategy{labeledSubtotal}},
		{entity.FieldIVA, []Strategy{labeledIVA, trasladadosIVA}},
		{entity.FieldFecha, []Strategy{labeledFecha, genericFecha}},
		{entity.FieldFormaPago, []Strategy{labeledFormaPago, keywordFormaPago}},
		{entity.FieldEstablecimiento, []Strategy{labeledEstablecimiento, headerEstablecimiento}},
	}
}

// snippet returns the matched region with a little surrounding context.
func snippet(text string, start, end int) string {
	const pad = 20
	lo, hi := start-pad, end+pad
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	for lo > 0 && lo < len(text) && text[lo]&0xC0 == 0x80 {
		lo--
	}
	for hi < len(text) && text[hi]&0xC0 == 0x80 {
		hi++
	}
	return strings.Join(strings.Fields(text[lo:hi]), " ")
}
