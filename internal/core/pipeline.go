// Package core runs one document through classification, text acquisition,
// pattern extraction, the optional AI pass, normalization and assembly.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/assemble"
	"github.com/joseph-ayodele/fiscal-extractor/internal/cfdi"
	"github.com/joseph-ayodele/fiscal-extractor/internal/classify"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/extract"
	"github.com/joseph-ayodele/fiscal-extractor/internal/llm"
	"github.com/joseph-ayodele/fiscal-extractor/internal/metrics"
	"github.com/joseph-ayodele/fiscal-extractor/internal/normalize"
)

const tracerName = "github.com/joseph-ayodele/fiscal-extractor/internal/core"

// TextAcquirer obtains text from PDFs and images. *ocr.Acquirer implements it.
type TextAcquirer interface {
	AcquirePDF(ctx context.Context, content []byte) (entity.AcquiredText, error)
	AcquireImage(ctx context.Context, content []byte, mimeType string) (entity.AcquiredText, error)
}

// FieldMapper is the AI pass. *llm.Mapper implements it.
type FieldMapper interface {
	Map(ctx context.Context, text string) (llm.MappedFields, error)
	PromptVersion() string
}

// TextCache stores acquired text keyed by document id. Implementations must be
// safe for concurrent use; errors are logged and otherwise ignored.
type TextCache interface {
	Get(ctx context.Context, key string) (entity.AcquiredText, bool, error)
	Set(ctx context.Context, key string, acq entity.AcquiredText) error
}

// Pipeline is safe for concurrent use: every Extract call keeps its state on
// the stack and the collaborators are either stateless or concurrency-safe.
type Pipeline struct {
	acquirer   TextAcquirer
	mapper     FieldMapper
	cache      TextCache
	patterns   *extract.Engine
	normalizer *normalize.Normalizer
	assembler  *assemble.Assembler
	metrics    *metrics.Pipeline
	tracer     trace.Tracer
	runTimeout time.Duration
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMapper enables the AI pass.
func WithMapper(m FieldMapper) Option { return func(p *Pipeline) { p.mapper = m } }

// WithCache enables acquired text caching.
func WithCache(c TextCache) Option { return func(p *Pipeline) { p.cache = c } }

// WithMetrics records stage timings and outcomes.
func WithMetrics(m *metrics.Pipeline) Option { return func(p *Pipeline) { p.metrics = m } }

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option { return func(p *Pipeline) { p.tracer = t } }

// WithRunTimeout bounds a whole run. Zero means no bound beyond the caller's context.
func WithRunTimeout(d time.Duration) Option { return func(p *Pipeline) { p.runTimeout = d } }

// WithPatterns replaces the default pattern engine.
func WithPatterns(e *extract.Engine) Option { return func(p *Pipeline) { p.patterns = e } }

// WithNormalizer replaces the default normalizer.
func WithNormalizer(n *normalize.Normalizer) Option { return func(p *Pipeline) { p.normalizer = n } }

// New builds a pipeline. acquirer may be nil when only XML input is expected.
func New(acquirer TextAcquirer, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		acquirer: acquirer,
		logger:   logger,
	}
	for _, o := range opts {
		o(p)
	}
	if p.patterns == nil {
		p.patterns = extract.NewEngine(logger)
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(logger)
	}
	if p.assembler == nil {
		p.assembler = assemble.New(logger)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// ExtractBytes wraps content in a RawDocument and runs Extract.
func (p *Pipeline) ExtractBytes(ctx context.Context, content []byte, mimeType, filename string) (entity.FiscalRecord, error) {
	return p.Extract(ctx, entity.NewRawDocument(content, mimeType, filename))
}

// Extract runs doc through every stage. On failure the record is zero and the
// error is an *common.ExtractionError whose Stage names the last stage reached.
func (p *Pipeline) Extract(ctx context.Context, doc entity.RawDocument) (rec entity.FiscalRecord, err error) {
	if doc.ID == "" {
		doc = entity.NewRawDocument(doc.Content, doc.MIMEType, doc.SourceFilename)
	}
	ctx = common.WithDocumentID(ctx, doc.ID)
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}
	ctx, span := p.tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(
		attribute.String("doc.id", doc.ID),
		attribute.String("doc.mime", doc.MIMEType),
		attribute.Int("doc.bytes", len(doc.Content)),
	))
	defer span.End()

	r := &run{
		p:     p,
		doc:   doc,
		stage: constants.StageReceived,
		log:   p.logger.With("doc_id", doc.ID, "req_id", common.RequestIDFromContext(ctx)),
		start: time.Now(),
	}

	defer func() {
		if rv := recover(); rv != nil {
			r.log.Error("pipeline.panic", "panic", rv, "stack", string(debug.Stack()))
			err = common.NewError(common.KindInternal, "unexpected failure", fmt.Errorf("panic: %v", rv))
		}
		if err != nil {
			err = r.fail(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(common.KindOf(err)))
			rec = entity.FiscalRecord{}
		} else {
			span.SetAttributes(attribute.Float64("record.confidence", rec.OverallConfidence))
		}
	}()

	rec, err = r.execute(ctx)
	return rec, err
}

// run holds the state of one Extract call.
type run struct {
	p     *Pipeline
	doc   entity.RawDocument
	kind  constants.DocumentKind
	stage constants.Stage
	log   *slog.Logger
	start time.Time
}

// next is the only forward transition allowed from each stage.
var next = map[constants.Stage][]constants.Stage{
	constants.StageReceived:         {constants.StageClassified},
	constants.StageClassified:       {constants.StageTextAcquired},
	constants.StageTextAcquired:     {constants.StagePatternExtracted},
	constants.StagePatternExtracted: {constants.StageAIAugmented, constants.StageNormalized},
	constants.StageAIAugmented:      {constants.StageNormalized},
	constants.StageNormalized:       {constants.StageAssembled},
}

func (r *run) advance(to constants.Stage) {
	if r.stage.IsTerminal() {
		panic(fmt.Sprintf("stage %s is terminal", r.stage))
	}
	for _, s := range next[r.stage] {
		if s == to {
			r.log.Debug("pipeline.stage", "from", string(r.stage), "to", string(to))
			r.stage = to
			return
		}
	}
	panic(fmt.Sprintf("illegal stage transition %s -> %s", r.stage, to))
}

func (r *run) fail(err error) error {
	var ee *common.ExtractionError
	if !errors.As(err, &ee) {
		ee = common.NewError(common.KindInternal, "unexpected failure", err)
	} else {
		cp := *ee
		ee = &cp
	}
	if ee.Stage == "" {
		ee.Stage = r.stage
	}
	r.log.Warn("pipeline.failed",
		"stage", string(ee.Stage),
		"kind", string(ee.Kind),
		"elapsed_ms", time.Since(r.start).Milliseconds(),
		"err", ee,
	)
	r.stage = constants.StageFailed
	r.p.metrics.IncDocument(string(r.kind), string(ee.Kind))
	return ee
}

// step runs fn inside a span and records its duration under name.
func (r *run) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if cerr := common.FromContext(ctx); cerr != nil {
		return cerr
	}
	ctx, span := r.p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	r.p.metrics.ObserveStage(name, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// A context that expired mid-call reports as cancellation.
		if cerr := common.FromContext(ctx); cerr != nil && !common.IsKind(err, common.KindCancelled) {
			return common.NewError(common.KindCancelled, "run aborted", err)
		}
	}
	return err
}

func (r *run) execute(ctx context.Context) (entity.FiscalRecord, error) {
	var (
		acq        entity.AcquiredText
		cands      = normalize.Candidates{}
		conceptos  []entity.Concepto
		conMethod  entity.Method
		warnings   []string
		promptVers string
		normalized normalize.Result
	)

	if err := r.step(ctx, "classify", func(context.Context) error {
		k, err := classify.Classify(r.doc.Content, r.doc.MIMEType, r.doc.SourceFilename)
		r.kind = k
		return err
	}); err != nil {
		return entity.FiscalRecord{}, err
	}
	r.advance(constants.StageClassified)

	if err := r.step(ctx, "acquire", func(ctx context.Context) error {
		var err error
		acq, err = r.acquire(ctx)
		return err
	}); err != nil {
		return entity.FiscalRecord{}, err
	}
	r.advance(constants.StageTextAcquired)
	r.log.Info("pipeline.text.acquired",
		"kind", string(acq.Kind),
		"method", string(acq.Method),
		"pages", acq.Pages,
		"chars", len(acq.Text),
	)

	if acq.Kind == constants.XML {
		cands.Add(acq.Structured...)
		conceptos, conMethod = acq.Conceptos, entity.MethodXMLAttr
	} else {
		if err := r.step(ctx, "patterns", func(context.Context) error {
			res := r.p.patterns.Extract(acq.Text)
			cands.Add(res.Candidates...)
			return nil
		}); err != nil {
			return entity.FiscalRecord{}, err
		}
	}
	r.advance(constants.StagePatternExtracted)

	if acq.Kind != constants.XML {
		missing := r.p.normalizer.Missing(cands)
		switch {
		case len(missing) == 0:
			r.log.Debug("pipeline.ai.not_needed")
		case r.p.mapper == nil:
			r.log.Debug("pipeline.ai.disabled", "missing", len(missing))
		default:
			var mapped llm.MappedFields
			err := r.step(ctx, "ai", func(ctx context.Context) error {
				var err error
				mapped, err = r.p.mapper.Map(ctx, acq.Text)
				return err
			})
			switch {
			case common.IsKind(err, common.KindCancelled):
				return entity.FiscalRecord{}, err
			case err != nil:
				kind := common.KindOf(err)
				if kind == "" {
					kind = common.KindAIUnavailable
				}
				r.p.metrics.IncAISkipped(string(kind))
				warnings = append(warnings, fmt.Sprintf("AI step skipped: %s", kind))
				r.log.Warn("pipeline.ai.skipped", "kind", string(kind), "err", err)
			default:
				added := addMissing(cands, mapped.Candidates(), missing)
				if len(conceptos) == 0 {
					if items := mapped.LineItems(); len(items) > 0 {
						conceptos, conMethod = items, entity.MethodAI
					}
				}
				promptVers = r.p.mapper.PromptVersion()
				r.advance(constants.StageAIAugmented)
				r.log.Info("pipeline.ai.merged", "missing", len(missing), "added", added)
			}
		}
	}

	if err := r.step(ctx, "normalize", func(context.Context) error {
		var err error
		normalized, err = r.p.normalizer.Normalize(normalize.Input{
			Candidates:      cands,
			Conceptos:       conceptos,
			ConceptosMethod: conMethod,
		})
		return err
	}); err != nil {
		return entity.FiscalRecord{}, err
	}
	r.advance(constants.StageNormalized)

	rec := r.p.assembler.Assemble(assemble.Input{
		Normalized:    normalized,
		Acquired:      acq,
		PromptVersion: promptVers,
		Warnings:      warnings,
	})
	r.advance(constants.StageAssembled)

	r.p.metrics.IncDocument(string(r.kind), "ok")
	r.p.metrics.ObserveRecord(rec.ResolvedCount(), rec.OverallConfidence)
	r.log.Info("pipeline.done",
		"resolved", rec.ResolvedCount(),
		"confidence", rec.OverallConfidence,
		"warnings", len(rec.Warnings),
		"elapsed_ms", time.Since(r.start).Milliseconds(),
	)
	return rec, nil
}

func (r *run) acquire(ctx context.Context) (entity.AcquiredText, error) {
	if r.kind == constants.XML {
		return cfdi.Acquire(r.doc.Content)
	}
	if r.p.cache != nil {
		acq, ok, err := r.p.cache.Get(ctx, r.doc.ID)
		switch {
		case err != nil:
			r.log.Warn("pipeline.cache.get_failed", "err", err)
		case ok:
			r.log.Debug("pipeline.cache.hit")
			return acq, nil
		}
	}
	if r.p.acquirer == nil {
		return entity.AcquiredText{}, common.Errorf(common.KindOCRFailure, "no text acquirer configured for %s input", r.kind)
	}

	var (
		acq entity.AcquiredText
		err error
	)
	switch r.kind {
	case constants.PDF:
		acq, err = r.p.acquirer.AcquirePDF(ctx, r.doc.Content)
	case constants.IMAGE:
		acq, err = r.p.acquirer.AcquireImage(ctx, r.doc.Content, imageMIME(r.doc))
	default:
		return entity.AcquiredText{}, common.Errorf(common.KindUnsupportedFormat, "unsupported document kind %q", r.kind)
	}
	if err != nil {
		return entity.AcquiredText{}, err
	}
	if r.p.cache != nil {
		if cerr := r.p.cache.Set(ctx, r.doc.ID, acq); cerr != nil {
			r.log.Warn("pipeline.cache.set_failed", "err", cerr)
		}
	}
	return acq, nil
}

// addMissing appends AI candidates for fields the pattern pass left
// unresolved. Fields already resolved by stronger strategies are untouched.
func addMissing(cands normalize.Candidates, ai []entity.FieldCandidate, missing []entity.Field) int {
	want := make(map[entity.Field]bool, len(missing))
	for _, f := range missing {
		want[f] = true
	}
	n := 0
	for _, c := range ai {
		if want[c.Field] {
			cands.Add(c)
			n++
		}
	}
	return n
}

func imageMIME(doc entity.RawDocument) string {
	if constants.MapMIMEToKind(doc.MIMEType) == constants.IMAGE {
		return doc.MIMEType
	}
	if m := constants.MapExtToMIME(filepath.Ext(doc.SourceFilename)); m != "" {
		return m
	}
	return http.DetectContentType(doc.Content)
}
