// Package ocr acquires text from PDFs and images: the PDF text layer when
// one exists, otherwise page images through an OCR Engine.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
	"github.com/joseph-ayodele/fiscal-extractor/internal/classify"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/metrics"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/fiscal-extractor/internal/retry"
)

// Config holds acquisition knobs.
type Config struct {
	Languages          []string
	MinTextLayerLength int
	MaxPages           int
	HeicConverter      string
}

// Acquirer is stateless apart from its shared clients and safe for
// concurrent use.
type Acquirer struct {
	cfg     Config
	engine  Engine
	raster  Rasterizer
	runner  Runner
	limiter *ratelimit.Limiter
	policy  retry.Policy
	metrics *metrics.Pipeline
	log     *slog.Logger
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithRunner replaces the command runner used for HEIC conversion.
func WithRunner(r Runner) Option { return func(a *Acquirer) { a.runner = r } }

// WithLimiter shares a provider rate limiter across workers.
func WithLimiter(l *ratelimit.Limiter) Option { return func(a *Acquirer) { a.limiter = l } }

// WithRetryPolicy bounds engine attempts and per-attempt timeout.
func WithRetryPolicy(p retry.Policy) Option { return func(a *Acquirer) { a.policy = p } }

// WithMetrics counts engine retries.
func WithMetrics(m *metrics.Pipeline) Option { return func(a *Acquirer) { a.metrics = m } }

// NewAcquirer builds an Acquirer. engine may be nil, in which case only PDF
// text layers can be read.
func NewAcquirer(cfg Config, engine Engine, raster Rasterizer, logger *slog.Logger, opts ...Option) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTextLayerLength <= 0 {
		cfg.MinTextLayerLength = constants.MinTextLayerLength
	}
	if raster == nil {
		raster = PDFCPURasterizer{}
	}
	a := &Acquirer{
		cfg:    cfg,
		engine: engine,
		raster: raster,
		runner: ExecRunner{},
		policy: retry.Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, AttemptTimeout: 30 * time.Second},
		log:    logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AcquirePDF reads the text layer, falling back to OCR of rendered pages
// when the layer is missing or shorter than MinTextLayerLength.
func (a *Acquirer) AcquirePDF(ctx context.Context, content []byte) (entity.AcquiredText, error) {
	out := entity.AcquiredText{Kind: constants.PDF}

	if _, err := readPDF(content); err != nil {
		out.Warnings = append(out.Warnings, "pdf structure did not validate")
		a.log.Warn("ocr.pdf.validate_failed", "doc_id", common.DocumentIDFromContext(ctx), "error", err)
	}

	text, pages, layerErr := pdfTextLayer(content)
	out.Pages = pages
	if layerErr == nil {
		text = Normalize(text)
		if len([]rune(text)) >= a.cfg.MinTextLayerLength {
			out.Text = text
			out.Method = entity.AcquiredFromPDFText
			a.log.Debug("ocr.pdf.text_layer", "doc_id", common.DocumentIDFromContext(ctx), "pages", pages, "chars", len(text))
			return out, nil
		}
	}
	if layerErr != nil && len(out.Warnings) > 0 {
		// neither parser could read the file
		return entity.AcquiredText{}, common.NewError(common.KindUnsupportedFormat, "unreadable pdf", layerErr)
	}
	if a.engine == nil {
		if strings.TrimSpace(text) != "" {
			out.Text = text
			out.Method = entity.AcquiredFromPDFText
			out.Warnings = append(out.Warnings, "short text layer and no OCR engine configured")
			return out, nil
		}
		return entity.AcquiredText{}, common.NewError(common.KindOCRFailure, "scanned pdf and no OCR engine configured", nil)
	}

	rendered, err := a.raster.Rasterize(ctx, content, a.cfg.MaxPages)
	if err != nil {
		if cerr := common.FromContext(ctx); cerr != nil {
			return entity.AcquiredText{}, cerr
		}
		return entity.AcquiredText{}, common.NewError(common.KindOCRFailure, "rasterize pdf", err)
	}
	if pages > len(rendered) {
		out.Warnings = append(out.Warnings, fmt.Sprintf("only %d of %d pages were OCR'd", len(rendered), pages))
	}
	if out.Pages < len(rendered) {
		out.Pages = len(rendered)
	}
	return a.ocrPages(ctx, out, rendered)
}

// AcquireImage OCRs a photograph or scan. HEIC input is converted first.
func (a *Acquirer) AcquireImage(ctx context.Context, content []byte, mimeType string) (entity.AcquiredText, error) {
	out := entity.AcquiredText{Kind: constants.IMAGE, Pages: 1}
	if a.engine == nil {
		return entity.AcquiredText{}, common.NewError(common.KindOCRFailure, "no OCR engine configured", nil)
	}
	if isHEIC(mimeType) || classify.IsHEIF(content) {
		png, err := convertHEICtoPNG(ctx, a.runner, a.log, a.cfg.HeicConverter, content)
		if err != nil {
			if cerr := common.FromContext(ctx); cerr != nil {
				return entity.AcquiredText{}, cerr
			}
			return entity.AcquiredText{}, common.NewError(common.KindOCRFailure, "convert heic", err)
		}
		content, mimeType = png, "image/png"
		out.Warnings = append(out.Warnings, "converted HEIC to PNG before OCR")
	}
	return a.ocrPages(ctx, out, []Page{{Image: content, MIMEType: mimeType}})
}

func (a *Acquirer) ocrPages(ctx context.Context, out entity.AcquiredText, pages []Page) (entity.AcquiredText, error) {
	texts := make([]string, 0, len(pages))
	var scores []float64
	var lastErr error
	for i, p := range pages {
		tr, err := a.recognize(ctx, p)
		if err != nil {
			if common.IsKind(err, common.KindCancelled) {
				return entity.AcquiredText{}, err
			}
			lastErr = err
			out.Warnings = append(out.Warnings, fmt.Sprintf("ocr failed on page %d", i+1))
			continue
		}
		text := Normalize(tr.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		scores = append(scores, blendConfidence(tr.Confidence, text))
	}

	if len(texts) == 0 {
		if lastErr != nil {
			return entity.AcquiredText{}, lastErr
		}
		return entity.AcquiredText{}, common.NewError(common.KindNoTextDetected, "empty transcript", nil)
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	conf := sum / float64(len(scores))
	out.Text = strings.Join(texts, "\n\f\n")
	out.Method = entity.AcquiredFromOCR
	out.OCRConfidence = &conf
	if conf < constants.ImageConfidenceThreshold {
		out.Warnings = append(out.Warnings, fmt.Sprintf("low OCR confidence %.2f", conf))
	}
	return out, nil
}

func (a *Acquirer) recognize(ctx context.Context, p Page) (Transcript, error) {
	start := time.Now()
	policy := a.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.metrics.IncRetry(a.engine.Name())
		a.log.Warn("ocr.engine.retry", "engine", a.engine.Name(), "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
	}

	var tr Transcript
	err := retry.Do(ctx, policy, func(actx context.Context) error {
		if err := a.limiter.Wait(actx); err != nil {
			return err
		}
		t, err := a.engine.Recognize(actx, p.Image, Hints{Languages: a.cfg.Languages, MIMEType: p.MIMEType})
		if err != nil {
			return err
		}
		tr = t
		return nil
	})
	if err != nil {
		if cerr := common.FromContext(ctx); cerr != nil {
			return Transcript{}, cerr
		}
		a.log.Error("ocr.engine.failed",
			"engine", a.engine.Name(),
			"doc_id", common.DocumentIDFromContext(ctx),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return Transcript{}, common.NewError(common.KindOCRFailure, a.engine.Name(), err)
	}
	a.log.Debug("ocr.engine.ok",
		"engine", a.engine.Name(),
		"chars", len(tr.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return tr, nil
}

func isHEIC(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case "image/heic", "image/heif", "image/heic-sequence", "image/heif-sequence":
		return true
	}
	return false
}
