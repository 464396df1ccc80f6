package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/metrics"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/fiscal-extractor/internal/retry"
)

// Mapper sends document text to a Model with the fixed prompt and parses the
// answer strictly. It is safe for concurrent use if its Model is.
type Mapper struct {
	model    Model
	limiter  *ratelimit.Limiter
	policy   retry.Policy
	maxChars int
	metrics  *metrics.Pipeline
	log      *slog.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithLimiter shares a provider rate limiter across workers.
func WithLimiter(l *ratelimit.Limiter) MapperOption {
	return func(m *Mapper) { m.limiter = l }
}

// WithRetryPolicy bounds the attempts and per-attempt timeout.
func WithRetryPolicy(p retry.Policy) MapperOption {
	return func(m *Mapper) { m.policy = p }
}

// WithMaxPromptChars truncates the text sent to the model.
func WithMaxPromptChars(n int) MapperOption {
	return func(m *Mapper) { m.maxChars = n }
}

// WithMetrics counts retries.
func WithMetrics(p *metrics.Pipeline) MapperOption {
	return func(m *Mapper) { m.metrics = p }
}

// NewMapper wraps model.
func NewMapper(model Model, logger *slog.Logger, opts ...MapperOption) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mapper{
		model:    model,
		maxChars: DefaultMaxPromptChars,
		policy:   retry.Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, AttemptTimeout: 60 * time.Second},
		log:      logger,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// PromptVersion reports the prompt version stamped on mapped records.
func (m *Mapper) PromptVersion() string { return PromptVersion }

// Map runs one structured re-extraction. Errors are ExtractionErrors of kind
// AI_QUOTA_EXCEEDED, AI_INVALID_RESPONSE, AI_UNAVAILABLE or CANCELLED.
func (m *Mapper) Map(ctx context.Context, text string) (MappedFields, error) {
	rid := uuid.New().String()
	start := time.Now()
	req := BuildRequest(text, m.maxChars)

	m.log.Info("llm.map.start",
		"req_id", rid,
		"doc_id", common.DocumentIDFromContext(ctx),
		"model", m.model.Name(),
		"prompt_version", PromptVersion,
		"text_len", len(text),
	)

	policy := m.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.metrics.IncRetry(m.model.Name())
		m.log.Warn("llm.map.retry", "req_id", rid, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)
	}

	var raw string
	err := retry.Do(ctx, policy, func(actx context.Context) error {
		if err := m.limiter.Wait(actx); err != nil {
			return err
		}
		out, err := m.model.Generate(actx, req)
		if err != nil {
			if common.IsKind(err, common.KindAIQuotaExceeded) {
				m.limiter.Penalize(0)
			}
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		if cerr := common.FromContext(ctx); cerr != nil {
			return MappedFields{}, cerr
		}
		if common.KindOf(err) == "" {
			err = common.NewError(common.KindAIUnavailable, "model call failed", err)
		}
		m.log.Error("llm.map.call_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return MappedFields{}, err
	}

	fields, body, err := ParseResponse(raw)
	if err != nil {
		m.log.Error("llm.map.invalid_response",
			"req_id", rid, "error", err, "content", truncate(string(body), 512),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return MappedFields{}, err
	}

	m.log.Info("llm.map.ok",
		"req_id", rid,
		"fields", len(fields.Candidates()),
		"conceptos", len(fields.Conceptos),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, nil
}

// Candidates converts the non-null answers into AI candidates.
func (f MappedFields) Candidates() []entity.FieldCandidate {
	var out []entity.FieldCandidate
	add := func(field entity.Field, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		out = append(out, entity.FieldCandidate{
			Field:    field,
			Value:    v,
			Method:   entity.MethodAI,
			Priority: entity.PriorityAI,
			Strategy: "ai." + string(field),
		})
	}
	addPtr := func(field entity.Field, p *string) {
		if p != nil {
			add(field, *p)
		}
	}
	addPtr(entity.FieldUUID, f.UUID)
	addPtr(entity.FieldRFCEmisor, f.RFCEmisor)
	addPtr(entity.FieldRFCReceptor, f.RFCReceptor)
	if f.Total.Valid {
		add(entity.FieldTotal, f.Total.Decimal.String())
	}
	if f.Subtotal.Valid {
		add(entity.FieldSubtotal, f.Subtotal.Decimal.String())
	}
	if f.IVA.Valid {
		add(entity.FieldIVA, f.IVA.Decimal.String())
	}
	addPtr(entity.FieldFecha, f.Fecha)
	addPtr(entity.FieldFormaPago, f.FormaPago)
	addPtr(entity.FieldEstablecimiento, f.Establecimiento)
	return out
}

// LineItems converts the mapped conceptos. Items without a description are dropped.
func (f MappedFields) LineItems() []entity.Concepto {
	var out []entity.Concepto
	for _, c := range f.Conceptos {
		desc := strings.TrimSpace(c.Descripcion)
		if desc == "" {
			continue
		}
		item := entity.Concepto{Descripcion: desc}
		if c.Cantidad.Valid {
			item.Cantidad = c.Cantidad.Decimal
		}
		if c.ValorUnitario.Valid {
			item.ValorUnitario = entity.NewMoney(c.ValorUnitario.Decimal)
		}
		if c.Importe.Valid {
			item.Importe = entity.NewMoney(c.Importe.Decimal)
		}
		out = append(out, item)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
