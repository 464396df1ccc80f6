package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline provides observability for document runs.
// A nil *Pipeline is valid and records nothing.
type Pipeline struct {
	DocumentsProcessed *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	AISkipped          *prometheus.CounterVec
	ProviderRetries    *prometheus.CounterVec
	FieldsResolved     prometheus.Histogram
	Confidence         prometheus.Histogram
}

// New registers the pipeline metrics on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		DocumentsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_documents_processed_total",
			Help: "Documents processed, by document kind and outcome (ok or error kind)",
		}, []string{"kind", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiscal_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		AISkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_ai_skipped_total",
			Help: "AI mapper runs that degraded to skipped, by reason",
		}, []string{"reason"}),
		ProviderRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscal_provider_retries_total",
			Help: "Retries of OCR and AI provider calls",
		}, []string{"provider"}),
		FieldsResolved: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiscal_fields_resolved",
			Help:    "Number of scalar fields resolved per record",
			Buckets: prometheus.LinearBuckets(0, 1, 10),
		}),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fiscal_record_confidence",
			Help:    "Overall confidence of assembled records",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
}

// ObserveStage records the duration of a stage.
// Call with time.Now() at the start of the stage.
func (m *Pipeline) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// IncDocument records the outcome of one run.
func (m *Pipeline) IncDocument(kind, outcome string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.DocumentsProcessed.WithLabelValues(kind, outcome).Inc()
}

// IncAISkipped records a degraded AI step.
func (m *Pipeline) IncAISkipped(reason string) {
	if m == nil {
		return
	}
	m.AISkipped.WithLabelValues(reason).Inc()
}

// IncRetry records one retry against provider.
func (m *Pipeline) IncRetry(provider string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

// ObserveRecord records the shape of an assembled record.
func (m *Pipeline) ObserveRecord(resolved int, confidence float64) {
	if m == nil {
		return
	}
	m.FieldsResolved.Observe(float64(resolved))
	m.Confidence.Observe(confidence)
}
