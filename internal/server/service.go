// Package server exposes the extraction pipeline over gRPC and HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

// Extractor runs one document. *core.Pipeline implements it.
type Extractor interface {
	Extract(ctx context.Context, doc entity.RawDocument) (entity.FiscalRecord, error)
}

// Service is shared by the gRPC and HTTP surfaces. Records is optional; when
// nil, extracted records are returned but not stored.
type Service struct {
	extractor Extractor
	records   repository.RecordRepository
	logger    *slog.Logger
}

func NewService(ext Extractor, records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{extractor: ext, records: records, logger: logger}
}

// ExtractAndStore runs the pipeline and, on success, saves the record.
// A storage failure is logged; the record is still returned.
func (s *Service) ExtractAndStore(ctx context.Context, doc entity.RawDocument) (entity.FiscalRecord, error) {
	rec, err := s.extractor.Extract(ctx, doc)
	if err != nil {
		s.logger.Warn("server.extract.failed",
			"doc_id", doc.ID,
			"req_id", common.RequestIDFromContext(ctx),
			"kind", string(common.KindOf(err)),
			"error", err,
		)
		return entity.FiscalRecord{}, err
	}
	if s.records != nil {
		if serr := s.records.Save(ctx, doc.ID, doc.SourceFilename, rec); serr != nil {
			s.logger.Error("server.store.failed", "doc_id", doc.ID, "error", serr)
		}
	}
	s.logger.Info("server.extract.ok",
		"doc_id", doc.ID,
		"req_id", common.RequestIDFromContext(ctx),
		"confidence", rec.OverallConfidence,
	)
	return rec, nil
}

// errStoreDisabled is returned by lookups when no repository is configured.
var errStoreDisabled = errors.New("record store is not configured")

func (s *Service) GetRecord(ctx context.Context, fiscalUUID string) (repository.StoredRecord, error) {
	if s.records == nil {
		return repository.StoredRecord{}, errStoreDisabled
	}
	return s.records.GetByUUID(ctx, fiscalUUID)
}

func (s *Service) ListRecords(ctx context.Context, f repository.ListFilter) ([]repository.StoredRecord, error) {
	if s.records == nil {
		return nil, errStoreDisabled
	}
	return s.records.List(ctx, f)
}

// errorBody is the wire form of a failed run.
type errorBody struct {
	Kind    common.ErrorKind `json:"kind"`
	Stage   string           `json:"stage,omitempty"`
	Message string           `json:"message"`
}

func toErrorBody(err error) errorBody {
	var ee *common.ExtractionError
	if errors.As(err, &ee) {
		return errorBody{Kind: ee.Kind, Stage: string(ee.Stage), Message: ee.Error()}
	}
	return errorBody{Kind: common.KindInternal, Message: err.Error()}
}

// toMap round-trips v through JSON so the gRPC surface returns the same
// shape as the HTTP one.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
