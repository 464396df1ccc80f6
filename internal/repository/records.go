// Package repository stores assembled FiscalRecords for the daemon and the
// batch CLI. It sits outside the extraction core.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// StoredRecord is a FiscalRecord plus its storage metadata.
type StoredRecord struct {
	DocumentID     string              `json:"documentId"`
	SourceFilename string              `json:"sourceFilename,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	Record         entity.FiscalRecord `json:"record"`
}

// ListFilter narrows List. Zero values match everything. Dates compare
// against the record's fecha (YYYY-MM-DD).
type ListFilter struct {
	RFCEmisor string
	FromDate  string
	ToDate    string
	Limit     int
}

// RecordRepository persists records keyed by document id. Saving the same
// document again replaces the previous record.
type RecordRepository interface {
	Save(ctx context.Context, docID, filename string, rec entity.FiscalRecord) error
	GetByDocument(ctx context.Context, docID string) (StoredRecord, error)
	GetByUUID(ctx context.Context, fiscalUUID string) (StoredRecord, error)
	List(ctx context.Context, f ListFilter) ([]StoredRecord, error)
	Close() error
}

// row is the flattened form written to both backends.
type row struct {
	docID      string
	filename   string
	uuid       *string
	rfcEmisor  *string
	rfcRecv    *string
	fecha      *string
	total      *string
	kind       string
	confidence float64
	body       []byte
}

func toRow(docID, filename string, rec entity.FiscalRecord) (row, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return row{}, err
	}
	r := row{
		docID:      docID,
		filename:   filename,
		rfcEmisor:  rec.RFCEmisor,
		rfcRecv:    rec.RFCReceptor,
		fecha:      rec.Fecha,
		kind:       string(rec.DocumentKind),
		confidence: rec.OverallConfidence,
		body:       body,
	}
	if rec.UUID != nil {
		r.uuid = entity.StringPtr(uuidKey(*rec.UUID))
	}
	if rec.Total.Valid() {
		r.total = entity.StringPtr(rec.Total.String())
	}
	return r, nil
}

func fromRow(docID, filename string, created time.Time, body []byte) (StoredRecord, error) {
	var rec entity.FiscalRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return StoredRecord{}, err
	}
	return StoredRecord{DocumentID: docID, SourceFilename: filename, CreatedAt: created.UTC(), Record: rec}, nil
}

// uuidKey is the lookup form of a fiscal UUID. Records keep the case they
// were printed with; lookups ignore it.
func uuidKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func limitOf(f ListFilter) int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 1000
	}
	return f.Limit
}
