package main

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/joseph-ayodele/fiscal-extractor/internal/async"
	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

// resultLine is one JSON line of output per document.
type resultLine struct {
	File       string               `json:"file"`
	DocumentID string               `json:"documentId"`
	ElapsedMS  int64                `json:"elapsedMs"`
	Record     *entity.FiscalRecord `json:"record,omitempty"`
	Error      *errorLine           `json:"error,omitempty"`
}

type errorLine struct {
	Kind    common.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

func toLine(r async.Result) resultLine {
	line := resultLine{
		File:       r.Job.Document.SourceFilename,
		DocumentID: r.Job.Document.ID,
		ElapsedMS:  r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		kind := common.KindOf(r.Err)
		if kind == "" {
			kind = common.KindInternal
		}
		line.Error = &errorLine{Kind: kind, Message: r.Err.Error()}
		return line
	}
	rec := r.Record
	line.Record = &rec
	return line
}

// lineWriter serializes results from concurrent workers.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (lw *lineWriter) Write(r async.Result) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.enc.Encode(toLine(r))
}

// storedRecords keeps the successful results, in order, for the XLSX export.
func storedRecords(results []async.Result) []repository.StoredRecord {
	out := make([]repository.StoredRecord, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out = append(out, repository.StoredRecord{
			DocumentID:     r.Job.Document.ID,
			SourceFilename: r.Job.Document.SourceFilename,
			CreatedAt:      r.Job.SubmittedAt,
			Record:         r.Record,
		})
	}
	return out
}
