// Package async runs pipeline jobs on a bounded pool of workers.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// Extractor runs one document. *core.Pipeline implements it.
type Extractor interface {
	Extract(ctx context.Context, doc entity.RawDocument) (entity.FiscalRecord, error)
}

// Job is one document waiting for a worker.
type Job struct {
	Document    entity.RawDocument
	SubmittedAt time.Time
	RequestID   string
}

// Result is what a worker produced for a Job. Err is an
// *common.ExtractionError when set.
type Result struct {
	Job     Job
	Record  entity.FiscalRecord
	Err     error
	Elapsed time.Duration
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
