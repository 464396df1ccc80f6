// Package ingest turns files on disk into RawDocuments for the pipeline.
package ingest

import (
	"time"

	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath string
	HashHex    string
	FileExt    string
	Size       int64
	ModifiedAt time.Time
	Document   entity.RawDocument
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}
