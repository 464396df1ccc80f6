package async

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunBatch extracts every document with at most concurrency runs in flight.
// A failed document does not stop the others; results keep the input order.
// onResult, when set, is called as each run finishes and may be called
// concurrently.
func RunBatch(ctx context.Context, ext Extractor, jobs []Job, concurrency int, logger *slog.Logger, onResult func(Result)) []Result {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			rec, err := ext.Extract(gctx, job.Document)
			results[i] = Result{Job: job, Record: rec, Err: err, Elapsed: time.Since(start)}
			if onResult != nil {
				onResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("batch.done", "documents", len(jobs), "failed", failed, "concurrency", concurrency)
	return results
}
