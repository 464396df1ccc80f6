package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/fiscal-extractor/internal/app"
	"github.com/joseph-ayodele/fiscal-extractor/internal/async"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ingest"
)

var (
	watchInitial  bool
	watchDebounce time.Duration
	watchStore    string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Extract documents as they land in the given directories",
	Long: `Watches the directories recursively and queues every supported file
that is created or written. Results are printed as JSON lines until the
process is interrupted; queued documents are drained before exit.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", false, "also process files already present")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 750*time.Millisecond, "quiet period before a file is read")
	watchCmd.Flags().StringVar(&watchStore, "store", "", "save records to this SQLite database")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := app.Build(ctx, cfg, logger, app.Options{SQLitePath: watchStore})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("extract.close_failed", "error", err)
		}
	}()

	out := newLineWriter(cmd.OutOrStdout())
	saveCtx := context.WithoutCancel(ctx)
	queue := async.NewProcessorQueue(a.Pipeline, logger,
		async.WithWorkers(cfg.Worker.Concurrency),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithProcessTimeout(cfg.Worker.JobTimeout),
		async.WithSink(func(r async.Result) {
			if err := out.Write(r); err != nil {
				logger.Warn("extract.watch.write_failed", "error", err)
			}
			if r.Err == nil && a.Records != nil {
				if err := a.Records.Save(saveCtx, r.Job.Document.ID, r.Job.Document.SourceFilename, r.Record); err != nil {
					logger.Error("extract.watch.store_failed", "doc_id", r.Job.Document.ID, "error", err)
				}
			}
		}),
	)

	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitial,
		Debounce:    watchDebounce,
		SkipHidden:  skipHidden,
	}, logger)
	if err != nil {
		queue.Shutdown(ctx)
		return fmt.Errorf("start watcher: %w", err)
	}

	ingestor := ingest.NewFSIngestor(maxBytes, logger)
	for paths != nil || errs != nil {
		select {
		case p, ok := <-paths:
			if !ok {
				paths = nil
				continue
			}
			res, err := ingestor.IngestPath(p)
			if err != nil {
				logger.Error("extract.watch.read_failed", "path", p, "error", err)
				continue
			}
			if err := queue.Enqueue(ctx, async.Job{Document: res.Document}); err != nil {
				logger.Warn("extract.watch.enqueue_failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("extract.watch.error", "error", err)
		}
	}

	// ctx is already done here, so drain with a fresh deadline.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.JobTimeout)
	defer cancel()
	queue.Shutdown(drainCtx)
	return nil
}
