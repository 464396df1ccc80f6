package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/fiscal-extractor/internal/app"
	"github.com/joseph-ayodele/fiscal-extractor/internal/async"
	"github.com/joseph-ayodele/fiscal-extractor/internal/export"
	"github.com/joseph-ayodele/fiscal-extractor/internal/ingest"
)

var (
	runXLSX        string
	runStore       string
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run <file|dir>...",
	Short: "Extract every supported document under the given paths",
	Long: `Reads each file (directories are walked), runs the extraction pipeline
with bounded concurrency and prints one JSON line per document.
With --xlsx the successful records are also written to a workbook.
With --store they are saved to an SQLite file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "also write the records to this XLSX file")
	runCmd.Flags().StringVar(&runStore, "store", "", "save records to this SQLite database")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "documents in flight (default WORKER_CONCURRENCY)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	paths, stats, err := ingest.ExpandPaths(args, skipHidden)
	if err != nil {
		return fmt.Errorf("expand paths: %w", err)
	}
	logger.Info("extract.run.scanned",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)
	if len(paths) == 0 {
		return errors.New("no supported documents found")
	}

	a, err := app.Build(ctx, cfg, logger, app.Options{SQLitePath: runStore})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("extract.close_failed", "error", err)
		}
	}()

	ingestor := ingest.NewFSIngestor(maxBytes, logger)
	jobs := make([]async.Job, 0, len(paths))
	for _, p := range paths {
		res, err := ingestor.IngestPath(p)
		if err != nil {
			logger.Error("extract.run.read_failed", "path", p, "error", err)
			continue
		}
		jobs = append(jobs, async.Job{Document: res.Document, SubmittedAt: time.Now().UTC()})
	}

	concurrency := runConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Worker.Concurrency
	}

	out := newLineWriter(cmd.OutOrStdout())
	results := async.RunBatch(ctx, a.Pipeline, jobs, concurrency, logger, func(r async.Result) {
		if err := out.Write(r); err != nil {
			logger.Warn("extract.run.write_failed", "error", err)
		}
		if r.Err == nil && a.Records != nil {
			if err := a.Records.Save(ctx, r.Job.Document.ID, r.Job.Document.SourceFilename, r.Record); err != nil {
				logger.Error("extract.run.store_failed", "doc_id", r.Job.Document.ID, "error", err)
			}
		}
	})

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	if runXLSX != "" {
		b, err := export.NewService(a.Records, logger).RecordsXLSX(storedRecords(results))
		if err != nil {
			return fmt.Errorf("build xlsx: %w", err)
		}
		if err := os.WriteFile(runXLSX, b, 0o644); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
		logger.Info("extract.run.xlsx_written", "path", runXLSX, "records", len(results)-failed)
	}

	logger.Info("extract.run.done", "documents", len(results), "failed", failed)
	if failed == len(results) {
		return fmt.Errorf("all %d documents failed", failed)
	}
	return nil
}
