// Package worker implements the extraction pipeline execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jmarchand/boamp-extractor/internal/depmatch"
	"github.com/jmarchand/boamp-extractor/internal/extract"
	"github.com/jmarchand/boamp-extractor/internal/normalize"
	"github.com/jmarchand/boamp-extractor/internal/progress"
)

// Config controls Worker behavior.
type Config struct {
	CompletionTopic string
}

// Worker consumes queue items and runs the fetch -> normalize -> match
// pipeline for each job, updating the ledger at every stage. Stage faults
// are contained to the job: the entry flips to error and the worker moves
// on to the next item.
type Worker struct {
	queue     extract.Queue
	jobs      extract.JobStore
	fetcher   extract.CatalogFetcher
	publisher extract.Publisher
	clock     extract.Clock
	emitter   progress.Emitter
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue extract.Queue,
	jobs extract.JobStore,
	fetcher extract.CatalogFetcher,
	publisher extract.Publisher,
	clock extract.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		fetcher:   fetcher,
		publisher: publisher,
		clock:     clock,
		emitter:   emitter,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item extract.QueueItem) {
	start := w.clock.Now()
	w.emitter.Emit(progress.Event{
		JobID: item.JobID,
		TS:    start,
		Stage: progress.StageJobStart,
	})

	defer func() {
		if rec := recover(); rec != nil {
			w.failJob(ctx, item, start, fmt.Errorf("panic: %v", rec))
		}
	}()

	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, extract.JobStatusProcessing, "Fetching BOAMP records..."); err != nil {
		w.logger.Error("update job status failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	records, err := w.fetcher.Fetch(ctx, extract.FetchRequest{
		JobID:      item.JobID,
		TargetDate: item.Params.TargetDate,
		MaxRecords: item.Params.MaxRecords,
	})
	if err != nil {
		w.failJob(ctx, item, start, err)
		return
	}

	if len(records) == 0 {
		w.completeEmpty(ctx, item, start)
		return
	}

	message := fmt.Sprintf("Found %d records. Processing...", len(records))
	if err := w.jobs.SetJobTotals(ctx, item.JobID, len(records), message); err != nil {
		w.failJob(ctx, item, start, err)
		return
	}

	full := normalize.Flatten(records)
	filtered, distribution := depmatch.Filter(full, item.Params.Departments)

	results := extract.JobResults{
		TotalRecords:           len(records),
		FilteredRecords:        len(filtered.Rows),
		DepartmentDistribution: distribution,
		FullDataset:            &full,
		FilteredDataset:        &filtered,
	}
	if err := w.jobs.SetJobResults(ctx, item.JobID, results); err != nil {
		w.failJob(ctx, item, start, err)
		return
	}
	message = fmt.Sprintf("Processing complete. %d records after filtering.", len(filtered.Rows))
	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, extract.JobStatusCompleted, message); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}

	w.finishJob(ctx, item, start, results)
}

// completeEmpty short-circuits the zero-records case straight to completed
// with empty datasets, skipping the normalizer and matcher.
func (w *Worker) completeEmpty(ctx context.Context, item extract.QueueItem, start time.Time) {
	results := extract.JobResults{
		DepartmentDistribution: map[string]int{},
		FullDataset:            &extract.Dataset{Rows: []extract.Row{}},
		FilteredDataset: &extract.Dataset{
			Columns: []string{extract.ColumnMatchedDepartment},
			Rows:    []extract.Row{},
		},
	}
	if err := w.jobs.SetJobResults(ctx, item.JobID, results); err != nil {
		w.failJob(ctx, item, start, err)
		return
	}
	message := fmt.Sprintf("No records found for date %s", item.Params.TargetDate)
	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, extract.JobStatusCompleted, message); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.finishJob(ctx, item, start, results)
}

func (w *Worker) finishJob(ctx context.Context, item extract.QueueItem, start time.Time, results extract.JobResults) {
	elapsed := w.clock.Now().Sub(start)
	w.emitter.Emit(progress.Event{
		JobID:    item.JobID,
		TS:       w.clock.Now(),
		Stage:    progress.StageJobDone,
		Records:  results.TotalRecords,
		Filtered: results.FilteredRecords,
		Result:   string(extract.JobStatusCompleted),
		Dur:      elapsed,
	})
	w.publishCompletion(ctx, item, results)
	w.logger.Info("job completed",
		zap.String("job_id", item.JobID),
		zap.String("target_date", item.Params.TargetDate),
		zap.Int("total_records", results.TotalRecords),
		zap.Int("filtered_records", results.FilteredRecords),
		zap.Duration("elapsed", elapsed),
	)
}

// failJob contains a pipeline fault to the job entry: status flips to error
// with a descriptive message and nothing propagates to the submitter.
func (w *Worker) failJob(ctx context.Context, item extract.QueueItem, start time.Time, cause error) {
	message := fmt.Sprintf("Error during processing: %s", cause.Error())
	if err := w.jobs.UpdateJobStatus(ctx, item.JobID, extract.JobStatusError, message); err != nil {
		w.logger.Error("fail job status update", zap.String("job_id", item.JobID), zap.Error(err))
	}
	w.emitter.Emit(progress.Event{
		JobID:  item.JobID,
		TS:     w.clock.Now(),
		Stage:  progress.StageJobError,
		Result: string(extract.JobStatusError),
		Dur:    w.clock.Now().Sub(start),
		Note:   cause.Error(),
	})
	w.logger.Error("job failed",
		zap.String("job_id", item.JobID),
		zap.String("target_date", item.Params.TargetDate),
		zap.Error(cause),
	)
}

func (w *Worker) publishCompletion(ctx context.Context, item extract.QueueItem, results extract.JobResults) {
	if w.cfg.CompletionTopic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":           item.JobID,
		"status":           string(extract.JobStatusCompleted),
		"target_date":      item.Params.TargetDate,
		"total_records":    results.TotalRecords,
		"filtered_records": results.FilteredRecords,
		"timestamp":        w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.CompletionTopic, payload); err != nil {
		w.logger.Warn("completion publish failed", zap.String("job_id", item.JobID), zap.Error(err))
	}
}
