package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

func newJob(id string) extract.Job {
	return extract.Job{
		ID:        id,
		Status:    extract.JobStatusStarted,
		Message:   "Job created, starting processing...",
		Submitted: time.Now().UTC(),
		Params: extract.ExtractionParams{
			TargetDate:  "2025-06-01",
			Departments: []string{"75"},
		},
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))

	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, extract.JobStatusStarted, job.Status)
	require.Equal(t, "2025-06-01", job.Params.TargetDate)
}

func TestJobStore_CreateDuplicateFails(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()

	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))
	require.Error(t, store.CreateJob(ctx, newJob("job-1")))
}

func TestJobStore_GetUnknownJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, extract.ErrNotFound)
}

func TestJobStore_UpdateStatusStampsTransitions(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))

	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", extract.JobStatusProcessing, "Fetching BOAMP records..."))
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Started)
	require.Nil(t, job.Finished)
	require.Equal(t, "Fetching BOAMP records...", job.Message)

	require.NoError(t, store.UpdateJobStatus(ctx, "job-1", extract.JobStatusCompleted, "Processing complete. 1 records after filtering."))
	job, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, job.Finished)
	require.Equal(t, extract.JobStatusCompleted, job.Status)
}

func TestJobStore_UpdateStatusUnknownJob(t *testing.T) {
	t.Parallel()

	store := NewJobStore()

	err := store.UpdateJobStatus(context.Background(), "missing", extract.JobStatusError, "Error during processing: boom")
	require.ErrorIs(t, err, extract.ErrNotFound)
}

func TestJobStore_SetTotalsAndResults(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	ctx := context.Background()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1")))

	require.NoError(t, store.SetJobTotals(ctx, "job-1", 42, "Found 42 records. Processing..."))
	job, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 42, job.Results.TotalRecords)

	full := &extract.Dataset{Columns: []string{"a"}, Rows: []extract.Row{{"a": 1}}}
	results := extract.JobResults{
		TotalRecords:           42,
		FilteredRecords:        1,
		DepartmentDistribution: map[string]int{"75": 1},
		FullDataset:            full,
		FilteredDataset:        full,
	}
	require.NoError(t, store.SetJobResults(ctx, "job-1", results))

	job, err = store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 1, job.Results.FilteredRecords)
	require.Equal(t, map[string]int{"75": 1}, job.Results.DepartmentDistribution)
	require.Same(t, full, job.Results.FullDataset)
}
