package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmarchand/boamp-extractor/internal/extract"
	"github.com/jmarchand/boamp-extractor/internal/progress"
	pubmemory "github.com/jmarchand/boamp-extractor/internal/publisher/memory"
	storememory "github.com/jmarchand/boamp-extractor/internal/store/memory"
)

type fakeQueue struct {
	mu    sync.Mutex
	items []extract.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, item extract.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (extract.QueueItem, error) {
	q.mu.Lock()
	if len(q.items) > 0 {
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return item, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return extract.QueueItem{}, ctx.Err()
}

type fakeFetcher struct {
	records []extract.Record
	err     error
}

func (f *fakeFetcher) Fetch(context.Context, extract.FetchRequest) ([]extract.Record, error) {
	return f.records, f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func seedJob(t *testing.T, store extract.JobStore, id string) {
	t.Helper()
	err := store.CreateJob(context.Background(), extract.Job{
		ID:        id,
		Status:    extract.JobStatusStarted,
		Message:   "Job created, starting processing...",
		Submitted: time.Unix(100, 0).UTC(),
		Params: extract.ExtractionParams{
			TargetDate:  "2025-06-01",
			MaxRecords:  5000,
			Departments: []string{"75"},
		},
	})
	require.NoError(t, err)
}

func waitForStatus(t *testing.T, store extract.JobStore, id string, want extract.JobStatus) extract.Job {
	t.Helper()
	var job extract.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = store.GetJob(context.Background(), id)
		return err == nil && job.Status == want
	}, time.Second, 5*time.Millisecond)
	return job
}

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storememory.NewJobStore()
	seedJob(t, store, "job-success")

	queue := &fakeQueue{items: []extract.QueueItem{{
		JobID: "job-success",
		Params: extract.ExtractionParams{
			TargetDate:  "2025-06-01",
			Departments: []string{"75"},
		},
	}}}
	fetcher := &fakeFetcher{records: []extract.Record{
		{extract.FieldPublicationDate: "2025-06-01", extract.FieldDepartmentCode: []any{"75"}, "objet": "voirie"},
		{extract.FieldPublicationDate: "2025-06-01", extract.FieldDepartmentCode: "13", "objet": "toiture"},
		{extract.FieldPublicationDate: "2025-06-01", "objet": "sans departement"},
	}}
	publisher := pubmemory.New()

	w := New(queue, store, fetcher, publisher, &fakeClock{now: time.Unix(100, 0)}, nil,
		Config{CompletionTopic: "extractions"}, nil)
	go w.Run(ctx)

	job := waitForStatus(t, store, "job-success", extract.JobStatusCompleted)

	require.Equal(t, "Processing complete. 1 records after filtering.", job.Message)
	require.Equal(t, 3, job.Results.TotalRecords)
	require.Equal(t, 1, job.Results.FilteredRecords)
	require.Equal(t, map[string]int{"75": 1}, job.Results.DepartmentDistribution)
	require.NotNil(t, job.Results.FullDataset)
	require.Len(t, job.Results.FullDataset.Rows, 3)
	require.NotNil(t, job.Results.FilteredDataset)
	require.Len(t, job.Results.FilteredDataset.Rows, 1)
	require.Equal(t, "75", job.Results.FilteredDataset.Rows[0][extract.ColumnMatchedDepartment])

	msgs := publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "extractions", msgs[0].Topic)
}

func TestWorker_ProcessJob_NoRecords(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storememory.NewJobStore()
	seedJob(t, store, "job-empty")

	queue := &fakeQueue{items: []extract.QueueItem{{
		JobID: "job-empty",
		Params: extract.ExtractionParams{
			TargetDate:  "2025-06-01",
			Departments: []string{"75"},
		},
	}}}

	w := New(queue, store, &fakeFetcher{}, pubmemory.New(), &fakeClock{now: time.Unix(100, 0)}, nil, Config{}, nil)
	go w.Run(ctx)

	job := waitForStatus(t, store, "job-empty", extract.JobStatusCompleted)

	require.Equal(t, "No records found for date 2025-06-01", job.Message)
	require.Zero(t, job.Results.TotalRecords)
	require.NotNil(t, job.Results.FullDataset)
	require.Empty(t, job.Results.FullDataset.Rows)
	require.NotNil(t, job.Results.FilteredDataset)
	require.Equal(t, []string{extract.ColumnMatchedDepartment}, job.Results.FilteredDataset.Columns)
	require.NotNil(t, job.Results.DepartmentDistribution)
	require.Empty(t, job.Results.DepartmentDistribution)
}

func TestWorker_ProcessJob_FetchErrorMarksJobFailed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storememory.NewJobStore()
	seedJob(t, store, "job-err")

	queue := &fakeQueue{items: []extract.QueueItem{{
		JobID:  "job-err",
		Params: extract.ExtractionParams{TargetDate: "2025-06-01", Departments: []string{"75"}},
	}}}
	fetcher := &fakeFetcher{err: errors.New("catalog unreachable")}
	publisher := pubmemory.New()

	w := New(queue, store, fetcher, publisher, &fakeClock{now: time.Unix(100, 0)}, nil,
		Config{CompletionTopic: "extractions"}, nil)
	go w.Run(ctx)

	job := waitForStatus(t, store, "job-err", extract.JobStatusError)

	require.Equal(t, "Error during processing: catalog unreachable", job.Message)
	require.Empty(t, publisher.Messages())
}

func TestWorker_ProcessJob_EmitsLifecycleEvents(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := storememory.NewJobStore()
	seedJob(t, store, "job-evt")

	queue := &fakeQueue{items: []extract.QueueItem{{
		JobID:  "job-evt",
		Params: extract.ExtractionParams{TargetDate: "2025-06-01", Departments: []string{"75"}},
	}}}
	fetcher := &fakeFetcher{records: []extract.Record{
		{extract.FieldPublicationDate: "2025-06-01", extract.FieldDepartmentCode: "75"},
	}}
	emitter := &recordingEmitter{}

	w := New(queue, store, fetcher, pubmemory.New(), &fakeClock{now: time.Unix(100, 0)}, emitter, Config{}, nil)
	go w.Run(ctx)

	waitForStatus(t, store, "job-evt", extract.JobStatusCompleted)

	require.Eventually(t, func() bool {
		return len(emitter.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	events := emitter.snapshot()
	require.Equal(t, progress.StageJobStart, events[0].Stage)
	require.Equal(t, progress.StageJobDone, events[1].Stage)
	require.Equal(t, string(extract.JobStatusCompleted), events[1].Result)
	require.Equal(t, 1, events[1].Records)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) snapshot() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}
