package extract

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// JobStore is the ledger of job state. Implementations must replace whole
// records atomically so concurrent readers never observe a torn write.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, message string) error
	SetJobTotals(ctx context.Context, jobID string, totalRecords int, message string) error
	SetJobResults(ctx context.Context, jobID string, results JobResults) error
}

// CatalogFetcher retrieves all notices published on the target date.
type CatalogFetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Record, error)
}

// Encoder converts a dataset into a downloadable spreadsheet payload.
// The worksheet carries a header row of column names followed by one row
// per dataset row, preserving order exactly.
type Encoder interface {
	Encode(ds Dataset, sheetName string) ([]byte, error)
}

// Publisher pushes job completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
	Close() error
}

// Queue provides enqueue/dequeue semantics for extraction jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
