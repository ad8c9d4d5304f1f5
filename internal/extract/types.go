// Package extract defines core types shared across subsystems.
package extract

import "time"

// Catalog field names used by the pipeline. The catalog returns French
// column names; the appended match column mirrors the upstream convention.
const (
	FieldPublicationDate    = "dateparution"
	FieldDepartmentCode     = "code_departement"
	ColumnMatchedDepartment = "code_departement_trouve"
)

// JobStatus represents the lifecycle state of an extraction job.
type JobStatus string

// Job status values held in the job ledger. Transitions are monotonic:
// started -> processing -> completed | error.
const (
	JobStatusStarted    JobStatus = "started"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// IsTerminal reports whether the status is a terminal state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// Record is one notice as returned by the remote catalog: field name to
// value, where values may be scalars, nulls, or nested JSON structures.
type Record map[string]any

// Row is a normalized record: same keys, but nested values replaced by
// their serialized text form and nulls replaced by empty strings.
type Row map[string]any

// Dataset is an ordered sequence of rows plus the declared column list.
// Row order is insertion order from the fetch (descending publication date).
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// ExtractionParams captures per-job knobs requested by the client.
type ExtractionParams struct {
	TargetDate  string   `json:"target_date"`
	MaxRecords  int      `json:"max_records"`
	Departments []string `json:"departments"`
}

// Job is the ledger entry tracked for each submitted extraction request.
// Datasets are populated only once the job completes.
type Job struct {
	ID        string           `json:"id"`
	Status    JobStatus        `json:"status"`
	Message   string           `json:"message"`
	Params    ExtractionParams `json:"parameters"`
	Submitted time.Time        `json:"submitted_at"`
	Started   *time.Time       `json:"started_at,omitempty"`
	Finished  *time.Time       `json:"finished_at,omitempty"`
	Results   JobResults       `json:"results"`
}

// JobResults holds the counts and datasets produced by the pipeline.
type JobResults struct {
	TotalRecords           int            `json:"total_records"`
	FilteredRecords        int            `json:"filtered_records"`
	DepartmentDistribution map[string]int `json:"department_distribution"`
	FullDataset            *Dataset       `json:"-"`
	FilteredDataset        *Dataset       `json:"-"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    ExtractionParams
	Submitted int64
}

// FetchRequest captures everything the catalog fetcher needs for one job.
type FetchRequest struct {
	JobID      string
	TargetDate string
	MaxRecords int
}

// PublicationDate reads the record's publication date field as a string.
// Missing or non-string values read as "".
func (r Record) PublicationDate() string {
	s, _ := r[FieldPublicationDate].(string)
	return s
}
