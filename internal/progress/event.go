// Package progress defines the event stream emitted by the extraction pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
	StagePageFetched Stage = "PAGE_FETCHED"
	StagePageError   Stage = "PAGE_ERROR"
)

// Event captures a single milestone of extraction progress, keyed by job id
// and stage so failures stay diagnosable without aborting the pipeline.
type Event struct {
	// JobID identifies the job run.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Offset is the catalog page offset for page events.
	Offset int
	// Records counts rows: per page for page events, total for job events.
	Records int
	// Filtered counts surviving rows for JOB_DONE events.
	Filtered int
	// Result is the terminal status for JOB_DONE ("completed") and
	// JOB_ERROR ("error") events.
	Result string
	// Dur captures latency for page fetches and whole jobs.
	Dur time.Duration
	// Note carries low-volume debug context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StagePageFetched, StagePageError:
	case StageJobDone, StageJobError:
		if e.Result == "" {
			return fmt.Errorf("%s requires a result", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
