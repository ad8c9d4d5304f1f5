package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jmarchand/boamp-extractor/internal/progress"
)

func TestPrometheusSink_Consume(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now().UTC()
	err = sink.Consume(context.Background(), []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart},
		{JobID: "job-1", TS: now, Stage: progress.StagePageFetched, Records: 100, Dur: 200 * time.Millisecond},
		{JobID: "job-1", TS: now, Stage: progress.StagePageError, Offset: 100, Note: "boom"},
		{JobID: "job-1", TS: now, Stage: progress.StageJobDone, Result: "completed", Records: 42, Filtered: 7, Dur: 3 * time.Second},
	})
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("completed")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.pagesFetched))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.pageErrors))
	require.Equal(t, float64(42), testutil.ToFloat64(sink.recordsTotal))
	require.Equal(t, float64(7), testutil.ToFloat64(sink.recordsKept))
}

func TestPrometheusSink_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
