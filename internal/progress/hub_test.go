package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *collectingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *collectingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *collectingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func validEvent(jobID string, stage Stage) Event {
	evt := Event{JobID: jobID, TS: time.Now().UTC(), Stage: stage}
	if stage == StageJobDone || stage == StageJobError {
		evt.Result = "completed"
	}
	return evt
}

func TestHub_DeliversEventsToSinks(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{FlushInterval: 10 * time.Millisecond}, sink)

	hub.Emit(validEvent("job-1", StageJobStart))
	hub.Emit(validEvent("job-1", StagePageFetched))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close(context.Background()))
	require.True(t, sink.isClosed())
}

func TestHub_CloseFlushesPendingEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{FlushInterval: time.Hour}, sink)

	hub.Emit(validEvent("job-1", StageJobStart))
	hub.Emit(validEvent("job-1", StageJobDone))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.snapshot(), 2)
}

func TestHub_DiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{Stage: StageJobStart})                 // missing job id and timestamp
	hub.Emit(Event{JobID: "job-1", TS: time.Now().UTC()}) // missing stage

	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.snapshot())
}

func TestHub_EmitAfterCloseIsNoOp(t *testing.T) {
	t.Parallel()

	sink := &collectingSink{}
	hub := NewHub(Config{}, sink)
	require.NoError(t, hub.Close(context.Background()))

	hub.Emit(validEvent("job-1", StageJobStart))

	require.Empty(t, sink.snapshot())
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{}, &collectingSink{})

	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validEvent("job-1", StageJobStart).Validate())
	require.NoError(t, validEvent("job-1", StageJobDone).Validate())

	require.Error(t, Event{TS: time.Now(), Stage: StageJobStart}.Validate())
	require.Error(t, Event{JobID: "j", Stage: StageJobStart}.Validate())
	require.Error(t, Event{JobID: "j", TS: time.Now(), Stage: "BOGUS"}.Validate())
	require.Error(t, Event{JobID: "j", TS: time.Now(), Stage: StageJobError}.Validate())
}
