package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher_RecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()

	id, err := p.Publish(context.Background(), "extractions", map[string]any{"job_id": "job-1"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	id, err = p.Publish(context.Background(), "extractions", map[string]any{"job_id": "job-2"})
	require.NoError(t, err)
	require.Equal(t, "mem-2", id)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "extractions", msgs[0].Topic)

	require.NoError(t, p.Close())
}
