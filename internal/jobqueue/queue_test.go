package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/SystemGuard-official/docparse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(id string, lane models.Lane) *models.JobDescriptor {
	return &models.JobDescriptor{ID: id, Lane: lane, Kind: models.KindOCR}
}

func TestDequeue_PriorityLaneDrainsFirst(t *testing.T) {
	q := New()
	q.Enqueue(desc("normal-1", models.LaneNormal))
	q.Enqueue(desc("priority-1", models.LanePriority))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "priority-1", got.ID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "normal-1", got.ID)
}

func TestDequeue_FIFOWithinALane(t *testing.T) {
	q := New()
	q.Enqueue(desc("a", models.LaneNormal))
	q.Enqueue(desc("b", models.LaneNormal))
	q.Enqueue(desc("c", models.LaneNormal))

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
	}
}

func TestDequeue_BlocksUntilEnqueueThenReturns(t *testing.T) {
	q := New()

	go func() {
		time.Sleep(30 * time.Millisecond)
		q.Enqueue(desc("late", models.LaneNormal))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late", got.ID)
}

func TestDequeue_ReturnsErrorWhenContextCancelled(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.Error(t, err)
}

func TestDequeue_PreservesFIFOAcrossOverflowSpill(t *testing.T) {
	q := New()

	// Fill the channel fast path completely, then push one more so it spills
	// into overflow.
	for i := 0; i < chanCapacity; i++ {
		q.Enqueue(desc("fill", models.LaneNormal))
	}
	q.Enqueue(desc("overflow-1", models.LaneNormal))

	ctx := context.Background()

	// Drain one channel slot, freeing room for a fresh enqueue to land back
	// in the channel. Without the overflow-non-empty check in Enqueue, this
	// next enqueue would be served ahead of "overflow-1".
	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fill", got.ID)

	q.Enqueue(desc("overflow-2", models.LaneNormal))

	for i := 0; i < chanCapacity-1; i++ {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, "fill", got.ID)
	}

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overflow-1", got.ID, "overflow items must drain before anything enqueued after the spill")

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overflow-2", got.ID)
}

func TestEnqueue_NeverBlocksUnderBacklog(t *testing.T) {
	q := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < chanCapacity*2; i++ {
			q.Enqueue(desc("bulk", models.LaneNormal))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked under backlog")
	}
	assert.Equal(t, chanCapacity*2, q.Size())
}
