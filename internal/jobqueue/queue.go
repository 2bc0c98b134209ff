// Package jobqueue implements the in-process priority queue (§4.C): two
// lanes, priority drained ahead of normal, translated from
// InProcessOCRQueue's dual asyncio.Queue into Go channels plus an overflow
// buffer so Enqueue never blocks.
package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// chanCapacity bounds the fast-path channel; descriptors beyond it spill into
// the mutex-guarded overflow slice so Enqueue remains non-blocking regardless
// of backlog size (§4.C: "bounded only by ambient memory").
const chanCapacity = 256

// idlePoll is the sleep-and-retry interval used once both lanes are observed
// empty — the same shape as ocr_queue.py's worker loop sleeping 1s on empty.
const idlePoll = 1 * time.Second

// Queue is a two-lane, priority-first FIFO.
type Queue struct {
	priority chan *models.JobDescriptor
	normal   chan *models.JobDescriptor

	mu               sync.Mutex
	priorityOverflow []*models.JobDescriptor
	normalOverflow   []*models.JobDescriptor
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		priority: make(chan *models.JobDescriptor, chanCapacity),
		normal:   make(chan *models.JobDescriptor, chanCapacity),
	}
}

// Enqueue never blocks and never errors (§4.C). Once a lane's overflow slice
// is non-empty, every further enqueue for that lane also goes to overflow —
// never back into the channel — so a descriptor can never jump ahead of
// older descriptors still waiting in overflow once the channel has drained a
// slot. Without this check, FIFO-within-a-lane (§4.C/§8) breaks as soon as a
// backlog spills past chanCapacity: Dequeue always drains the channel first,
// so a freshly-enqueued descriptor landing back in the channel would be
// served before everything already queued in overflow.
func (q *Queue) Enqueue(desc *models.JobDescriptor) {
	ch := q.normal
	overflow := &q.normalOverflow
	if desc.Lane == models.LanePriority {
		ch = q.priority
		overflow = &q.priorityOverflow
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(*overflow) == 0 {
		select {
		case ch <- desc:
			return
		default:
		}
	}
	*overflow = append(*overflow, desc)
}

// Dequeue implements §4.C's policy: drain priority first (non-blocking),
// then normal (non-blocking), then sleep idlePoll and retry. Returns when a
// descriptor is available or ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (*models.JobDescriptor, error) {
	for {
		if desc := q.tryPop(q.priority, &q.priorityOverflow); desc != nil {
			return desc, nil
		}
		if desc := q.tryPop(q.normal, &q.normalOverflow); desc != nil {
			return desc, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(idlePoll):
			continue
		}
	}
}

func (q *Queue) tryPop(ch chan *models.JobDescriptor, overflow *[]*models.JobDescriptor) *models.JobDescriptor {
	select {
	case desc := <-ch:
		return desc
	default:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(*overflow) == 0 {
		return nil
	}
	desc := (*overflow)[0]
	*overflow = (*overflow)[1:]
	return desc
}

// Size returns the approximate normal-lane backlog (channel depth + overflow).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.normal) + len(q.normalOverflow)
}

// PrioritySize returns the approximate priority-lane backlog.
func (q *Queue) PrioritySize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.priority) + len(q.priorityOverflow)
}

var _ interfaces.JobQueue = (*Queue)(nil)
