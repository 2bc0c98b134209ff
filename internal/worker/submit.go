package worker

import (
	"context"
	"time"

	"github.com/SystemGuard-official/docparse/internal/models"
)

// Submit persists the initial pending record, enqueues the descriptor, starts
// the pool if this is its first submission, and broadcasts job_queued.
func (p *Pool) Submit(ctx context.Context, desc *models.JobDescriptor) error {
	rec := &models.JobRecord{
		ID:        desc.ID,
		Kind:      desc.Kind,
		Lane:      desc.Lane,
		Status:    models.StatusPending,
		Filename:  desc.Filename,
		Prompt:    desc.Prompt,
		CreatedAt: time.Now(),
	}
	if err := p.store.Put(ctx, rec); err != nil {
		return err
	}

	p.Start()
	p.queue.Enqueue(desc)
	p.broadcast(desc, models.StatusPending, "job_queued")
	return nil
}

// Status reports the queue/worker introspection shape for §6's
// GET /{kind}/queue/status.
func (p *Pool) Status() models.QueueStatus {
	return models.QueueStatus{
		ActiveJobs:        int(p.active.Load()),
		MaxWorkers:        p.workers,
		QueueSize:         p.queue.Size(),
		PriorityQueueSize: p.queue.PrioritySize(),
	}
}

// Kind returns the engine kind this pool serves.
func (p *Pool) Kind() models.Kind {
	return p.kind
}
