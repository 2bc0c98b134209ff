// Package interfaces defines the service contracts that tie the job-dispatch
// engine's components together, the way vire's interfaces package decouples
// storage/service implementations from their callers.
package interfaces

import (
	"context"
	"time"

	"github.com/SystemGuard-official/docparse/internal/models"
)

// JobStateStore is the durable record of job state (§4.A). Put/Get only —
// no scans, single writer per key, JSON-serializable values.
type JobStateStore interface {
	Put(ctx context.Context, rec *models.JobRecord) error
	// Get returns (nil, nil) when the id is not present — absence is not an error.
	Get(ctx context.Context, id string) (*models.JobRecord, error)
	Close() error
}

// MemoryInfo is what the admission controller's pluggable stats callback reports.
type MemoryInfo struct {
	TotalGiB float64
	UsedGiB  float64
	FreeGiB  float64
}

// AdmissionController gates concurrent access to the shared GPU resource (§4.B).
type AdmissionController interface {
	TryAcquire(holderID string) bool
	WaitAcquire(ctx context.Context, holderID string, pollInterval time.Duration) error
	Release(holderID string)
	CurrentHolders() []string
	Capacity() int
	Stats() *models.GPUStatus
}

// JobQueue is the in-process priority-aware job queue (§4.C).
type JobQueue interface {
	Enqueue(desc *models.JobDescriptor)
	// Dequeue implements the priority-first, then-normal, then-sleep policy.
	// Blocks until ctx is cancelled or a descriptor is available.
	Dequeue(ctx context.Context) (*models.JobDescriptor, error)
	Size() int
	PrioritySize() int
}

// InferenceAdapter wraps the opaque external model callable (§4.E).
type InferenceAdapter interface {
	Run(ctx context.Context, desc *models.JobDescriptor, onProgress func(pct int)) (any, error)
}

// EventSink receives job lifecycle events for optional downstream fan-out
// (the WebSocket hub implements this; a nil-safe no-op may also).
type EventSink interface {
	Broadcast(evt models.Event)
}
