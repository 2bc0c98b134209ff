// Package worker implements the worker pool (§4.D): W goroutines each
// dequeuing, admitting against the GPU controller, invoking the inference
// adapter off-loop, recording the result, and releasing — translated from
// jobmanager.JobManager's safeGo/processLoop pattern.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/inference"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// ClearGPUCacheHook is invoked after an out-of-memory inference error, before
// the holder releases its admission slot. The real CUDA runtime has no Go
// analogue here, so the default hook is a no-op — grounded on
// qwen_vision_service.py's torch.cuda.empty_cache() call sites.
type ClearGPUCacheHook func()

// Pool runs a fixed number of workers against one queue/adapter pair for a
// single engine kind (OCR or form-parse each get their own Pool).
type Pool struct {
	name       string
	kind       models.Kind
	workers    int
	queue      interfaces.JobQueue
	admission  interfaces.AdmissionController
	store      interfaces.JobStateStore
	adapter    interfaces.InferenceAdapter
	acquireTTL time.Duration
	events     interfaces.EventSink
	clearCache ClearGPUCacheHook
	logger     *common.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	active    atomic.Int32
}

// Config bundles a Pool's dependencies.
type Config struct {
	Name           string
	Kind           models.Kind
	Workers        int
	Queue          interfaces.JobQueue
	Admission      interfaces.AdmissionController
	Store          interfaces.JobStateStore
	Adapter        interfaces.InferenceAdapter
	AcquireTimeout time.Duration
	Events         interfaces.EventSink
	ClearCache     ClearGPUCacheHook
	Logger         *common.Logger
}

// New builds a Pool. Workers aren't started until Start is called — pools
// are started lazily the first time a job targeting their engine is
// submitted (§4.D).
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	clearCache := cfg.ClearCache
	if clearCache == nil {
		clearCache = func() {}
	}
	acquireTTL := cfg.AcquireTimeout
	if acquireTTL <= 0 {
		acquireTTL = 300 * time.Second
	}

	return &Pool{
		name:       cfg.Name,
		kind:       cfg.Kind,
		workers:    workers,
		queue:      cfg.Queue,
		admission:  cfg.Admission,
		store:      cfg.Store,
		adapter:    cfg.Adapter,
		acquireTTL: acquireTTL,
		events:     cfg.Events,
		clearCache: clearCache,
		logger:     cfg.Logger,
	}
}

// safeGo launches a goroutine with panic recovery and logging, mirroring
// JobManager.safeGo.
func (p *Pool) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in worker pool goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the worker goroutines against a pool-lifetime context —
// never the caller's request context, since Start only ever runs once per
// pool (sync.Once) and a net/http request context is cancelled the instant
// that request's handler returns, which would tear down every worker for
// the rest of the process's life after its first submission. Idempotent —
// subsequent calls are a no-op (the lazy-start trigger may fire once per
// process for each pool).
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		for i := 0; i < p.workers; i++ {
			name := fmt.Sprintf("%s-worker-%d", p.name, i)
			idx := i
			p.safeGo(name, func() { p.loop(loopCtx, idx) })
		}
		p.logger.Info().Str("engine", p.name).Int("workers", p.workers).Msg("worker pool started")
	})
}

// Stop cancels the dequeue loop only — not any job already in flight — and
// waits for every worker goroutine to return. A worker that is mid-admission
// or mid-inference when Stop is called keeps running against its own
// job-scoped context (§4.D: "Shutdown cancels the dequeue loop but not the
// in-flight inference call; workers drain naturally" / "In-flight
// state-store writes complete before exit").
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) holderID(workerIndex int) string {
	return fmt.Sprintf("%s_worker_%d", p.name, workerIndex)
}

// loop owns only the dequeue decision; loopCtx is cancelled by Stop. Once a
// descriptor is dequeued, the job itself runs against an independent
// background context so a shutdown mid-job can't abort its admission wait,
// its inference call, or its terminal state-store write.
func (p *Pool) loop(loopCtx context.Context, workerIndex int) {
	holderID := p.holderID(workerIndex)

	for {
		select {
		case <-loopCtx.Done():
			return
		default:
		}

		desc, err := p.queue.Dequeue(loopCtx)
		if err != nil {
			return // context cancelled
		}

		p.runJob(context.Background(), holderID, desc)
	}
}

func (p *Pool) runJob(ctx context.Context, holderID string, desc *models.JobDescriptor) {
	p.active.Add(1)
	defer p.active.Add(-1)

	p.markProcessing(ctx, desc)
	p.broadcast(desc, models.StatusProcessing, "job_started")

	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTTL)
	defer cancel()

	if err := p.admission.WaitAcquire(acquireCtx, holderID, 0); err != nil {
		p.markError(ctx, desc, fmt.Sprintf("gpu acquisition timed out: %v", err))
		p.broadcast(desc, models.StatusError, "job_failed")
		return
	}

	result, err := p.runInBackground(ctx, desc)

	var oomErr *inference.OutOfGPUMemoryError
	if errors.As(err, &oomErr) {
		p.clearCache()
	}
	p.admission.Release(holderID)

	if err != nil {
		p.markError(ctx, desc, err.Error())
		p.broadcast(desc, models.StatusError, "job_failed")
		return
	}

	p.markCompleted(ctx, desc, result)
	p.broadcast(desc, models.StatusCompleted, "job_completed")
}

// runInBackground runs the inference call on its own goroutine so the
// dequeue/admission loop is never blocked inside the synchronous adapter
// call, and remains cancellable via ctx.
func (p *Pool) runInBackground(ctx context.Context, desc *models.JobDescriptor) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("job_id", desc.ID).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in inference adapter")
				done <- outcome{nil, fmt.Errorf("inference adapter panicked: %v", r)}
			}
		}()
		result, err := p.adapter.Run(ctx, desc, func(pct int) {
			p.updateProgress(ctx, desc.ID, pct)
		})
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		return o.result, o.err
	}
}

func (p *Pool) broadcast(desc *models.JobDescriptor, status models.Status, eventType string) {
	if p.events == nil {
		return
	}
	p.events.Broadcast(models.Event{
		Type:      eventType,
		JobID:     desc.ID,
		Kind:      desc.Kind,
		Status:    status,
		Timestamp: time.Now(),
		QueueSize: p.queue.Size() + p.queue.PrioritySize(),
	})
}
