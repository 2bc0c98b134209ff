// Package gpuadmit implements the GPU admission controller: a mutex-guarded
// holder set gating concurrent access to one shared GPU, translated from
// GPUResourceManager's asyncio.Lock + set idiom into a sync.Mutex + map.
package gpuadmit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/SystemGuard-official/docparse/internal/models"
)

// DefaultPollInterval is the interval WaitAcquire retries at when the
// controller is at capacity — mirrors gpu_manager.py's wait_for_gpu backoff.
const DefaultPollInterval = 2 * time.Second

// MemoryStatsFunc reports live GPU memory usage. ok=false means the stats are
// unavailable (no CUDA-equivalent runtime in this deployment), in which case
// the memory-threshold check is skipped entirely (§4.B).
type MemoryStatsFunc func() (info *interfaces.MemoryInfo, ok bool)

// rateLimitedStats wraps fn in a token-bucket limiter so repeated callers —
// WaitAcquire's poll loop and concurrent Stats() callers alike — never query
// the underlying stats source faster than every, returning the last observed
// reading for calls that arrive inside the same window.
func rateLimitedStats(fn MemoryStatsFunc, every time.Duration) MemoryStatsFunc {
	limiter := rate.NewLimiter(rate.Every(every), 1)
	var mu sync.Mutex
	var lastInfo *interfaces.MemoryInfo
	var lastOK bool

	return func() (*interfaces.MemoryInfo, bool) {
		if limiter.Allow() {
			info, ok := fn()
			mu.Lock()
			lastInfo, lastOK = info, ok
			mu.Unlock()
			return info, ok
		}
		mu.Lock()
		defer mu.Unlock()
		return lastInfo, lastOK
	}
}

// Controller is a single shared-GPU admission gate.
type Controller struct {
	mu              sync.Mutex
	holders         map[string]struct{}
	capacity        int
	memoryThreshold float64 // GiB; allocated usage above this denies acquisition
	statsFn         MemoryStatsFunc
	logger          *common.Logger
}

// New creates a Controller allowing at most capacity concurrent holders.
// The stats callback is throttled to DefaultPollInterval regardless of how
// often callers invoke TryAcquire/Stats, so a misconfigured caller can't
// hammer the underlying GPU-stats source harder than the documented poll
// cadence (§4.B).
func New(capacity int, memoryThresholdGiB float64, statsFn MemoryStatsFunc, logger *common.Logger) *Controller {
	if capacity <= 0 {
		capacity = 1
	}
	if statsFn == nil {
		statsFn = func() (*interfaces.MemoryInfo, bool) { return nil, false }
	}
	return &Controller{
		holders:         make(map[string]struct{}),
		capacity:        capacity,
		memoryThreshold: memoryThresholdGiB,
		statsFn:         rateLimitedStats(statsFn, DefaultPollInterval),
		logger:          logger,
	}
}

// TryAcquire attempts a non-blocking acquisition for holderID. Re-acquiring
// under an already-held id is rejected (logged, not an error) per §4.B.
func (c *Controller) TryAcquire(holderID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.holders[holderID]; held {
		c.logger.Warn().Str("holder_id", holderID).Msg("duplicate GPU acquire rejected")
		return false
	}

	if len(c.holders) >= c.capacity {
		return false
	}

	if info, ok := c.statsFn(); ok && info.UsedGiB > c.memoryThreshold {
		c.logger.Warn().
			Str("holder_id", holderID).
			Float64("used_gib", info.UsedGiB).
			Float64("threshold_gib", c.memoryThreshold).
			Msg("GPU acquire denied, memory usage above threshold")
		return false
	}

	c.holders[holderID] = struct{}{}
	return true
}

// WaitAcquire polls TryAcquire at pollInterval until it succeeds or ctx is
// done. The caller is expected to wrap ctx with a timeout (§4.B's configured
// GPU_ACQUIRE_TIMEOUT_S) — this method enforces no timeout of its own.
func (c *Controller) WaitAcquire(ctx context.Context, holderID string, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if c.TryAcquire(holderID) {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gpu acquire timed out for %s: %w", holderID, ctx.Err())
		case <-ticker.C:
			if c.TryAcquire(holderID) {
				return nil
			}
		}
	}
}

// Release frees holderID. Releasing an id that isn't held is a logged
// anomaly, not an error — idempotent per §4.B.
func (c *Controller) Release(holderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.holders[holderID]; !held {
		c.logger.Warn().Str("holder_id", holderID).Msg("GPU release by holder not in active set")
		return
	}
	delete(c.holders, holderID)
}

// CurrentHolders returns a snapshot of active holder ids.
func (c *Controller) CurrentHolders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	holders := make([]string, 0, len(c.holders))
	for h := range c.holders {
		holders = append(holders, h)
	}
	return holders
}

// Capacity returns the configured maximum concurrent holders.
func (c *Controller) Capacity() int {
	return c.capacity
}

// Stats reports the current admission state for the /gpu/status endpoint.
func (c *Controller) Stats() *models.GPUStatus {
	c.mu.Lock()
	holders := make([]string, 0, len(c.holders))
	for h := range c.holders {
		holders = append(holders, h)
	}
	available := len(c.holders) < c.capacity
	c.mu.Unlock()

	var mem *models.GPUMemoryInfo
	if info, ok := c.statsFn(); ok {
		mem = &models.GPUMemoryInfo{TotalGiB: info.TotalGiB, UsedGiB: info.UsedGiB, FreeGiB: info.FreeGiB}
	}

	return &models.GPUStatus{
		MaxConcurrent: c.capacity,
		CurrentUsers:  holders,
		Available:     available,
		MemoryInfo:    mem,
	}
}

var _ interfaces.AdmissionController = (*Controller)(nil)
