package gpuadmit

import (
	"context"
	"testing"
	"time"

	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func TestTryAcquire_RespectsCapacity(t *testing.T) {
	c := New(1, 12.0, nil, testLogger())

	require.True(t, c.TryAcquire("ocr_worker_0"))
	assert.False(t, c.TryAcquire("ocr_worker_1"))

	c.Release("ocr_worker_0")
	assert.True(t, c.TryAcquire("ocr_worker_1"))
}

func TestTryAcquire_DuplicateHolderRejected(t *testing.T) {
	c := New(2, 12.0, nil, testLogger())

	require.True(t, c.TryAcquire("ocr_worker_0"))
	assert.False(t, c.TryAcquire("ocr_worker_0"))
}

func TestRelease_UnknownHolderIsNotFatal(t *testing.T) {
	c := New(1, 12.0, nil, testLogger())
	assert.NotPanics(t, func() { c.Release("never_acquired") })
}

func TestTryAcquire_MemoryThresholdDenies(t *testing.T) {
	stats := func() (*interfaces.MemoryInfo, bool) {
		return &interfaces.MemoryInfo{UsedGiB: 20.0}, true
	}
	c := New(4, 12.0, stats, testLogger())

	assert.False(t, c.TryAcquire("form_parse_worker_0"))
}

func TestTryAcquire_MemoryStatsUnavailableSkipsCheck(t *testing.T) {
	stats := func() (*interfaces.MemoryInfo, bool) { return nil, false }
	c := New(4, 1.0, stats, testLogger())

	assert.True(t, c.TryAcquire("form_parse_worker_0"))
}

func TestWaitAcquire_SucceedsOnceSlotFrees(t *testing.T) {
	c := New(1, 12.0, nil, testLogger())
	require.True(t, c.TryAcquire("holder-a"))

	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Release("holder-a")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := c.WaitAcquire(ctx, "holder-b", 5*time.Millisecond)
	assert.NoError(t, err)
}

func TestWaitAcquire_TimesOut(t *testing.T) {
	c := New(1, 12.0, nil, testLogger())
	require.True(t, c.TryAcquire("holder-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.WaitAcquire(ctx, "holder-b", 5*time.Millisecond)
	assert.Error(t, err)
}

func TestRateLimitedStats_CachesBetweenWindowTicks(t *testing.T) {
	var calls int
	fn := func() (*interfaces.MemoryInfo, bool) {
		calls++
		return &interfaces.MemoryInfo{UsedGiB: float64(calls)}, true
	}
	wrapped := rateLimitedStats(fn, 50*time.Millisecond)

	info, ok := wrapped()
	require.True(t, ok)
	assert.Equal(t, 1.0, info.UsedGiB)

	// Called again immediately, inside the same window — must return the
	// cached reading rather than invoking fn a second time.
	info, ok = wrapped()
	require.True(t, ok)
	assert.Equal(t, 1.0, info.UsedGiB)
	assert.Equal(t, 1, calls)

	time.Sleep(60 * time.Millisecond)
	info, ok = wrapped()
	require.True(t, ok)
	assert.Equal(t, 2.0, info.UsedGiB)
}

func TestStats_ReportsHoldersAndAvailability(t *testing.T) {
	c := New(2, 12.0, nil, testLogger())
	require.True(t, c.TryAcquire("w0"))

	s := c.Stats()
	assert.Equal(t, 2, s.MaxConcurrent)
	assert.ElementsMatch(t, []string{"w0"}, s.CurrentUsers)
	assert.True(t, s.Available)
	assert.Nil(t, s.MemoryInfo)
}
