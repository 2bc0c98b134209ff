package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SystemGuard-official/docparse/internal/models"
	"github.com/SystemGuard-official/docparse/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := testutil.JobStoreDB(t)
	return NewWithDB(db, testutil.SilentLogger())
}

func TestGet_AbsentIDReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Get(context.Background(), "never-put")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPutThenGet_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &models.JobRecord{ID: "job-1", Kind: models.KindOCR, Status: models.StatusPending}
	require.NoError(t, s.Put(ctx, rec))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestPut_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &models.JobRecord{ID: "job-1", Status: models.StatusPending}))
	require.NoError(t, s.Put(ctx, &models.JobRecord{ID: "job-1", Status: models.StatusCompleted}))

	got, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestPut_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.Put(context.Background(), &models.JobRecord{Status: models.StatusPending})
	assert.Error(t, err)
}
