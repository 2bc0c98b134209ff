package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SystemGuard-official/docparse/internal/app"
	"github.com/SystemGuard-official/docparse/internal/common"
	"github.com/SystemGuard-official/docparse/internal/events"
	"github.com/SystemGuard-official/docparse/internal/gpuadmit"
	"github.com/SystemGuard-official/docparse/internal/jobqueue"
	"github.com/SystemGuard-official/docparse/internal/models"
	"github.com/SystemGuard-official/docparse/internal/worker"
)

// fakeStore is an in-memory stand-in for jobstore.Store, good enough to drive
// a real HTTP round trip through handleSubmit/handleStatus without a
// SurrealDB instance.
type fakeStore struct {
	mu   sync.Mutex
	recs map[string]*models.JobRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*models.JobRecord)}
}

func (s *fakeStore) Put(_ context.Context, rec *models.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Close() error { return nil }

// stubOCRAdapter completes every job immediately with a trivial result.
type stubOCRAdapter struct{}

func (stubOCRAdapter) Run(_ context.Context, desc *models.JobDescriptor, onProgress func(pct int)) (any, error) {
	if onProgress != nil {
		onProgress(100)
	}
	return &models.OCRResult{Filename: desc.Filename, TotalDetections: 1}, nil
}

func newTestApp(t *testing.T) (*app.App, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	logger := common.NewSilentLogger()
	admission := gpuadmit.New(1, 0, nil, logger)

	hub := events.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Stop)

	pool := worker.New(worker.Config{
		Name:           "ocr",
		Kind:           models.KindOCR,
		Workers:        1,
		Queue:          jobqueue.New(),
		Admission:      admission,
		Store:          store,
		Adapter:        stubOCRAdapter{},
		AcquireTimeout: 5 * time.Second,
		Events:         hub,
		Logger:         logger,
	})
	t.Cleanup(pool.Stop)

	cfg := common.NewDefaultConfig()
	cfg.Upload.AllowedExtensions = []string{".png"}
	cfg.Upload.AllowedMimeTypes = []string{"image/png"}
	cfg.Upload.MaxFileSizeBytes = 1 << 20

	a := &app.App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Admission: admission,
		Events:    hub,
		OCRPool:   pool,
	}
	return a, store
}

// postOCR drives a real multipart POST /ocr through handler and returns the
// submitted job_id, using reqCtx as the request's context (so callers can
// simulate net/http cancelling it once the handler returns).
func postOCR(t *testing.T, handler http.Handler, reqCtx context.Context, filename string) string {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, filename)},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("fake-png-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/ocr", &body).WithContext(reqCtx)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		JobID   string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

// TestHandleSubmit_PoolSurvivesAfterFirstRequestContextEnds is a regression
// test for Pool.Start running against a pool-lifetime context rather than
// the first submitting request's r.Context(). A real net/http server
// cancels a request's context the instant its handler returns; this test
// reproduces that by cancelling the first request's context right after
// ServeHTTP returns, then proves a second, independent submission still
// reaches a worker and completes instead of sitting in the queue forever.
func TestHandleSubmit_PoolSurvivesAfterFirstRequestContextEnds(t *testing.T) {
	a, store := newTestApp(t)
	srv := NewServer(a)
	handler := srv.Handler()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	jobID1 := postOCR(t, handler, firstCtx, "a.png")
	cancelFirst()

	require.Eventually(t, func() bool {
		rec, err := store.Get(context.Background(), jobID1)
		return err == nil && rec != nil && rec.Status == models.StatusCompleted
	}, time.Second, 10*time.Millisecond)

	jobID2 := postOCR(t, handler, context.Background(), "b.png")
	require.Eventually(t, func() bool {
		rec, err := store.Get(context.Background(), jobID2)
		return err == nil && rec != nil && rec.Status == models.StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestHandleStatus_UnknownJobReturns404(t *testing.T) {
	a, _ := newTestApp(t)
	srv := NewServer(a)

	req := httptest.NewRequest(http.MethodGet, "/ocr/status/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Job ID not found")
}
