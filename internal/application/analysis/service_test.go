package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/cropcare/internal/adapters/cache"
	"github.com/jbctechsolutions/cropcare/internal/adapters/queue"
	appcapture "github.com/jbctechsolutions/cropcare/internal/application/capture"
	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/analysis"
	"github.com/jbctechsolutions/cropcare/internal/domain/capture"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	domainoffline "github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/testutil"
)

type fakeInference struct {
	mu       sync.Mutex
	resp     *analysis.InferenceResponse
	err      error
	requests []ports.InferenceRequest
}

func (f *fakeInference) Analyze(_ context.Context, req ports.InferenceRequest) (*analysis.InferenceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type harness struct {
	svc        *Service
	backend    *testutil.Backend
	storage    *testutil.Storage
	inference  *fakeInference
	online     *testutil.Online
	cache      *offline.Cache
	queue      *offline.Queue
	reconciler *offline.Reconciler
	spool      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	timeline := "2 weeks"
	h := &harness{
		backend: testutil.NewBackend(),
		storage: testutil.NewStorage(),
		inference: &fakeInference{resp: &analysis.InferenceResponse{
			DiseasePrediction: "<b>Early blight</b>",
			ConfidenceScore:   json.RawMessage(`1.7`),
			SeverityLevel:     "extreme",
			TreatmentSteps:    []string{"Remove infected leaves", "  "},
			Timeline:          &timeline,
		}},
		online: testutil.NewOnline(true),
		spool:  t.TempDir(),
	}
	store := queue.NewMemoryQueue()
	h.cache = offline.NewCache(cache.NewMemoryCache(0), nil)
	h.queue = offline.NewQueue(store, nil)
	h.reconciler = offline.NewReconciler(store, h.cache, 0, nil, nil)

	pipeline := appcapture.NewPipeline(nil, h.storage, appcapture.Config{
		Compress: capture.CompressOptions{MaxSizeMB: 1, MaxDimension: 256},
	}, nil, nil)
	h.svc = NewService(h.backend, h.storage, h.inference, pipeline, h.cache, h.queue, testutil.Identity("farmer-1"),
		Config{SpoolDir: h.spool}, nil, nil,
		WithOnline(h.online.Get),
		WithLanguage(func(context.Context) string { return "hi" }),
	)
	h.svc.Register(h.reconciler, nil)
	return h
}

func (h *harness) request(t *testing.T) Request {
	return Request{Image: testutil.JPEG(t, 64, 48), CropType: " tomato ", Location: &analysis.Location{Lat: 18.5, Lng: 73.8}}
}

func TestAnalyze_CompletesAndSanitizes(t *testing.T) {
	h := newHarness(t)
	res, err := h.svc.Analyze(context.Background(), h.request(t))
	require.NoError(t, err)

	a := res.Analysis
	assert.Equal(t, analysis.StatusCompleted, a.Status)
	assert.Equal(t, "tomato", a.CropType)
	assert.Equal(t, "Early blight", a.Prediction())
	assert.Equal(t, 1.0, *a.ConfidenceScore)
	assert.Equal(t, analysis.SeverityLow, *a.SeverityLevel)
	require.NotNil(t, res.Recommendation)
	assert.Equal(t, []string{"Remove infected leaves"}, res.Recommendation.TreatmentSteps)
	assert.False(t, res.Queued)

	require.Len(t, h.inference.requests, 1)
	req := h.inference.requests[0]
	assert.Equal(t, a.ID, req.AnalysisID)
	assert.Equal(t, "farmer-1", req.UserID)
	assert.Equal(t, "hi", req.Language)
	assert.Contains(t, req.ImageURL, a.ImagePath)

	rows := h.backend.Rows(ports.TableAnalyses)
	require.Len(t, rows, 1)
	assert.Equal(t, "completed", rows[0]["status"])
	assert.Len(t, h.backend.Rows(ports.TableRecommendations), 1)
	assert.Len(t, h.storage.Objects(), 1)
}

func TestAnalyze_ValidationHappensBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no image", func(r *Request) { r.Image = nil }},
		{"blank crop", func(r *Request) { r.CropType = "  " }},
		{"bad location", func(r *Request) { r.Location = &analysis.Location{Lat: 91} }},
		{"undecodable image", func(r *Request) { r.Image = []byte("not an image") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := h.request(t)
			tt.mutate(&req)
			_, err := h.svc.Analyze(context.Background(), req)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
			assert.Empty(t, h.storage.Objects())
			assert.Empty(t, h.backend.Rows(ports.TableAnalyses))
		})
	}
}

func TestAnalyze_UploadFailureCreatesNoRecord(t *testing.T) {
	h := newHarness(t)
	h.storage.Err = domainerrors.NewError(domainerrors.CodeService, "bucket missing", nil)

	_, err := h.svc.Analyze(context.Background(), h.request(t))
	assert.ErrorIs(t, err, domainerrors.ErrUpload)
	assert.Empty(t, h.backend.Rows(ports.TableAnalyses))
	assert.Empty(t, h.inference.requests)
}

func TestAnalyze_InferenceFailureMarksFailed(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"rate limited", domainerrors.NewError(domainerrors.CodeRateLimited, "slow down", nil), domainerrors.ErrRateLimited},
		{"quota", domainerrors.NewError(domainerrors.CodeQuotaExceeded, "out of credits", nil), domainerrors.ErrQuotaExceeded},
		{"untyped", errors.New("boom"), domainerrors.ErrServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.inference.err = tt.err

			res, err := h.svc.Analyze(context.Background(), h.request(t))
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, res)
			assert.Equal(t, analysis.StatusFailed, res.Analysis.Status)

			rows := h.backend.Rows(ports.TableAnalyses)
			require.Len(t, rows, 1)
			assert.Equal(t, "failed", rows[0]["status"])
			assert.Empty(t, h.backend.Rows(ports.TableRecommendations))
			assert.Len(t, h.inference.requests, 1, "no automatic retry")
		})
	}
}

func TestAnalyze_StorageFailureAfterInferenceMarksFailed(t *testing.T) {
	h := newHarness(t)
	h.backend.TableErr[ports.TableRecommendations] = domainerrors.NewError(domainerrors.CodeService, "insert rejected", nil)

	res, err := h.svc.Analyze(context.Background(), h.request(t))
	assert.ErrorIs(t, err, domainerrors.ErrServiceError)
	require.NotNil(t, res)
	assert.Equal(t, analysis.StatusFailed, res.Analysis.Status)
	assert.Nil(t, res.Recommendation)

	rows := h.backend.Rows(ports.TableAnalyses)
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0]["status"])
	assert.Len(t, h.inference.requests, 1)
	n, _ := h.queue.Len(context.Background())
	assert.Zero(t, n, "stored failures are not queued")
}

func TestAnalyze_OfflineQueuesAndReplays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.online.Set(false)

	res, err := h.svc.Analyze(ctx, h.request(t))
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, analysis.StatusPending, res.Analysis.Status)
	assert.FileExists(t, res.Analysis.ImagePath)
	assert.Empty(t, h.storage.Objects())

	list, err := h.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Analysis.ID, list[0].ID)

	got, err := h.svc.Get(ctx, res.Analysis.ID)
	require.NoError(t, err)
	assert.True(t, got.Queued)

	queued, err := h.svc.QueuedIDs(ctx)
	require.NoError(t, err)
	assert.True(t, queued[res.Analysis.ID])

	assert.ErrorIs(t, h.svc.Delete(ctx, res.Analysis.ID), domainerrors.ErrValidation)

	h.online.Set(true)
	drain := h.reconciler.Drain(ctx)
	assert.Equal(t, 1, drain.Applied)

	rows := h.backend.Rows(ports.TableAnalyses)
	require.Len(t, rows, 1)
	assert.Equal(t, res.Analysis.ID, rows[0]["id"], "client id is kept")
	assert.Equal(t, "completed", rows[0]["status"])
	assert.Equal(t, "hi", h.inference.requests[0].Language)

	_, statErr := os.Stat(res.Analysis.ImagePath)
	assert.True(t, os.IsNotExist(statErr), "spool file removed")

	list, err = h.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, analysis.StatusCompleted, list[0].Status)

	queued, err = h.svc.QueuedIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestAnalyze_TransientUploadFailureQueues(t *testing.T) {
	h := newHarness(t)
	h.storage.Err = testutil.NetworkError()

	res, err := h.svc.Analyze(context.Background(), h.request(t))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	n, _ := h.queue.Len(context.Background())
	assert.Equal(t, 1, n)
}

func TestApplyQueued_InferenceFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.online.Set(false)
	_, err := h.svc.Analyze(ctx, h.request(t))
	require.NoError(t, err)

	h.online.Set(true)
	h.inference.err = domainerrors.NewError(domainerrors.CodeService, "model crashed", nil)
	drain := h.reconciler.Drain(ctx)
	assert.Equal(t, 1, drain.Applied, "a failed analysis on the server ends the operation")

	rows := h.backend.Rows(ports.TableAnalyses)
	require.Len(t, rows, 1)
	assert.Equal(t, "failed", rows[0]["status"])
}

func TestList_FallsBackToCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Analyze(ctx, h.request(t))
	require.NoError(t, err)
	list, err := h.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	h.backend.Err = testutil.NetworkError()
	cached, err := h.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, list[0].ID, cached[0].ID)

	h.backend.Err = domainerrors.NewError(domainerrors.CodeAuth, "expired", nil)
	_, err = h.svc.List(ctx)
	assert.Error(t, err, "non-network failures are not hidden")
}

func TestGetAndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Analyze(ctx, h.request(t))
	require.NoError(t, err)
	id := res.Analysis.ID

	got, err := h.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Recommendation)
	assert.Equal(t, id, got.Recommendation.AnalysisID)

	_, err = h.svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	require.NoError(t, h.svc.Relabel(ctx, id, "potato"))
	assert.Equal(t, "potato", h.backend.Rows(ports.TableAnalyses)[0]["crop_type"])

	require.NoError(t, h.svc.Delete(ctx, id))
	assert.Empty(t, h.backend.Rows(ports.TableAnalyses))
	assert.Empty(t, h.backend.Rows(ports.TableRecommendations))
	assert.Empty(t, h.storage.Objects())
}

func TestDelete_QueuedWhileOffline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Analyze(ctx, h.request(t))
	require.NoError(t, err)

	h.online.Set(false)
	require.NoError(t, h.svc.Delete(ctx, res.Analysis.ID))
	assert.Len(t, h.backend.Rows(ports.TableAnalyses), 1)

	h.online.Set(true)
	assert.Equal(t, 1, h.reconciler.Drain(ctx).Applied)
	assert.Empty(t, h.backend.Rows(ports.TableAnalyses))
}

func TestApplyQueued_RejectsSpoolPathOutsideSpoolDir(t *testing.T) {
	h := newHarness(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("not ours"), 0o600))

	payload, err := json.Marshal(queuedAnalysis{
		Analysis:  &analysis.CropAnalysis{ID: "a-1", UserID: "farmer-1", CropType: "okra"},
		SpoolPath: outside,
	})
	require.NoError(t, err)
	op := &domainoffline.PendingOperation{
		ID:         "op-1",
		EntityType: domainoffline.EntityAnalysis,
		Action:     domainoffline.ActionCreate,
		Payload:    payload,
	}

	err = h.svc.ApplyQueued(context.Background(), op)
	assert.Equal(t, domainerrors.CodeUpload, domainerrors.CodeOf(err))
	assert.Empty(t, h.storage.Objects())

	_, statErr := os.Stat(outside)
	assert.NoError(t, statErr, "file outside the spool dir is left alone")
}
