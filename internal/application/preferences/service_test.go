package preferences

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/cropcare/internal/adapters/cache"
	"github.com/jbctechsolutions/cropcare/internal/adapters/queue"
	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/domain/preference"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/testutil"
)

type harness struct {
	svc        *Service
	backend    *testutil.Backend
	online     *testutil.Online
	cache      *offline.Cache
	queue      *offline.Queue
	reconciler *offline.Reconciler
}

var fixedNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := queue.NewMemoryQueue()
	h := &harness{
		backend: testutil.NewBackend(),
		online:  testutil.NewOnline(true),
	}
	h.cache = offline.NewCache(cache.NewMemoryCache(0), nil)
	h.queue = offline.NewQueue(store, nil)
	h.reconciler = offline.NewReconciler(store, h.cache, 0, nil, nil)
	h.svc = NewService(h.backend, h.cache, h.queue, testutil.Identity("farmer-1"), nil,
		WithOnline(h.online.Get),
		WithClock(func() time.Time { return fixedNow }),
	)
	h.svc.Register(h.reconciler, nil)
	return h
}

func ptr[T any](v T) *T { return &v }

func TestGet_DefaultsWhenNothingStored(t *testing.T) {
	h := newHarness(t)
	prefs, err := h.svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, preference.Defaults("farmer-1"), prefs)
}

func TestGet_ReadsThroughCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.backend.Upsert(ctx, ports.TablePreferences, map[string]any{
		"user_id":  "farmer-1",
		"language": "hi-IN",
		"units":    "furlongs",
	}, "user_id"))

	prefs, err := h.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", prefs.Language)
	assert.Equal(t, preference.UnitsMetric, prefs.Units, "unknown units fall back")

	h.backend.Err = errors.New("must not be called")
	again, err := h.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, prefs, again)
}

func TestGet_Failures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode domainerrors.ErrorCode
	}{
		{"transient falls back to defaults", testutil.NetworkError(), ""},
		{"auth is returned", domainerrors.NewError(domainerrors.CodeAuth, "jwt expired", domainerrors.ErrUnauthorized), domainerrors.CodeAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.Err = tt.err
			prefs, err := h.svc.Get(context.Background())
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, preference.DefaultLanguage, prefs.Language)
				return
			}
			assert.Equal(t, tt.wantCode, domainerrors.CodeOf(err))
		})
	}
}

func TestUpdate_Online(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	prefs, err := h.svc.Update(ctx, preference.Patch{
		Language:      ptr("mr"),
		Notifications: &preference.NotificationPatch{Email: ptr(true)},
	})
	require.NoError(t, err)
	assert.Equal(t, "mr", prefs.Language)
	assert.True(t, prefs.Notifications.Email)
	assert.True(t, prefs.Notifications.Push, "untouched fields keep defaults")
	assert.Equal(t, fixedNow, prefs.UpdatedAt)

	rows := h.backend.Rows(ports.TablePreferences)
	require.Len(t, rows, 1)
	assert.Equal(t, "mr", rows[0]["language"])

	n, err := h.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdate_RejectsInvalidPatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Update(context.Background(), preference.Patch{Units: ptr(preference.Units("cubits"))})
	assert.Equal(t, domainerrors.CodeValidation, domainerrors.CodeOf(err))
	assert.Empty(t, h.backend.Rows(ports.TablePreferences))
}

func TestUpdate_OfflineQueuesLastWriteWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.online.Set(false)

	_, err := h.svc.Update(ctx, preference.Patch{Language: ptr("hi")})
	require.NoError(t, err)
	_, err = h.svc.Update(ctx, preference.Patch{Units: ptr(preference.UnitsImperial)})
	require.NoError(t, err)

	local, err := h.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", local.Language, "second write builds on the first")
	assert.Equal(t, preference.UnitsImperial, local.Units)
	assert.Empty(t, h.backend.Rows(ports.TablePreferences))

	h.online.Set(true)
	res := h.reconciler.Drain(ctx)
	assert.Equal(t, 2, res.Applied)

	rows := h.backend.Rows(ports.TablePreferences)
	require.Len(t, rows, 1)
	assert.Equal(t, "hi", rows[0]["language"])
	assert.Equal(t, "imperial", rows[0]["units"])
}

func TestUpdate_TransientFailureQueues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.Err = testutil.NetworkError()

	prefs, err := h.svc.Update(ctx, preference.Patch{Language: ptr("ta")})
	require.NoError(t, err)
	assert.Equal(t, "ta", prefs.Language)

	n, _ := h.queue.Len(ctx)
	assert.Equal(t, 1, n)

	h.backend.Err = nil
	assert.Equal(t, 1, h.reconciler.Drain(ctx).Applied)
	require.Len(t, h.backend.Rows(ports.TablePreferences), 1)
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Update(ctx, preference.Patch{Language: ptr("te")})
	require.NoError(t, err)

	h.online.Set(false)
	require.NoError(t, h.svc.Reset(ctx))
	assert.Len(t, h.backend.Rows(ports.TablePreferences), 1)

	h.online.Set(true)
	assert.Equal(t, 1, h.reconciler.Drain(ctx).Applied)
	assert.Empty(t, h.backend.Rows(ports.TablePreferences))

	prefs, err := h.svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, preference.DefaultLanguage, prefs.Language)
}
