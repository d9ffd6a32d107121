package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/cropcare/internal/adapters/cache"
	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/testutil"
)

type fakeWeather struct {
	calls int
	err   error
}

func (f *fakeWeather) Forecast(_ context.Context, lat, lng float64) (*ports.Forecast, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ports.Forecast{
		Location: "Nashik",
		Current:  ports.Conditions{TemperatureC: 29.5, Summary: "Sunny"},
	}, nil
}

func TestForecast_CachedForTTL(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	c := offline.NewCache(cache.NewMemoryCache(0), nil, offline.WithClock(func() time.Time { return now }))
	w := &fakeWeather{}
	online := testutil.NewOnline(true)
	svc := NewService(w, c, 30*time.Minute, online.Get, nil)
	ctx := context.Background()

	f, err := svc.Forecast(ctx, 19.9975, 73.7898)
	require.NoError(t, err)
	assert.Equal(t, "Nashik", f.Location)

	// rounds to the same key
	_, err = svc.Forecast(ctx, 19.9981, 73.7912)
	require.NoError(t, err)
	assert.Equal(t, 1, w.calls)

	online.Set(false)
	f, err = svc.Forecast(ctx, 19.9975, 73.7898)
	require.NoError(t, err)
	assert.Equal(t, 29.5, f.Current.TemperatureC)

	now = now.Add(31 * time.Minute)
	_, err = svc.Forecast(ctx, 19.9975, 73.7898)
	assert.ErrorIs(t, err, domainerrors.ErrOffline)

	online.Set(true)
	_, err = svc.Forecast(ctx, 19.9975, 73.7898)
	require.NoError(t, err)
	assert.Equal(t, 2, w.calls)
}

func TestForecast_Errors(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng float64
		err      error
		wantCode domainerrors.ErrorCode
	}{
		{"latitude out of range", 91, 0, nil, domainerrors.CodeValidation},
		{"longitude out of range", 0, -181, nil, domainerrors.CodeValidation},
		{"remote failure", 10, 10, domainerrors.NewError(domainerrors.CodeService, "boom", errors.New("500")), domainerrors.CodeService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWeather{err: tt.err}
			svc := NewService(w, offline.NewCache(cache.NewMemoryCache(0), nil), 0, nil, nil)
			_, err := svc.Forecast(context.Background(), tt.lat, tt.lng)
			assert.Equal(t, tt.wantCode, domainerrors.CodeOf(err))
		})
	}
}
