// Package weather serves forecasts for a field position, cached locally so
// the last forecast stays readable offline.
package weather

import (
	"context"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// DefaultTTL is how long a forecast is served from the cache.
const DefaultTTL = 30 * time.Minute

// Service fetches forecasts.
type Service struct {
	weather ports.WeatherPort
	cache   *offline.Cache
	ttl     time.Duration
	online  func() bool
	logger  *logging.Logger
}

// NewService creates a forecast service. online may be nil to assume the device is online.
func NewService(weather ports.WeatherPort, cache *offline.Cache, ttl time.Duration, online func() bool, logger *logging.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if online == nil {
		online = func() bool { return true }
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{weather: weather, cache: cache, ttl: ttl, online: online, logger: logger}
}

// Forecast returns the forecast for a position. A cached forecast younger
// than the ttl is returned without a remote call. Offline, a missing entry
// is ErrOffline.
func (s *Service) Forecast(ctx context.Context, lat, lng float64) (*ports.Forecast, error) {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, domainerrors.Validation("coordinates out of range: %f, %f", lat, lng)
	}

	key := offline.WeatherKey(lat, lng)
	var cached ports.Forecast
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}
	if !s.online() {
		return nil, domainerrors.ErrOffline
	}

	forecast, err := s.weather.Forecast(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, forecast, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to cache forecast", "error", err)
	}
	return forecast, nil
}
