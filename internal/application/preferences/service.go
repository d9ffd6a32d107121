// Package preferences reads and writes the farmer's preferences through the
// local cache, queueing writes while offline.
package preferences

import (
	"context"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	domainoffline "github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/domain/preference"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// Option configures a Service.
type Option func(*Service)

// WithOnline sets the connectivity check. Without it the service assumes it is online.
func WithOnline(fn func() bool) Option {
	return func(s *Service) { s.online = fn }
}

// WithClock replaces the time source used to stamp updates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the preferences store.
type Service struct {
	backend  ports.BackendPort
	cache    *offline.Cache
	queue    *offline.Queue
	identity ports.IdentityPort
	logger   *logging.Logger

	online func() bool
	now    func() time.Time
}

// NewService creates the preferences store.
func NewService(backend ports.BackendPort, cache *offline.Cache, queue *offline.Queue, identity ports.IdentityPort, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		backend:  backend,
		cache:    cache,
		queue:    queue,
		identity: identity,
		logger:   logger,
		online:   func() bool { return true },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user's preferences. A user with nothing stored gets the
// defaults. Offline or failed reads fall back to the cache, then to defaults.
func (s *Service) Get(ctx context.Context) (preference.Preferences, error) {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return preference.Preferences{}, err
	}
	return s.load(ctx, userID)
}

func (s *Service) load(ctx context.Context, userID string) (preference.Preferences, error) {
	var cached preference.Preferences
	if s.cache.Get(ctx, offline.PreferencesKey(userID), &cached) {
		return cached.Normalize(), nil
	}
	if !s.online() {
		return preference.Defaults(userID), nil
	}

	prefs, err := s.fetch(ctx, userID)
	if err != nil {
		if domainerrors.IsTransient(err) {
			s.logger.InfoContext(ctx, "preferences unavailable, using defaults", "error", err)
			return preference.Defaults(userID), nil
		}
		return preference.Preferences{}, err
	}
	return prefs, nil
}

// Refresh refetches the user's preferences into the cache.
func (s *Service) Refresh(ctx context.Context) error {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return err
	}
	_, err = s.fetch(ctx, userID)
	return err
}

func (s *Service) fetch(ctx context.Context, userID string) (preference.Preferences, error) {
	var rows []preference.Preferences
	err := s.backend.Select(ctx, ports.TablePreferences, ports.Query{
		Filter: ports.Filter{"user_id": userID},
		Limit:  1,
	}, &rows)
	if err != nil {
		return preference.Preferences{}, err
	}

	prefs := preference.Defaults(userID)
	if len(rows) > 0 {
		prefs = rows[0].Normalize()
	}
	s.remember(ctx, prefs)
	return prefs, nil
}

func (s *Service) remember(ctx context.Context, prefs preference.Preferences) {
	if err := s.cache.Set(ctx, offline.PreferencesKey(prefs.UserID), prefs, 0); err != nil {
		s.logger.WarnContext(ctx, "failed to cache preferences", "error", err)
	}
}

// Update merges patch into the current preferences. The result is cached at
// once; the backend is written now when online, otherwise the full row is
// queued. The last write wins.
func (s *Service) Update(ctx context.Context, patch preference.Patch) (preference.Preferences, error) {
	if err := patch.Validate(); err != nil {
		return preference.Preferences{}, domainerrors.NewError(domainerrors.CodeValidation, err.Error(), err)
	}
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return preference.Preferences{}, err
	}

	base, err := s.load(ctx, userID)
	if err != nil {
		return preference.Preferences{}, err
	}
	merged, err := preference.Merge(base, patch, s.now())
	if err != nil {
		return preference.Preferences{}, domainerrors.NewError(domainerrors.CodeValidation, err.Error(), err)
	}
	merged.UserID = userID
	s.remember(ctx, merged)

	if s.online() {
		err := s.apply(ctx, merged)
		if err == nil || !domainerrors.IsTransient(err) {
			return merged, err
		}
		s.logger.InfoContext(ctx, "preferences write failed, queueing", "error", err)
	}
	if _, err := s.queue.Enqueue(ctx, domainoffline.EntityPreference, domainoffline.ActionUpdate, merged); err != nil {
		return merged, err
	}
	return merged, nil
}

func (s *Service) apply(ctx context.Context, prefs preference.Preferences) error {
	return s.backend.Upsert(ctx, ports.TablePreferences, prefs, "user_id")
}

// Reset removes the stored row so the user falls back to defaults.
func (s *Service) Reset(ctx context.Context) error {
	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.Remove(ctx, offline.PreferencesKey(userID)); err != nil {
		s.logger.WarnContext(ctx, "failed to drop cached preferences", "error", err)
	}
	if s.online() {
		err := s.remove(ctx, userID)
		if err == nil || !domainerrors.IsTransient(err) {
			return err
		}
	}
	_, err = s.queue.Enqueue(ctx, domainoffline.EntityPreference, domainoffline.ActionDelete, preference.Preferences{UserID: userID})
	return err
}

func (s *Service) remove(ctx context.Context, userID string) error {
	return s.backend.Delete(ctx, ports.TablePreferences, ports.Filter{"user_id": userID})
}

// Register installs the replay handlers for queued preference writes and the
// periodic refresh.
func (s *Service) Register(r *offline.Reconciler, refresher *offline.Refresher) {
	upsert := func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var prefs preference.Preferences
		if err := op.Decode(&prefs); err != nil {
			return err
		}
		return s.apply(ctx, prefs)
	}
	r.Register(domainoffline.EntityPreference, domainoffline.ActionCreate, upsert)
	r.Register(domainoffline.EntityPreference, domainoffline.ActionUpdate, upsert)
	r.Register(domainoffline.EntityPreference, domainoffline.ActionDelete, func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var prefs preference.Preferences
		if err := op.Decode(&prefs); err != nil {
			return err
		}
		return s.remove(ctx, prefs.UserID)
	})
	if refresher != nil {
		refresher.Register(domainoffline.EntityPreference, s.Refresh)
	}
}
