// Package session keeps the signed-in user's backend session.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/auth"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
)

// SessionTTL is how long a stored session is kept locally. The refresh token
// usually outlives the access token by far; the backend rejects it when stale.
const SessionTTL = 30 * 24 * time.Hour

// TokenSink receives the access token to attach to backend requests.
type TokenSink interface {
	SetAccessToken(token string)
}

// Sealer encrypts the session before it reaches the local database.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithSealer stores the session encrypted with s.
func WithSealer(s Sealer) Option {
	return func(m *Manager) { m.sealer = s }
}

// Manager signs users in, restores the stored session and refreshes it
// before expiry. It implements ports.IdentityPort.
type Manager struct {
	auth   ports.AuthPort
	cache  *offline.Cache
	sink   TokenSink
	sealer Sealer
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *ports.Session
}

// NewManager creates a session manager. sink may be nil.
func NewManager(authPort ports.AuthPort, cache *offline.Cache, sink TokenSink, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{auth: authPort, cache: cache, sink: sink, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login signs in with email and password and stores the session.
func (m *Manager) Login(ctx context.Context, email, password string) (*ports.Session, error) {
	sess, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.store(ctx, sess)
	m.logger.InfoContext(logging.WithUserID(ctx, sess.UserID), "signed in", "email", sess.Email)
	return sess, nil
}

// UseToken installs a bare access token, e.g. from the environment.
// The token cannot be refreshed.
func (m *Manager) UseToken(ctx context.Context, token string) (*ports.Session, error) {
	id, err := auth.Identify(token, m.now())
	if err != nil {
		return nil, err
	}
	sess := &ports.Session{AccessToken: token, UserID: id.UserID, Email: id.Email, ExpiresAt: id.ExpiresAt}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetAccessToken(token)
	}
	return sess, nil
}

// Current returns the active session, loading it from the local cache and
// refreshing it when it is about to expire. A failed refresh caused by lost
// connectivity keeps the old session so offline work can continue.
func (m *Manager) Current(ctx context.Context) (*ports.Session, error) {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()

	if sess == nil {
		stored, ok := m.load(ctx)
		if !ok {
			return nil, domainerrors.NewError(domainerrors.CodeAuth, "not signed in", domainerrors.ErrUnauthorized)
		}
		sess = stored
		m.mu.Lock()
		m.current = sess
		m.mu.Unlock()
		if m.sink != nil {
			m.sink.SetAccessToken(sess.AccessToken)
		}
	}

	now := m.now()
	if !sess.ExpiresAt.IsZero() && now.Add(auth.RefreshWindow).After(sess.ExpiresAt) {
		return m.refresh(ctx, sess, now)
	}
	return sess, nil
}

func (m *Manager) refresh(ctx context.Context, sess *ports.Session, now time.Time) (*ports.Session, error) {
	expired := !now.Before(sess.ExpiresAt)
	if sess.RefreshToken == "" {
		if expired {
			return nil, domainerrors.NewError(domainerrors.CodeAuth, "session expired", domainerrors.ErrSessionExpired)
		}
		return sess, nil
	}

	fresh, err := m.auth.Refresh(ctx, sess.RefreshToken)
	switch {
	case err == nil:
		m.store(ctx, fresh)
		m.logger.DebugContext(ctx, "session refreshed", "expires_at", fresh.ExpiresAt)
		return fresh, nil
	case domainerrors.IsTransient(err):
		m.logger.DebugContext(ctx, "session refresh deferred while offline", "error", err)
		return sess, nil
	case expired:
		return nil, domainerrors.NewError(domainerrors.CodeAuth, "session expired", domainerrors.ErrSessionExpired)
	default:
		m.logger.WarnContext(ctx, "session refresh failed", "error", err)
		return sess, nil
	}
}

// UserID returns the signed-in user's id.
func (m *Manager) UserID(ctx context.Context) (string, error) {
	sess, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	if sess.UserID != "" {
		return sess.UserID, nil
	}
	id, err := auth.Parse(sess.AccessToken)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

// Logout forgets the session locally.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetAccessToken("")
	}
	if m.cache == nil {
		return nil
	}
	return m.cache.Remove(ctx, offline.SessionKey)
}

func (m *Manager) store(ctx context.Context, sess *ports.Session) {
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	if m.sink != nil {
		m.sink.SetAccessToken(sess.AccessToken)
	}
	if m.cache == nil {
		return
	}

	var value any = sess
	if m.sealer != nil {
		raw, err := json.Marshal(sess)
		if err == nil {
			value, err = m.sealer.Encrypt(string(raw))
		}
		if err != nil {
			m.logger.WarnContext(ctx, "failed to seal session", "error", err)
			return
		}
	}
	if err := m.cache.Set(ctx, offline.SessionKey, value, SessionTTL); err != nil {
		m.logger.WarnContext(ctx, "failed to store session", "error", err)
	}
}

// load reads the stored session. A session that cannot be opened, e.g.
// after the key file was lost, counts as signed out.
func (m *Manager) load(ctx context.Context) (*ports.Session, bool) {
	if m.cache == nil {
		return nil, false
	}
	if m.sealer == nil {
		var stored ports.Session
		if !m.cache.Get(ctx, offline.SessionKey, &stored) {
			return nil, false
		}
		return &stored, true
	}

	var sealed string
	if !m.cache.Get(ctx, offline.SessionKey, &sealed) {
		return nil, false
	}
	raw, err := m.sealer.Decrypt(sealed)
	if err != nil {
		m.logger.WarnContext(ctx, "stored session unreadable", "error", err)
		return nil, false
	}
	var stored ports.Session
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		m.logger.WarnContext(ctx, "stored session unreadable", "error", err)
		return nil, false
	}
	return &stored, true
}
