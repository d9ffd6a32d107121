// Package auth reads the signed-in user's identity from a backend access token.
//
// Tokens are parsed without signature verification. The backend verifies every
// request; the client only needs the subject and expiry to key its local data
// and to decide when to refresh.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// RefreshWindow is how long before expiry a session should be refreshed.
const RefreshWindow = 5 * time.Minute

// Claims are the access-token claims the client cares about.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the user a token was issued to.
type Identity struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the identity is past its expiry at now.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// NeedsRefresh reports whether the token expires within RefreshWindow of now.
func (i *Identity) NeedsRefresh(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.Add(RefreshWindow).After(i.ExpiresAt)
}

// Parse extracts the identity from token without checking expiry.
func Parse(token string) (*Identity, error) {
	if token == "" {
		return nil, domainerrors.NewError(domainerrors.CodeAuth, "no access token", nil)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, domainerrors.NewError(domainerrors.CodeAuth, "malformed access token", err)
	}
	if claims.Subject == "" {
		return nil, domainerrors.NewError(domainerrors.CodeAuth, "access token has no subject", nil)
	}

	id := &Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Identify parses token and rejects it once expired.
func Identify(token string, now time.Time) (*Identity, error) {
	id, err := Parse(token)
	if err != nil {
		return nil, err
	}
	if id.Expired(now) {
		return nil, fmt.Errorf("token for %s expired at %s: %w", id.UserID, id.ExpiresAt.Format(time.RFC3339), domainerrors.ErrSessionExpired)
	}
	return id, nil
}
