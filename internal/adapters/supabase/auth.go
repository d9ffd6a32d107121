package supabase

import (
	"context"
	"net/http"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// Auth implements ports.AuthPort with the password and refresh-token grants.
type Auth struct {
	client *Client
	now    func() time.Time
}

var _ ports.AuthPort = (*Auth)(nil)

// NewAuth creates an auth adapter.
func NewAuth(client *Client) *Auth {
	return &Auth{client: client, now: time.Now}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignInWithPassword exchanges credentials for a session.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*ports.Session, error) {
	if email == "" || password == "" {
		return nil, errors.Validation("email and password are required")
	}
	return a.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// Refresh exchanges a refresh token for a new session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*ports.Session, error) {
	if refreshToken == "" {
		return nil, errors.NewError(errors.CodeAuth, "no refresh token", nil)
	}
	return a.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (a *Auth) token(ctx context.Context, grant string, body map[string]string) (*ports.Session, error) {
	var out tokenResponse
	if err := a.client.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type="+grant, body, nil, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, errors.NewError(errors.CodeAuth, "auth response has no access token", nil)
	}

	s := &ports.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		UserID:       out.User.ID,
		Email:        out.User.Email,
	}
	switch {
	case out.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(out.ExpiresAt, 0)
	case out.ExpiresIn > 0:
		s.ExpiresAt = a.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return s, nil
}
