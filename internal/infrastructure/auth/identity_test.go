package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestIdentify(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	valid := signToken(t, &Claims{
		Email: "farmer@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	expired := signToken(t, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
	}})
	noSubject := signToken(t, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}})

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"valid", valid, nil},
		{"expired", expired, domainerrors.ErrSessionExpired},
		{"no subject", noSubject, domainerrors.ErrUnauthorized},
		{"empty", "", domainerrors.ErrUnauthorized},
		{"garbage", "not.a.token", domainerrors.ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Identify(tt.token, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Identify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Identify() error = %v", err)
			}
			if id.UserID != "user-1" || id.Email != "farmer@example.com" || id.Role != "authenticated" {
				t.Errorf("Identify() = %+v", id)
			}
			if !id.ExpiresAt.Equal(now.Add(time.Hour)) {
				t.Errorf("ExpiresAt = %v", id.ExpiresAt)
			}
		})
	}
}

func TestIdentity_NeedsRefresh(t *testing.T) {
	now := time.Now()
	id := &Identity{UserID: "u", ExpiresAt: now.Add(2 * time.Minute)}
	if !id.NeedsRefresh(now) {
		t.Error("token expiring within the window should need refresh")
	}
	if id.Expired(now) {
		t.Error("token should not be expired yet")
	}

	id.ExpiresAt = now.Add(time.Hour)
	if id.NeedsRefresh(now) {
		t.Error("fresh token should not need refresh")
	}

	if (&Identity{UserID: "u"}).Expired(now) {
		t.Error("token without exp never expires locally")
	}
}
