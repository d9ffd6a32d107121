package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{URL: server.URL + "/", AnonKey: "anon"})
}

func TestNewClient(t *testing.T) {
	c := NewClient(Config{URL: "https://proj.example.co/", AnonKey: "anon"}, WithTimeout(5*time.Second), WithAccessToken("tok"))
	if c.BaseURL() != "https://proj.example.co" {
		t.Errorf("BaseURL() = %q, want trailing slash trimmed", c.BaseURL())
	}
	if c.httpClient.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", c.httpClient.Timeout)
	}
	if c.AccessToken() != "tok" {
		t.Errorf("AccessToken() = %q", c.AccessToken())
	}
}

func TestClient_AuthHeaders(t *testing.T) {
	var gotAuth, gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("apikey")
		w.Write([]byte("[]"))
	})
	tables := NewTables(c)

	var rows []map[string]any
	if err := tables.Select(context.Background(), ports.TableAnalyses, ports.Query{}, &rows); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if gotAuth != "Bearer anon" || gotKey != "anon" {
		t.Errorf("anonymous headers = %q / %q", gotAuth, gotKey)
	}

	c.SetAccessToken("user-token")
	_ = tables.Select(context.Background(), ports.TableAnalyses, ports.Query{}, &rows)
	if gotAuth != "Bearer user-token" {
		t.Errorf("Authorization = %q, want user token", gotAuth)
	}
}

func TestHandleErrorResponse(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
		text   string
	}{
		{http.StatusTooManyRequests, `{"error":"slow down"}`, domainerrors.ErrRateLimited, "slow down"},
		{http.StatusPaymentRequired, `{"message":"credits exhausted"}`, domainerrors.ErrQuotaExceeded, "credits exhausted"},
		{http.StatusUnauthorized, `{"msg":"jwt expired"}`, domainerrors.ErrUnauthorized, "jwt expired"},
		{http.StatusForbidden, ``, domainerrors.ErrUnauthorized, "Forbidden"},
		{http.StatusNotFound, `{"message":"relation does not exist"}`, domainerrors.ErrNotFound, "relation"},
		{http.StatusUnprocessableEntity, `{"error_description":"bad grant"}`, domainerrors.ErrValidation, "bad grant"},
		{http.StatusInternalServerError, `boom`, domainerrors.ErrServiceError, "boom"},
		{http.StatusConflict, `{"message":"The resource already exists"}`, domainerrors.ErrServiceError, "already exists"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			err := NewTables(c).Delete(context.Background(), ports.TableAnalyses, ports.Filter{"id": "a"})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), tt.text) {
				t.Errorf("error %q should contain %q", err.Error(), tt.text)
			}
		})
	}
}

func TestClient_TransportErrorIsNetwork(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	c := NewClient(Config{URL: server.URL, AnonKey: "anon"})
	server.Close()

	err := NewTables(c).Delete(context.Background(), ports.TableAnalyses, ports.Filter{"id": "a"})
	if !errors.Is(err, domainerrors.ErrTransientNetwork) {
		t.Errorf("error = %v, want transient network", err)
	}
	if !domainerrors.IsTransient(err) {
		t.Error("IsTransient() should be true")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, domainerrors.ErrTransientNetwork) {
		t.Errorf("HealthCheck() = %v, want transient network", err)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewTables(c).Delete(ctx, ports.TableAnalyses, ports.Filter{"id": "a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestHealthCheck_AnyStatusIsReachable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}

func TestAuth_SignInWithPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s", r.URL)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "farmer@example.com" || body["password"] != "secret" {
			t.Errorf("body = %v", body)
		}
		io.WriteString(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"user":{"id":"u1","email":"farmer@example.com"}}`)
	})

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	auth := NewAuth(c)
	auth.now = func() time.Time { return now }

	s, err := auth.SignInWithPassword(context.Background(), "farmer@example.com", "secret")
	if err != nil {
		t.Fatalf("SignInWithPassword() error = %v", err)
	}
	if s.AccessToken != "at" || s.RefreshToken != "rt" || s.UserID != "u1" {
		t.Errorf("session = %+v", s)
	}
	if !s.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", s.ExpiresAt)
	}

	if _, err := auth.SignInWithPassword(context.Background(), "", "x"); !errors.Is(err, domainerrors.ErrValidation) {
		t.Errorf("empty email error = %v", err)
	}
	if _, err := auth.Refresh(context.Background(), ""); !errors.Is(err, domainerrors.ErrUnauthorized) {
		t.Errorf("empty refresh token error = %v", err)
	}
}

func TestAuth_RefreshUsesExpiresAt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.URL.Query().Get("grant_type"))
		}
		io.WriteString(w, `{"access_token":"at2","refresh_token":"rt2","expires_at":1767225600,"user":{"id":"u1"}}`)
	})
	s, err := NewAuth(c).Refresh(context.Background(), "rt")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.ExpiresAt.Unix() != 1767225600 || s.AccessToken != "at2" {
		t.Errorf("session = %+v", s)
	}
}
