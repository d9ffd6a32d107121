package ports

import (
	"context"
	"time"
)

// Backend table names.
const (
	TableAnalyses        = "crop_analyses"
	TableRecommendations = "treatment_recommendations"
	TableChatMessages    = "chat_messages"
	TablePreferences     = "user_preferences"
)

// Storage buckets.
const (
	BucketCropImages = "crop-images"
	BucketAvatars    = "avatars"
)

// Filter is an equality filter column -> value.
type Filter map[string]string

// Query narrows a table read.
type Query struct {
	Filter     Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// BackendPort performs row operations against the backend's tables.
// Rows are JSON-encodable values; results are decoded into dest.
type BackendPort interface {
	// Select reads rows matching q into dest (a pointer to a slice).
	Select(ctx context.Context, table string, q Query, dest any) error

	// Insert creates a row and decodes the stored representation into dest when non-nil.
	Insert(ctx context.Context, table string, row any, dest any) error

	// Upsert inserts or replaces a row keyed by onConflict.
	Upsert(ctx context.Context, table string, row any, onConflict string) error

	// Update patches rows matching filter.
	Update(ctx context.Context, table string, filter Filter, patch any) error

	// Delete removes rows matching filter.
	Delete(ctx context.Context, table string, filter Filter) error
}

// ObjectStoragePort stores binary objects in buckets.
type ObjectStoragePort interface {
	// Upload stores data at path. It fails rather than overwrite an existing object.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error

	// CreateSignedURL returns a URL valid for ttl.
	CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)

	// Remove deletes the given paths.
	Remove(ctx context.Context, bucket string, paths []string) error
}

// ChangeEvent is a realtime notification that a row changed.
// Only RecordID is trusted; consumers refetch the row.
type ChangeEvent struct {
	Event    string `json:"event"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	RecordID string `json:"record_id,omitempty"`
}

// ChangeFilter scopes a realtime subscription.
type ChangeFilter struct {
	Event  string
	Schema string
	Table  string
	Filter string
}

// Subscription is a live change feed. Close ends it and closes Events.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// RealtimePort opens change-feed subscriptions.
type RealtimePort interface {
	Subscribe(ctx context.Context, filters []ChangeFilter) (Subscription, error)
}

// Session is an authenticated backend session.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthPort signs users in against the backend.
type AuthPort interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// IdentityPort resolves the signed-in user for scoping reads and writes.
type IdentityPort interface {
	// UserID returns the current user's id or an AUTH error when nobody is signed in.
	UserID(ctx context.Context) (string, error)
}
