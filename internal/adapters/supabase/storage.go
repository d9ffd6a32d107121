package supabase

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// Storage implements ports.ObjectStoragePort over the storage endpoint.
type Storage struct {
	client *Client
}

var _ ports.ObjectStoragePort = (*Storage)(nil)

// NewStorage creates an object storage adapter.
func NewStorage(client *Client) *Storage {
	return &Storage{client: client}
}

func objectPath(bucket, path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return url.PathEscape(bucket) + "/" + strings.Join(parts, "/")
}

// Upload stores data at path without overwriting an existing object.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	if len(data) == 0 {
		return errors.Validation("refusing to upload an empty object")
	}
	req, err := s.client.NewRequest(ctx, http.MethodPost, "/storage/v1/object/"+objectPath(bucket, path), bytes.NewReader(data), contentType)
	if err != nil {
		return err
	}
	req.Header.Set("x-upsert", "false")
	req.Header.Set("cache-control", "max-age=3600")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// CreateSignedURL returns a time-limited URL for the object at path.
func (s *Storage) CreateSignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	seconds := int(ttl / time.Second)
	if seconds <= 0 {
		return "", errors.Validation("signed url ttl must be at least one second, got %v", ttl)
	}

	var out signResponse
	if err := s.client.doJSON(ctx, http.MethodPost, "/storage/v1/object/sign/"+objectPath(bucket, path),
		signRequest{ExpiresIn: seconds}, nil, &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", errors.NewError(errors.CodeService, "storage returned an empty signed url", nil)
	}
	if strings.HasPrefix(out.SignedURL, "http://") || strings.HasPrefix(out.SignedURL, "https://") {
		return out.SignedURL, nil
	}
	return s.client.BaseURL() + "/storage/v1" + out.SignedURL, nil
}

type removeRequest struct {
	Prefixes []string `json:"prefixes"`
}

// Remove deletes objects. Missing objects are ignored by the backend.
func (s *Storage) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.client.doJSON(ctx, http.MethodDelete, "/storage/v1/object/"+url.PathEscape(bucket),
		removeRequest{Prefixes: paths}, nil, nil)
}
