// Package testutil provides in-memory fakes of the backend ports and image
// fixtures shared by application tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// Row is a table row as decoded JSON.
type Row map[string]any

// Backend is an in-memory ports.BackendPort. Rows are stored as their JSON
// representation so tests see exactly what would be sent over the wire.
type Backend struct {
	mu     sync.Mutex
	tables map[string][]Row

	// Err, when set, is returned by every call.
	Err error
	// TableErr fails calls against a single table.
	TableErr map[string]error
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{tables: make(map[string][]Row), TableErr: make(map[string]error)}
}

func (b *Backend) fail(table string) error {
	if b.Err != nil {
		return b.Err
	}
	return b.TableErr[table]
}

func toRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("row must encode as a JSON object: %w", err)
	}
	return r, nil
}

func matches(r Row, f ports.Filter) bool {
	for col, want := range f {
		if fmt.Sprint(r[col]) != want {
			return false
		}
	}
	return true
}

// Select implements ports.BackendPort.
func (b *Backend) Select(_ context.Context, table string, q ports.Query, dest any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(table); err != nil {
		return err
	}

	out := []Row{}
	for _, r := range b.tables[table] {
		if matches(r, q.Filter) {
			out = append(out, r)
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, c := fmt.Sprint(out[i][q.OrderBy]), fmt.Sprint(out[j][q.OrderBy])
			if q.Descending {
				return a > c
			}
			return a < c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Insert implements ports.BackendPort.
func (b *Backend) Insert(_ context.Context, table string, row any, dest any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(table); err != nil {
		return err
	}
	r, err := toRow(row)
	if err != nil {
		return err
	}
	if _, ok := r["id"]; !ok {
		r["id"] = fmt.Sprintf("%s-%d", table, len(b.tables[table])+1)
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.tables[table] = append(b.tables[table], r)
	if dest == nil {
		return nil
	}
	data, _ := json.Marshal(r)
	return json.Unmarshal(data, dest)
}

// Upsert implements ports.BackendPort.
func (b *Backend) Upsert(_ context.Context, table string, row any, onConflict string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(table); err != nil {
		return err
	}
	r, err := toRow(row)
	if err != nil {
		return err
	}
	key := fmt.Sprint(r[onConflict])
	for i, existing := range b.tables[table] {
		if fmt.Sprint(existing[onConflict]) == key {
			for k, v := range r {
				existing[k] = v
			}
			b.tables[table][i] = existing
			return nil
		}
	}
	b.tables[table] = append(b.tables[table], r)
	return nil
}

// Update implements ports.BackendPort.
func (b *Backend) Update(_ context.Context, table string, filter ports.Filter, patch any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(table); err != nil {
		return err
	}
	p, err := toRow(patch)
	if err != nil {
		return err
	}
	for _, r := range b.tables[table] {
		if matches(r, filter) {
			for k, v := range p {
				r[k] = v
			}
		}
	}
	return nil
}

// Delete implements ports.BackendPort.
func (b *Backend) Delete(_ context.Context, table string, filter ports.Filter) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(table); err != nil {
		return err
	}
	kept := b.tables[table][:0]
	for _, r := range b.tables[table] {
		if !matches(r, filter) {
			kept = append(kept, r)
		}
	}
	b.tables[table] = kept
	return nil
}

// Rows returns a copy of every row in table.
func (b *Backend) Rows(table string) []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Row, len(b.tables[table]))
	for i, r := range b.tables[table] {
		c := make(Row, len(r))
		for k, v := range r {
			c[k] = v
		}
		out[i] = c
	}
	return out
}

// Storage is an in-memory ports.ObjectStoragePort that refuses overwrites.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte

	// Err, when set, is returned by Upload and CreateSignedURL.
	Err error
}

// NewStorage creates an empty object store.
func NewStorage() *Storage {
	return &Storage{objects: make(map[string][]byte)}
}

// Upload implements ports.ObjectStoragePort.
func (s *Storage) Upload(_ context.Context, bucket, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	key := bucket + "/" + path
	if _, ok := s.objects[key]; ok {
		return domainerrors.NewError(domainerrors.CodeService, "object already exists: "+key, nil)
	}
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

// CreateSignedURL implements ports.ObjectStoragePort.
func (s *Storage) CreateSignedURL(_ context.Context, bucket, path string, ttl time.Duration) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return fmt.Sprintf("https://storage.test/%s/%s?expires=%d", bucket, path, int(ttl.Seconds())), nil
}

// Remove implements ports.ObjectStoragePort.
func (s *Storage) Remove(_ context.Context, bucket string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.objects, bucket+"/"+p)
	}
	return nil
}

// Objects returns the stored keys, sorted.
func (s *Storage) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Identity is a fixed ports.IdentityPort. An empty value means signed out.
type Identity string

// UserID implements ports.IdentityPort.
func (i Identity) UserID(context.Context) (string, error) {
	if i == "" {
		return "", domainerrors.NewError(domainerrors.CodeAuth, "not signed in", domainerrors.ErrUnauthorized)
	}
	return string(i), nil
}

// Online is a switchable connectivity flag.
type Online struct {
	mu sync.Mutex
	up bool
}

// NewOnline creates a flag in the given state.
func NewOnline(up bool) *Online { return &Online{up: up} }

// Set changes the state.
func (o *Online) Set(up bool) {
	o.mu.Lock()
	o.up = up
	o.mu.Unlock()
}

// Get reports the state; it matches the func() bool hooks services accept.
func (o *Online) Get() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.up
}

// NetworkError is the error adapters return when the backend is unreachable.
func NetworkError() error {
	return domainerrors.NewError(domainerrors.CodeNetwork, "connection refused", domainerrors.ErrTransientNetwork)
}
