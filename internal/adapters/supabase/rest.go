package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/errors"
)

// Tables implements ports.BackendPort over the PostgREST endpoint.
type Tables struct {
	client *Client
}

var _ ports.BackendPort = (*Tables)(nil)

// NewTables creates a table adapter.
func NewTables(client *Client) *Tables {
	return &Tables{client: client}
}

func tablePath(table string, params url.Values) string {
	p := "/rest/v1/" + url.PathEscape(table)
	if len(params) > 0 {
		p += "?" + params.Encode()
	}
	return p
}

func filterParams(f ports.Filter) url.Values {
	params := url.Values{}
	for col, val := range f {
		params.Set(col, "eq."+val)
	}
	return params
}

func prefer(values ...string) http.Header {
	h := http.Header{}
	for _, v := range values {
		h.Add("Prefer", v)
	}
	return h
}

// Select reads rows matching q into dest.
func (t *Tables) Select(ctx context.Context, table string, q ports.Query, dest any) error {
	params := filterParams(q.Filter)
	params.Set("select", "*")
	if q.OrderBy != "" {
		dir := ".asc"
		if q.Descending {
			dir = ".desc"
		}
		params.Set("order", q.OrderBy+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	return t.client.doJSON(ctx, http.MethodGet, tablePath(table, params), nil, nil, dest)
}

// Insert creates a row. When dest is non-nil the stored row is decoded into it.
func (t *Tables) Insert(ctx context.Context, table string, row any, dest any) error {
	if dest == nil {
		return t.client.doJSON(ctx, http.MethodPost, tablePath(table, nil), row, prefer("return=minimal"), nil)
	}

	var rows []json.RawMessage
	if err := t.client.doJSON(ctx, http.MethodPost, tablePath(table, nil), row, prefer("return=representation"), &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.NewError(errors.CodeService, "insert returned no rows", nil)
	}
	if err := json.Unmarshal(rows[0], dest); err != nil {
		return errors.NewError(errors.CodeService, "failed to decode inserted row", err)
	}
	return nil
}

// Upsert inserts or merges a row keyed by onConflict.
func (t *Tables) Upsert(ctx context.Context, table string, row any, onConflict string) error {
	params := url.Values{}
	if onConflict != "" {
		params.Set("on_conflict", onConflict)
	}
	return t.client.doJSON(ctx, http.MethodPost, tablePath(table, params), row,
		prefer("resolution=merge-duplicates", "return=minimal"), nil)
}

// Update patches rows matching filter.
func (t *Tables) Update(ctx context.Context, table string, filter ports.Filter, patch any) error {
	if len(filter) == 0 {
		return errors.Validation("update on %s requires a filter", table)
	}
	return t.client.doJSON(ctx, http.MethodPatch, tablePath(table, filterParams(filter)), patch, prefer("return=minimal"), nil)
}

// Delete removes rows matching filter.
func (t *Tables) Delete(ctx context.Context, table string, filter ports.Filter) error {
	if len(filter) == 0 {
		return errors.Validation("delete on %s requires a filter", table)
	}
	return t.client.doJSON(ctx, http.MethodDelete, tablePath(table, filterParams(filter)), nil, prefer("return=minimal"), nil)
}
