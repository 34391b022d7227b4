package entities

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/betul-abla-portal/apiclient"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
)

// Doer is the part of the API client the resources use.
type Doer interface {
	DoJSON(ctx context.Context, method, endpoint string, query url.Values, in, out any) error
	Request(ctx context.Context, endpoint string, opts apiclient.RequestOptions) (*http.Response, error)
}

// Record is implemented by every entity type.
type Record interface {
	RecordID() ID
	Validate() error
}

// Resource is the CRUD surface of one collection endpoint such as "/orphans/".
type Resource[T Record] struct {
	client   Doer
	endpoint string
}

func NewResource[T Record](client Doer, endpoint string) *Resource[T] {
	return &Resource[T]{client: client, endpoint: "/" + strings.Trim(endpoint, "/") + "/"}
}

func (r *Resource[T]) Endpoint() string {
	return r.endpoint
}

// List fetches the collection. query carries filters such as status or search.
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	var raw json.RawMessage
	if err := r.client.DoJSON(ctx, http.MethodGet, r.endpoint, query, nil, &raw); err != nil {
		return nil, fmt.Errorf("[entities List] %s: %w", r.endpoint, err)
	}
	items, err := decodeList[T](raw)
	if err != nil {
		return nil, fmt.Errorf("[entities List] %s: %w", r.endpoint, err)
	}
	return items, nil
}

func (r *Resource[T]) Get(ctx context.Context, id ID) (T, error) {
	var out T
	if id == "" {
		return out, fmt.Errorf("[entities Get] %s: %w: id is required", r.endpoint, errors.ErrValidation)
	}
	if err := r.client.DoJSON(ctx, http.MethodGet, r.item(id), nil, nil, &out); err != nil {
		return out, fmt.Errorf("[entities Get] %s: %w", r.item(id), notFound(err))
	}
	return out, nil
}

// Create validates rec and posts it. The stored record is returned.
func (r *Resource[T]) Create(ctx context.Context, rec T) (T, error) {
	var out T
	if err := rec.Validate(); err != nil {
		return out, fmt.Errorf("[entities Create] %s: %w", r.endpoint, err)
	}
	if err := r.client.DoJSON(ctx, http.MethodPost, r.endpoint, nil, rec, &out); err != nil {
		return out, fmt.Errorf("[entities Create] %s: %w", r.endpoint, err)
	}
	return out, nil
}

// Update validates rec and replaces the record with its id.
func (r *Resource[T]) Update(ctx context.Context, rec T) (T, error) {
	var out T
	id := rec.RecordID()
	if id == "" {
		return out, fmt.Errorf("[entities Update] %s: %w: id is required", r.endpoint, errors.ErrValidation)
	}
	if err := rec.Validate(); err != nil {
		return out, fmt.Errorf("[entities Update] %s: %w", r.item(id), err)
	}
	if err := r.client.DoJSON(ctx, http.MethodPut, r.item(id), nil, rec, &out); err != nil {
		return out, fmt.Errorf("[entities Update] %s: %w", r.item(id), notFound(err))
	}
	return out, nil
}

func (r *Resource[T]) Delete(ctx context.Context, id ID) error {
	if id == "" {
		return fmt.Errorf("[entities Delete] %s: %w: id is required", r.endpoint, errors.ErrValidation)
	}
	if err := r.client.DoJSON(ctx, http.MethodDelete, r.item(id), nil, nil, nil); err != nil {
		return fmt.Errorf("[entities Delete] %s: %w", r.item(id), notFound(err))
	}
	return nil
}

// action posts body to a detail route such as /orphans/4/update_status/.
func (r *Resource[T]) action(ctx context.Context, id ID, name string, body any) (T, error) {
	var out T
	if id == "" {
		return out, fmt.Errorf("%w: id is required", errors.ErrValidation)
	}
	endpoint := r.item(id) + name + "/"
	if err := r.client.DoJSON(ctx, http.MethodPost, endpoint, nil, body, &out); err != nil {
		return out, fmt.Errorf("%s: %w", endpoint, notFound(err))
	}
	return out, nil
}

func (r *Resource[T]) item(id ID) string {
	return r.endpoint + url.PathEscape(id.String()) + "/"
}

type page[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// decodeList accepts a bare array or a paginated {count, results} envelope.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return []T{}, nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return items, nil
	}

	var p page[T]
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	if p.Results == nil {
		return []T{}, nil
	}
	return p.Results, nil
}

// notFound marks a 404 from the service with errors.ErrNotFound.
func notFound(err error) error {
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", errors.ErrNotFound, err)
	}
	return err
}
