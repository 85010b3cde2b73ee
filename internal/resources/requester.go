package resources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
)

// PayloadType selects the sub-operation of a requester call.
type PayloadType string

const (
	PayloadRead   PayloadType = "read"
	PayloadUpdate PayloadType = "update"
	PayloadCreate PayloadType = "create"
	PayloadList   PayloadType = "list"
	PayloadRemove PayloadType = "remove"
)

// Payload is one requester call. ID is required for read, update and remove;
// Body carries create and update data; Query filters list calls.
type Payload struct {
	Type  PayloadType
	ID    string
	Body  any
	Query url.Values
}

// Requester is the uniform contract every marketplace resource exposes.
type Requester interface {
	Communicate(ctx context.Context, payload Payload, out any) error
}

// Transport performs marketplace HTTP calls for the scope carried by ctx.
type Transport interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

type restRequester struct {
	transport  Transport
	collection string
	label      string
}

// NewRequester maps payload types onto the REST routes of one collection.
func NewRequester(transport Transport, collection, label string) (Requester, error) {
	if transport == nil {
		return nil, fmt.Errorf("marketplace transport required")
	}
	collection = strings.Trim(strings.TrimSpace(collection), "/")
	if collection == "" {
		return nil, fmt.Errorf("collection required")
	}
	if label == "" {
		label = collection
	}
	return &restRequester{transport: transport, collection: collection, label: label}, nil
}

func (r *restRequester) Communicate(ctx context.Context, payload Payload, out any) error {
	method, path, err := r.route(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+r.label+" request")
	}

	var body any
	if payload.Type == PayloadCreate || payload.Type == PayloadUpdate {
		body = payload.Body
	}
	var query url.Values
	if payload.Type == PayloadList {
		query = payload.Query
	}

	if err := r.transport.Do(ctx, method, path, query, body, out); err != nil {
		return mapError(r.label, err)
	}
	return nil
}

func (r *restRequester) route(payload Payload) (string, string, error) {
	base := "/" + r.collection
	id := strings.TrimSpace(payload.ID)
	switch payload.Type {
	case PayloadCreate:
		return http.MethodPost, base, nil
	case PayloadList:
		return http.MethodGet, base, nil
	case PayloadRead, PayloadUpdate, PayloadRemove:
		if id == "" {
			return "", "", fmt.Errorf("%s id is required", r.label)
		}
		path := base + "/" + url.PathEscape(id)
		switch payload.Type {
		case PayloadRead:
			return http.MethodGet, path, nil
		case PayloadUpdate:
			return http.MethodPatch, path, nil
		default:
			return http.MethodDelete, path, nil
		}
	default:
		return "", "", fmt.Errorf("unsupported payload type %q", payload.Type)
	}
}

// mapError hides marketplace internals behind the gateway error taxonomy.
func mapError(label string, err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if marketplace.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, label+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, label+" request failed")
}
