// Package dispatch fires mutation requests against the backend and
// normalizes single and batched results into one shape. It never touches
// the overlay store: the caller applies overrides before dispatching and
// rolls back failed ids after the result settles.
package dispatch

import (
	"context"
	"fmt"

	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/model"
)

// Mutation is one same-field operation over one or more entities.
type Mutation struct {
	Action backend.Action
	IDs    []string
}

// ActionFor maps a field override onto the backend action that realizes it.
func ActionFor(field model.Field, value bool) (backend.Action, error) {
	switch field {
	case model.FieldRead:
		if value {
			return backend.ActionMarkRead, nil
		}
		return backend.ActionMarkUnread, nil
	case model.FieldDone:
		if value {
			return backend.ActionMarkDone, nil
		}
		return backend.ActionMarkOpen, nil
	case model.FieldDeleted:
		if value {
			return backend.ActionDelete, nil
		}
		return backend.ActionRestore, nil
	}
	return "", fmt.Errorf("no backend action for field %q", field)
}

// API is the slice of the backend client the dispatcher needs.
type API interface {
	Mutate(ctx context.Context, id string, action backend.Action) (*backend.MutationResult, error)
	MutateBatch(ctx context.Context, ids []string, action backend.Action) (*backend.BatchResult, error)
}

// Dispatcher coordinates mutations: one network operation per dispatch,
// reported once, regardless of how many ids are involved.
type Dispatcher struct {
	api API
}

// New creates a dispatcher over the given backend API.
func New(api API) *Dispatcher {
	return &Dispatcher{api: api}
}

// Dispatch executes the mutation and reports a per-id outcome. A returned
// error means the whole mutation failed and every id must be rolled back;
// otherwise only BatchResult.FailedIDs need rolling back. There are no
// automatic retries: a failed mutation is surfaced to the user.
func (d *Dispatcher) Dispatch(ctx context.Context, m Mutation) (backend.BatchResult, error) {
	switch len(m.IDs) {
	case 0:
		return backend.BatchResult{}, fmt.Errorf("dispatching %s: no entity ids", m.Action)

	case 1:
		if _, err := d.api.Mutate(ctx, m.IDs[0], m.Action); err != nil {
			return backend.BatchResult{}, err
		}
		return backend.BatchResult{SuccessCount: 1}, nil

	default:
		res, err := d.api.MutateBatch(ctx, m.IDs, m.Action)
		if err != nil {
			return backend.BatchResult{}, err
		}
		return *res, nil
	}
}
