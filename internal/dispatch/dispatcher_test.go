package dispatch

import (
	"context"
	"testing"

	"github.com/nhle/mailterm/internal/backend"
	"github.com/nhle/mailterm/internal/model"
)

// fakeAPI records calls and plays back scripted results.
type fakeAPI struct {
	singleCalls int
	batchCalls  int
	lastAction  backend.Action
	lastIDs     []string

	singleErr error
	batchRes  *backend.BatchResult
	batchErr  error
}

func (f *fakeAPI) Mutate(_ context.Context, id string, action backend.Action) (*backend.MutationResult, error) {
	f.singleCalls++
	f.lastAction = action
	f.lastIDs = []string{id}
	if f.singleErr != nil {
		return nil, f.singleErr
	}
	return &backend.MutationResult{Status: "ok", ID: id}, nil
}

func (f *fakeAPI) MutateBatch(_ context.Context, ids []string, action backend.Action) (*backend.BatchResult, error) {
	f.batchCalls++
	f.lastAction = action
	f.lastIDs = ids
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batchRes, nil
}

func TestDispatchSingleUsesSingleEndpoint(t *testing.T) {
	api := &fakeAPI{}
	d := New(api)

	res, err := d.Dispatch(context.Background(), Mutation{
		Action: backend.ActionMarkRead,
		IDs:    []string{"t1"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if api.singleCalls != 1 || api.batchCalls != 0 {
		t.Fatalf("expected single endpoint, got single=%d batch=%d", api.singleCalls, api.batchCalls)
	}
	if res.SuccessCount != 1 || res.FailedCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchSingleFailurePropagates(t *testing.T) {
	api := &fakeAPI{singleErr: &backend.MutationError{Action: backend.ActionDelete, StatusCode: 422}}
	d := New(api)

	_, err := d.Dispatch(context.Background(), Mutation{
		Action: backend.ActionDelete,
		IDs:    []string{"t1"},
	})
	if !backend.IsMutationError(err) {
		t.Fatalf("expected MutationError, got %v", err)
	}
}

func TestDispatchBatchNormalizesResult(t *testing.T) {
	api := &fakeAPI{batchRes: &backend.BatchResult{
		SuccessCount: 3,
		FailedCount:  2,
		FailedIDs:    []string{"x", "y"},
	}}
	d := New(api)

	res, err := d.Dispatch(context.Background(), Mutation{
		Action: backend.ActionMarkDone,
		IDs:    []string{"a", "b", "c", "x", "y"},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if api.batchCalls != 1 || api.singleCalls != 0 {
		t.Fatalf("expected batch endpoint, got single=%d batch=%d", api.singleCalls, api.batchCalls)
	}
	if res.SuccessCount != 3 || len(res.FailedIDs) != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDispatchEmptyIDsRejected(t *testing.T) {
	d := New(&fakeAPI{})
	if _, err := d.Dispatch(context.Background(), Mutation{Action: backend.ActionMarkRead}); err == nil {
		t.Fatal("expected error for empty id list")
	}
}

func TestActionForCoversEveryField(t *testing.T) {
	cases := []struct {
		field model.Field
		value bool
		want  backend.Action
	}{
		{model.FieldRead, true, backend.ActionMarkRead},
		{model.FieldRead, false, backend.ActionMarkUnread},
		{model.FieldDone, true, backend.ActionMarkDone},
		{model.FieldDone, false, backend.ActionMarkOpen},
		{model.FieldDeleted, true, backend.ActionDelete},
		{model.FieldDeleted, false, backend.ActionRestore},
	}
	for _, tc := range cases {
		got, err := ActionFor(tc.field, tc.value)
		if err != nil {
			t.Fatalf("ActionFor(%s, %v): %v", tc.field, tc.value, err)
		}
		if got != tc.want {
			t.Errorf("ActionFor(%s, %v) = %s, want %s", tc.field, tc.value, got, tc.want)
		}
	}

	if _, err := ActionFor(model.Field("bogus"), true); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
