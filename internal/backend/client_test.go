package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-token", 5*time.Second)
}

func TestMutateSingle(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/entities/t1/markRead" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(MutationResult{Status: "ok", ID: "t1"})
	}))

	res, err := c.Mutate(context.Background(), "t1", ActionMarkRead)
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if res.ID != "t1" || res.Status != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestMutateRejectionIsMutationError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "entity locked"})
	}))

	_, err := c.Mutate(context.Background(), "t1", ActionDelete)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsMutationError(err) {
		t.Fatalf("expected MutationError, got %T: %v", err, err)
	}
}

func TestMutateBatchPartialFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entities/batch/markDone" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if len(body.IDs) != 5 {
			t.Errorf("expected 5 ids, got %d", len(body.IDs))
		}
		json.NewEncoder(w).Encode(BatchResult{
			SuccessCount: 3,
			FailedCount:  2,
			FailedIDs:    []string{"x", "y"},
		})
	}))

	res, err := c.MutateBatch(
		context.Background(),
		[]string{"a", "b", "c", "x", "y"},
		ActionMarkDone,
	)
	if err != nil {
		t.Fatalf("MutateBatch: %v", err)
	}
	if res.SuccessCount != 3 || res.FailedCount != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if len(res.FailedIDs) != 2 || res.FailedIDs[0] != "x" || res.FailedIDs[1] != "y" {
		t.Fatalf("unexpected failed ids %v", res.FailedIDs)
	}
}

func TestCreateSend(t *testing.T) {
	until := time.Now().Add(8 * time.Second).UTC().Truncate(time.Millisecond)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sends" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Payload               SendPayload `json:"payload"`
			ScheduledCommitOffset int         `json:"scheduledCommitOffset"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body.ScheduledCommitOffset != 8000 {
			t.Errorf("expected offset 8000, got %d", body.ScheduledCommitOffset)
		}
		if len(body.Payload.To) != 1 || body.Payload.To[0] != "a@example.com" {
			t.Errorf("unexpected payload %+v", body.Payload)
		}
		json.NewEncoder(w).Encode(SendReceipt{ID: "m1", CanUndo: true, UndoUntil: until})
	}))

	receipt, err := c.CreateSend(
		context.Background(),
		SendPayload{To: []string{"a@example.com"}, Subject: "hi"},
		8000,
	)
	if err != nil {
		t.Fatalf("CreateSend: %v", err)
	}
	if receipt.ID != "m1" || !receipt.CanUndo {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if !receipt.UndoUntil.Equal(until) {
		t.Fatalf("expected undoUntil %v, got %v", until, receipt.UndoUntil)
	}
}

func TestCancelSendAcknowledged(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/sends/m1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
	}))

	if err := c.CancelSend(context.Background(), "m1"); err != nil {
		t.Fatalf("CancelSend: %v", err)
	}
}

func TestCancelSendRaceLost(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "already committed"})
	}))

	err := c.CancelSend(context.Background(), "m1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsCancelRace(err) {
		t.Fatalf("expected CancelRaceError, got %T: %v", err, err)
	}
}

func TestCancelSendServerFaultIsNotARace(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "backend exploded"})
	}))

	err := c.CancelSend(context.Background(), "m1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsCancelRace(err) {
		t.Fatalf("500 during cancel reported as a lost race: %v", err)
	}
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.Mutate(context.Background(), "t1", ActionMarkRead)
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
}

func TestRetriesOnRateLimit(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(MutationResult{Status: "ok", ID: "t1"})
	}))

	res, err := c.Mutate(context.Background(), "t1", ActionMarkRead)
	if err != nil {
		t.Fatalf("Mutate after 429: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if res.Status != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
}
