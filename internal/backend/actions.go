package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Mutate executes a single-entity mutation: POST /entities/{id}/{action}.
// A non-2xx response is surfaced as a MutationError so the caller can roll
// back the optimistic overlay for that id.
func (c *Client) Mutate(ctx context.Context, id string, action Action) (*MutationResult, error) {
	var result MutationResult
	path := fmt.Sprintf("/entities/%s/%s", id, action)

	if err := c.post(ctx, path, nil, &result); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, &MutationError{
				Action:     action,
				StatusCode: se.status,
				Message:    se.message,
			}
		}
		return nil, err
	}

	return &result, nil
}

// MutateBatch executes one mutation across many entities in a single
// network operation: POST /entities/batch/{action}. Per-id failures are
// not errors; they come back in BatchResult.FailedIDs.
func (c *Client) MutateBatch(ctx context.Context, ids []string, action Action) (*BatchResult, error) {
	var result BatchResult
	path := fmt.Sprintf("/entities/batch/%s", action)
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}

	if err := c.post(ctx, path, body, &result); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, &MutationError{
				Action:     action,
				StatusCode: se.status,
				Message:    se.message,
			}
		}
		return nil, err
	}

	return &result, nil
}

// CreateSend schedules an outbound send with a server-side grace window:
// POST /sends. The backend commits the send on its own deadline unless a
// cancel arrives first.
func (c *Client) CreateSend(ctx context.Context, payload SendPayload, offsetMs int) (*SendReceipt, error) {
	var receipt SendReceipt
	body := struct {
		Payload               SendPayload `json:"payload"`
		ScheduledCommitOffset int         `json:"scheduledCommitOffset"`
	}{Payload: payload, ScheduledCommitOffset: offsetMs}

	if err := c.post(ctx, "/sends", body, &receipt); err != nil {
		return nil, fmt.Errorf("scheduling send: %w", err)
	}

	return &receipt, nil
}

// CancelSend asks the backend to intercept a scheduled send before it
// executes: DELETE /sends/{id}. A 409 or 410 means the send already
// committed and cancelling lost the race, reported as a CancelRaceError.
// Any other failure (a 500, a transport error) is not a verdict on the
// send at all, so the caller may retry while the window is open.
func (c *Client) CancelSend(ctx context.Context, id string) error {
	var result struct {
		Status string `json:"status"`
	}

	err := c.delete(ctx, "/sends/"+id, &result)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			switch se.status {
			case http.StatusConflict, http.StatusGone:
				return &CancelRaceError{SendID: id}
			}
			return fmt.Errorf("cancelling send %s: %w", id, err)
		}
		return err
	}

	if result.Status != "cancelled" {
		return fmt.Errorf("unexpected cancel status %q for send %s", result.Status, id)
	}
	return nil
}
