package backend

import (
	"errors"
	"fmt"
	"time"
)

// Action names a single-field mutation the backend can execute.
type Action string

const (
	ActionMarkRead   Action = "markRead"
	ActionMarkUnread Action = "markUnread"
	ActionMarkDone   Action = "markDone"
	ActionMarkOpen   Action = "markOpen"
	ActionDelete     Action = "delete"
	ActionRestore    Action = "restore"
)

// MutationResult is the response body for a single-entity mutation.
type MutationResult struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// BatchResult reports partial success for a multi-entity mutation.
// Overlays for FailedIDs are rolled back by the caller; succeeded ids
// keep their overlays until the reconciler clears them.
type BatchResult struct {
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	FailedIDs    []string `json:"failedIds"`
}

// SendPayload is the outbound message handed to the deferred-send endpoint.
type SendPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`

	// InReplyTo links the send to an existing thread, if any.
	InReplyTo string `json:"inReplyTo,omitempty"`
}

// SendReceipt is the backend's acknowledgement of a scheduled send.
type SendReceipt struct {
	ID        string    `json:"id"`
	CanUndo   bool      `json:"canUndo"`
	UndoUntil time.Time `json:"undoUntil"`
}

// ErrorResponse is the backend's standard error body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// MutationError indicates the backend declined a mutation outright.
// The caller rolls back every overlay the mutation touched.
type MutationError struct {
	Action     Action
	StatusCode int
	Message    string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation %s rejected (%d): %s", e.Action, e.StatusCode, e.Message)
}

// IsMutationError reports whether err (or its chain) is a MutationError.
func IsMutationError(err error) bool {
	var me *MutationError
	return errors.As(err, &me)
}

// CancelRaceError indicates a send cancel arrived after the backend had
// already committed the send. Reported distinctly from network failures:
// the UI must say "already sent", not "try again".
type CancelRaceError struct {
	SendID string
}

func (e *CancelRaceError) Error() string {
	return fmt.Sprintf("send %s already committed; cancel lost the race", e.SendID)
}

// IsCancelRace reports whether err (or its chain) is a CancelRaceError.
func IsCancelRace(err error) bool {
	var ce *CancelRaceError
	return errors.As(err, &ce)
}

// AuthError indicates the backend rejected our token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or its chain) is an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
