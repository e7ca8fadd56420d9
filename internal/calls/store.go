package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrAlreadyEnded    = errors.New("calls: already ended")
	ErrNotActive       = errors.New("calls: call is not accepted")
	ErrInvalidArgument = errors.New("calls: invalid argument")
	ErrNotParticipant  = errors.New("calls: caller is not a participant")

	// ErrStoreUnavailable wraps failures to reach the backing database.
	// Callers should retry later rather than treat the call as changed.
	ErrStoreUnavailable = errors.New("calls: store unavailable")
)

// Store is the persistence contract used by reconciliation and the call-end endpoint.
//
// SetEnded is atomic per call_id and first-writer-wins:
//   - nil: this caller wrote the end state
//   - ErrAlreadyEnded: another writer got there first; nothing changed
//   - ErrNotActive: the call exists but is not accepted (pending/failed)
//   - ErrNotFound: no such call
type Store interface {
	ListByStatus(ctx context.Context, status CallStatus) ([]CallRecord, error)
	SetEnded(ctx context.Context, callID string, endedAt time.Time, reason EndReason, durationSeconds int) error
}

// Reader adds single-record and time-window lookups.
type Reader interface {
	Get(ctx context.Context, callID string) (CallRecord, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error)
}

func validateEnd(callID string, endedAt time.Time, reason EndReason, durationSeconds int) error {
	if callID == "" || endedAt.IsZero() || !reason.Valid() || durationSeconds < 0 {
		return ErrInvalidArgument
	}
	return nil
}

func validateNew(c CallRecord) error {
	if c.CallID == "" || c.RoomName == "" {
		return ErrInvalidArgument
	}
	// ended/failed rows only come from SetEnded
	if c.Status != CallStatusPending && c.Status != CallStatusAccepted {
		return ErrInvalidArgument
	}
	if c.Status == CallStatusAccepted && c.StartedAt.IsZero() {
		return ErrInvalidArgument
	}
	if c.EndedAt != nil {
		return ErrInvalidArgument
	}
	return nil
}
