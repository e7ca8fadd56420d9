package reconcile

import (
	"time"

	"smarttv-backend/internal/calls"
)

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Checked    int         `json:"checked"`
	Ended      int         `json:"ended"`
	EndedCalls []EndedCall `json:"ended_calls"`

	// Skipped calls had no reliable room state this pass and were left untouched.
	Skipped       []SkippedCall  `json:"skipped"`
	WriteFailures []WriteFailure `json:"write_failures"`
	// AlreadyEnded lists calls another writer ended between listing and writing.
	AlreadyEnded []string `json:"already_ended"`

	Aborted    bool   `json:"aborted"`
	AbortError string `json:"abort_error,omitempty"`
}

type EndedCall struct {
	CallID          string          `json:"call_id"`
	RoomName        string          `json:"room_name"`
	Reason          calls.EndReason `json:"reason"`
	EndedAt         time.Time       `json:"ended_at"`
	DurationSeconds int             `json:"duration_seconds"`
}

type SkippedCall struct {
	CallID   string `json:"call_id"`
	RoomName string `json:"room_name"`
	Error    string `json:"error"`
}

type WriteFailure struct {
	CallID string `json:"call_id"`
	Error  string `json:"error"`
}

func newReport(startedAt time.Time) SyncReport {
	return SyncReport{
		StartedAt:     startedAt,
		EndedCalls:    []EndedCall{},
		Skipped:       []SkippedCall{},
		WriteFailures: []WriteFailure{},
		AlreadyEnded:  []string{},
	}
}

// Duration is the wall time the pass took.
func (r SyncReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
