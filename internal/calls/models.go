package calls

import "time"

// CallRecord is one video call attempt as last known locally.
//
// Invariants:
//   - EndedAt is set iff Status is ended (or failed).
//   - EndReason and DurationSeconds are set whenever EndedAt is set.
//   - Once EndedAt is written the record never changes again.
//
// RoomName is the remote media room the call runs in; it is stable for the call's lifetime.
type CallRecord struct {
	CallID   string `json:"call_id" db:"call_id"`
	RoomName string `json:"room_name" db:"room_name"`

	CallerID string `json:"caller_id,omitempty" db:"caller_id"`
	CalleeID string `json:"callee_id,omitempty" db:"callee_id"`

	Status CallStatus `json:"status" db:"status"`

	// StartedAt is set when the call transitions to accepted.
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	EndReason       EndReason `json:"end_reason,omitempty" db:"end_reason"`
	DurationSeconds *int      `json:"duration_seconds,omitempty" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsEnded reports whether the record has reached its immutable end state.
func (c CallRecord) IsEnded() bool { return c.EndedAt != nil }

type CallStatus string

const (
	CallStatusPending  CallStatus = "pending"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusEnded    CallStatus = "ended"
	CallStatusFailed   CallStatus = "failed"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusAccepted, CallStatusEnded, CallStatusFailed:
		return true
	default:
		return false
	}
}

// EndReason is the closed set of ways a call can end.
type EndReason string

const (
	EndReasonClientReported           EndReason = "client_reported"
	EndReasonRoomMissing              EndReason = "room_missing"
	EndReasonRoomCompleted            EndReason = "room_completed"
	EndReasonRoomAbandoned            EndReason = "room_abandoned"
	EndReasonSingleParticipantTimeout EndReason = "single_participant_timeout"
)

// EndReasons lists every valid reason, in classification order after client_reported.
var EndReasons = []EndReason{
	EndReasonClientReported,
	EndReasonRoomMissing,
	EndReasonRoomCompleted,
	EndReasonRoomAbandoned,
	EndReasonSingleParticipantTimeout,
}

func (r EndReason) Valid() bool {
	for _, v := range EndReasons {
		if r == v {
			return true
		}
	}
	return false
}

// DurationSeconds is endedAt - startedAt in whole seconds, clamped at zero.
func DurationSeconds(startedAt, endedAt time.Time) int {
	d := endedAt.Sub(startedAt)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}
