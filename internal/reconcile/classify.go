package reconcile

import (
	"time"

	"smarttv-backend/internal/calls"
	"smarttv-backend/internal/rooms"
)

// Thresholds are the grace periods applied to live rooms.
type Thresholds struct {
	// EmptyRoomTimeout: a room with nobody connected is abandoned after this long.
	EmptyRoomTimeout time.Duration
	// SingleParticipantTimeout: a room with one connected participant is ended after this long.
	SingleParticipantTimeout time.Duration
	// MinCallDuration: calls younger than this are never ended by the two rules above.
	MinCallDuration time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		EmptyRoomTimeout:         5 * time.Minute,
		SingleParticipantTimeout: 10 * time.Minute,
		MinCallDuration:          5 * time.Minute,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.EmptyRoomTimeout <= 0 {
		t.EmptyRoomTimeout = d.EmptyRoomTimeout
	}
	if t.SingleParticipantTimeout <= 0 {
		t.SingleParticipantTimeout = d.SingleParticipantTimeout
	}
	if t.MinCallDuration < 0 {
		t.MinCallDuration = 0
	}
	return t
}

// Decision is the outcome of classifying one call against one snapshot.
type Decision struct {
	End             bool
	Reason          calls.EndReason
	EndedAt         time.Time
	DurationSeconds int
}

// Classify applies the termination rules in order; the first match wins.
//
//  1. room missing             -> room_missing
//  2. room completed or failed -> room_completed
//  3. nobody connected, age > EmptyRoomTimeout          -> room_abandoned
//  4. one participant connected, age > SingleParticipantTimeout -> single_participant_timeout
//
// Rules 3 and 4 additionally require age >= MinCallDuration. Age and the end
// time are measured against snap.QueriedAt. Classify has no side effects.
func Classify(c calls.CallRecord, snap rooms.Snapshot, th Thresholds) Decision {
	at := snap.QueriedAt
	end := func(reason calls.EndReason) Decision {
		return Decision{End: true, Reason: reason, EndedAt: at, DurationSeconds: calls.DurationSeconds(c.StartedAt, at)}
	}

	if !snap.Exists {
		return end(calls.EndReasonRoomMissing)
	}
	if snap.Status.Terminal() {
		return end(calls.EndReasonRoomCompleted)
	}

	age := at.Sub(c.StartedAt)
	if age < th.MinCallDuration {
		return Decision{}
	}
	switch snap.ConnectedCount() {
	case 0:
		if age > th.EmptyRoomTimeout {
			return end(calls.EndReasonRoomAbandoned)
		}
	case 1:
		if age > th.SingleParticipantTimeout {
			return end(calls.EndReasonSingleParticipantTimeout)
		}
	}
	return Decision{}
}
