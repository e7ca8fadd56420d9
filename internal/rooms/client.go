package rooms

import (
	"context"
	"errors"
	"time"
)

// ErrRemoteUnavailable means the media service could not tell us anything reliable
// about a room: unreachable, timed out, unauthorized, 5xx, or an unparseable body.
// It never means the room is gone; that is Snapshot.Exists == false.
var ErrRemoteUnavailable = errors.New("rooms: remote unavailable")

// Client is the read-only view of the remote media service used by reconciliation.
//
// Rules:
// - No provider SDK types cross this boundary.
// - A room that is legitimately not found returns Exists=false with a nil error.
type Client interface {
	Snapshot(ctx context.Context, roomName string) (Snapshot, error)
}

type RoomStatus string

const (
	RoomStatusInProgress RoomStatus = "in-progress"
	RoomStatusCompleted  RoomStatus = "completed"
	RoomStatusFailed     RoomStatus = "failed"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusInProgress, RoomStatusCompleted, RoomStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the remote side has closed the room for good.
func (s RoomStatus) Terminal() bool {
	return s == RoomStatusCompleted || s == RoomStatusFailed
}

// Participant is one identity seen in the room.
type Participant struct {
	Identity  string     `json:"identity"`
	Connected bool       `json:"connected"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

// Snapshot is a point-in-time read of one room. It is never persisted.
//
// QueriedAt is the reference time for every elapsed-time rule applied to this snapshot.
type Snapshot struct {
	RoomName     string        `json:"room_name"`
	Exists       bool          `json:"exists"`
	Status       RoomStatus    `json:"room_status,omitempty"`
	Participants []Participant `json:"participants"`
	QueriedAt    time.Time     `json:"queried_at"`
}

// ConnectedCount counts participants currently connected.
func (s Snapshot) ConnectedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.Connected {
			n++
		}
	}
	return n
}
