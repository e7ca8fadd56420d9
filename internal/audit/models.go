package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Audit is best-effort; a failed append never blocks a termination.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Actor is a user id for client-driven events or a system actor such as "system:reconciler".
	Actor     string `json:"actor" db:"actor"`
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	CallID   string `json:"call_id,omitempty" db:"call_id"`
	RoomName string `json:"room_name,omitempty" db:"room_name"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallEnded     EventType = "call_ended"
	EventTypeSyncTriggered EventType = "sync_triggered"
)

const ActorReconciler = "system:reconciler"
