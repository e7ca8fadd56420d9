package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.Actor == "" {
		return ErrInvalidEvent
	}
	if e.Type == EventTypeCallEnded && e.CallID == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// CallEnded is the payload of a call_ended audit record.
type CallEnded struct {
	CallID          string    `json:"call_id"`
	RoomName        string    `json:"room_name"`
	Reason          string    `json:"reason"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

// LogCallEnded records a termination by actor (a user id or a system actor).
func (s *Service) LogCallEnded(ctx context.Context, actor, actorRole, ip string, c CallEnded) error {
	meta, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.Append(ctx, Event{
		Type:      EventTypeCallEnded,
		Actor:     actor,
		ActorRole: actorRole,
		IPAddress: ip,
		CallID:    c.CallID,
		RoomName:  c.RoomName,
		Message:   "call ended: " + c.Reason,
		Metadata:  string(meta),
	})
}

// LogSyncTriggered records a manual reconciliation trigger.
func (s *Service) LogSyncTriggered(ctx context.Context, actor, actorRole, ip string, async bool) error {
	msg := "sync triggered"
	if async {
		msg = "sync triggered (async)"
	}
	return s.Append(ctx, Event{
		Type:      EventTypeSyncTriggered,
		Actor:     actor,
		ActorRole: actorRole,
		IPAddress: ip,
		Message:   msg,
	})
}
