package calls

import (
	"context"
	"errors"
	"time"
)

// EndStore is what the client-facing service needs from persistence.
type EndStore interface {
	Store
	Get(ctx context.Context, callID string) (CallRecord, error)
}

// Service handles client-reported call lifecycle signals.
//
// A client-reported end races with reconciliation; the store decides the winner.
// A loser gets ErrAlreadyEnded and the record it lost to.
type Service struct {
	store EndStore
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store EndStore) *Service {
	return &Service{store: store, clock: time.Now}
}

// ReportEnded records a client_reported end at server time.
func (s *Service) ReportEnded(ctx context.Context, callID string) (CallRecord, error) {
	if callID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	if s.store == nil {
		return CallRecord{}, errors.New("calls: store not configured")
	}

	c, err := s.store.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if c.IsEnded() {
		return c, ErrAlreadyEnded
	}
	if c.Status != CallStatusAccepted {
		return c, ErrNotActive
	}

	now := s.clock().UTC()
	if err := s.store.SetEnded(ctx, callID, now, EndReasonClientReported, DurationSeconds(c.StartedAt, now)); err != nil {
		if errors.Is(err, ErrAlreadyEnded) {
			// Lost the race; return the winner's record.
			if winner, gerr := s.store.Get(ctx, callID); gerr == nil {
				return winner, err
			}
		}
		return c, err
	}
	return s.store.Get(ctx, callID)
}

// ReportEndedBy is ReportEnded on behalf of userID, who must be the caller or callee.
func (s *Service) ReportEndedBy(ctx context.Context, callID, userID string) (CallRecord, error) {
	if callID == "" || userID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	if s.store == nil {
		return CallRecord{}, errors.New("calls: store not configured")
	}
	c, err := s.store.Get(ctx, callID)
	if err != nil {
		return CallRecord{}, err
	}
	if c.CallerID != userID && c.CalleeID != userID {
		return CallRecord{}, ErrNotParticipant
	}
	return s.ReportEnded(ctx, callID)
}
