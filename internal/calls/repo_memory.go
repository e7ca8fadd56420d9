package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// It enforces the same first-writer-wins rule as SQLStore.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]CallRecord
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]CallRecord{}, clock: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, c CallRecord) error {
	if err := validateNew(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[c.CallID]; ok {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.calls[c.CallID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return cloneRecord(c), nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status CallStatus) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, c := range s.calls {
		if c.Status == status {
			out = append(out, cloneRecord(c))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, 0)
	for _, c := range s.calls {
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, cloneRecord(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SetEnded(ctx context.Context, callID string, endedAt time.Time, reason EndReason, durationSeconds int) error {
	if err := validateEnd(callID, endedAt, reason, durationSeconds); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.EndedAt != nil {
		return ErrAlreadyEnded
	}
	if c.Status != CallStatusAccepted {
		return ErrNotActive
	}
	ended := endedAt.UTC()
	d := durationSeconds
	c.Status = CallStatusEnded
	c.EndedAt = &ended
	c.EndReason = reason
	c.DurationSeconds = &d
	c.UpdatedAt = s.clock().UTC()
	s.calls[callID] = c
	return nil
}

func cloneRecord(c CallRecord) CallRecord {
	if c.EndedAt != nil {
		t := *c.EndedAt
		c.EndedAt = &t
	}
	if c.DurationSeconds != nil {
		d := *c.DurationSeconds
		c.DurationSeconds = &d
	}
	return c
}

func sortByStart(cs []CallRecord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].StartedAt.Equal(cs[j].StartedAt) {
			return cs[i].CallID < cs[j].CallID
		}
		return cs[i].StartedAt.Before(cs[j].StartedAt)
	})
}
