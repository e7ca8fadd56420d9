package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"smarttv-backend/pkg/utils"

	_ "github.com/mattn/go-sqlite3"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := utils.OpenDB(context.Background(), "sqlite3", ":memory:", utils.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLStore(db, DialectSQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

type testStore interface {
	Store
	Reader
	Create(ctx context.Context, c CallRecord) error
}

// storeFactories runs the same contract tests against every Store implementation.
func storeFactories(t *testing.T) map[string]func() testStore {
	return map[string]func() testStore{
		"memory": func() testStore { return NewMemoryStore() },
		"sqlite": func() testStore { return newSQLiteStore(t) },
	}
}

func TestStore_ListByStatusOnlyAccepted(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			ctx := context.Background()
			mustCreate(t, s, CallRecord{CallID: "c2", RoomName: "r2", Status: CallStatusAccepted, StartedAt: t0.Add(time.Minute)})
			mustCreate(t, s, CallRecord{CallID: "c1", RoomName: "r1", Status: CallStatusAccepted, StartedAt: t0})
			mustCreate(t, s, CallRecord{CallID: "p1", RoomName: "r3", Status: CallStatusPending})

			got, err := s.ListByStatus(ctx, CallStatusAccepted)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 2 || got[0].CallID != "c1" || got[1].CallID != "c2" {
				t.Fatalf("unexpected list: %+v", got)
			}
			if !got[0].StartedAt.Equal(t0) {
				t.Fatalf("started_at round trip: got %s", got[0].StartedAt)
			}
		})
	}
}

func TestStore_SetEndedFirstWriterWins(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			ctx := context.Background()
			mustCreate(t, s, CallRecord{CallID: "c1", RoomName: "r1", Status: CallStatusAccepted, StartedAt: t0})

			if err := s.SetEnded(ctx, "c1", t0.Add(301*time.Second), EndReasonRoomMissing, 301); err != nil {
				t.Fatalf("first SetEnded: %v", err)
			}
			err := s.SetEnded(ctx, "c1", t0.Add(900*time.Second), EndReasonClientReported, 900)
			if !errors.Is(err, ErrAlreadyEnded) {
				t.Fatalf("expected ErrAlreadyEnded, got %v", err)
			}

			c, err := s.Get(ctx, "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if c.Status != CallStatusEnded || c.EndReason != EndReasonRoomMissing {
				t.Fatalf("unexpected end state: %+v", c)
			}
			if c.DurationSeconds == nil || *c.DurationSeconds != 301 {
				t.Fatalf("duration must stay 301, got %v", c.DurationSeconds)
			}
			if c.EndedAt == nil || !c.EndedAt.Equal(t0.Add(301*time.Second)) {
				t.Fatalf("unexpected ended_at: %v", c.EndedAt)
			}

			remaining, err := s.ListByStatus(ctx, CallStatusAccepted)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(remaining) != 0 {
				t.Fatalf("ended call must leave the accepted set")
			}
		})
	}
}

func TestStore_SetEndedOutcomes(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			ctx := context.Background()
			mustCreate(t, s, CallRecord{CallID: "p1", RoomName: "r", Status: CallStatusPending})

			if err := s.SetEnded(ctx, "missing", t0, EndReasonRoomMissing, 0); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.SetEnded(ctx, "p1", t0, EndReasonRoomMissing, 0); !errors.Is(err, ErrNotActive) {
				t.Fatalf("expected ErrNotActive, got %v", err)
			}
			if err := s.SetEnded(ctx, "p1", t0, EndReason("crashed"), 0); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument for unknown reason, got %v", err)
			}
			if err := s.SetEnded(ctx, "p1", t0, EndReasonRoomMissing, -1); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument for negative duration, got %v", err)
			}
		})
	}
}

func TestStore_ConcurrentEndsExactlyOneWins(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			ctx := context.Background()
			mustCreate(t, s, CallRecord{CallID: "c1", RoomName: "r1", Status: CallStatusAccepted, StartedAt: t0})

			const writers = 8
			var wg sync.WaitGroup
			results := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					reason := EndReasonRoomAbandoned
					if i%2 == 0 {
						reason = EndReasonClientReported
					}
					results <- s.SetEnded(ctx, "c1", t0.Add(time.Duration(400+i)*time.Second), reason, 400+i)
				}(i)
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrAlreadyEnded):
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one winner, got %d", wins)
			}

			c, err := s.Get(ctx, "c1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := DurationSeconds(t0, *c.EndedAt)
			if c.DurationSeconds == nil || *c.DurationSeconds != want {
				t.Fatalf("surviving triple is inconsistent: %+v", c)
			}
		})
	}
}

func TestStore_ListCreatedBetween(t *testing.T) {
	t0 := time.Unix(1700000000, 0).UTC()
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := mk()
			for i := 0; i < 3; i++ {
				at := t0.Add(time.Duration(i) * time.Hour)
				mustCreate(t, s, CallRecord{CallID: fmt.Sprintf("c%d", i), RoomName: "r", Status: CallStatusAccepted, StartedAt: at, CreatedAt: at})
			}
			// pending: created in the window but never started
			mustCreate(t, s, CallRecord{CallID: "p", RoomName: "r", Status: CallStatusPending, CreatedAt: t0.Add(30 * time.Minute)})

			got, err := s.ListCreatedBetween(context.Background(), t0, t0.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 calls in window, got %d", len(got))
			}
			if got[0].CallID != "c0" || got[1].CallID != "p" || got[2].CallID != "c1" {
				t.Fatalf("unexpected order: %s %s %s", got[0].CallID, got[1].CallID, got[2].CallID)
			}
		})
	}
}

func TestCreate_RejectsEndedRows(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	err := s.Create(context.Background(), CallRecord{CallID: "c", RoomName: "r", Status: CallStatusAccepted, StartedAt: now, EndedAt: &now})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	err = s.Create(context.Background(), CallRecord{CallID: "c", RoomName: "r", Status: CallStatusEnded})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestClassifyErr_ConnectivityIsUnavailable(t *testing.T) {
	if err := classifyErr(sql.ErrConnDone); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := classifyErr(ErrAlreadyEnded); !errors.Is(err, ErrAlreadyEnded) || errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("sentinel must pass through, got %v", err)
	}
	if err := classifyErr(errors.New("syntax error")); errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("query errors are not unavailability")
	}
}

func TestStore_ClosedDBIsUnavailable(t *testing.T) {
	db, err := utils.OpenDB(context.Background(), "sqlite3", ":memory:", utils.PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewSQLStore(db, DialectSQLite)
	_ = db.Close()

	_, err = s.ListByStatus(context.Background(), CallStatusAccepted)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on closed db, got %v", err)
	}
}

func mustCreate(t *testing.T, s testStore, c CallRecord) {
	t.Helper()
	if err := s.Create(context.Background(), c); err != nil {
		t.Fatalf("create %s: %v", c.CallID, err)
	}
}
