package reporting

import (
	"context"
	"testing"
	"time"

	"smarttv-backend/internal/calls"
)

func seed(t *testing.T, store *calls.MemoryStore, id string, startedAt time.Time) {
	t.Helper()
	err := store.Create(context.Background(), calls.CallRecord{
		CallID: id, RoomName: "room-" + id, Status: calls.CallStatusAccepted, StartedAt: startedAt, CreatedAt: startedAt,
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestReporting_CallsSummaryCountsByStatusAndReason(t *testing.T) {
	ctx := context.Background()
	store := calls.NewMemoryStore()
	now := time.Unix(1700000000, 0).UTC()

	seed(t, store, "c1", now)
	seed(t, store, "c2", now.Add(time.Minute))
	seed(t, store, "c3", now.Add(2*time.Minute))
	seed(t, store, "old", now.Add(-48*time.Hour))
	if err := store.Create(ctx, calls.CallRecord{
		CallID: "ringing", RoomName: "room-ringing", Status: calls.CallStatusPending, CreatedAt: now.Add(3 * time.Minute),
	}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	if err := store.SetEnded(ctx, "c1", now.Add(30*time.Second), calls.EndReasonClientReported, 30); err != nil {
		t.Fatalf("end c1: %v", err)
	}
	if err := store.SetEnded(ctx, "c2", now.Add(11*time.Minute), calls.EndReasonRoomAbandoned, 600); err != nil {
		t.Fatalf("end c2: %v", err)
	}

	out, err := NewService(store).CallsSummary(ctx, CallsSummaryRequest{Range: TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 {
		t.Fatalf("expected 4 calls in range, got %d", out.TotalCalls)
	}
	if out.EndedCalls != 2 || out.ActiveCalls != 1 || out.PendingCalls != 1 {
		t.Fatalf("unexpected status counts: %+v", out)
	}
	if out.EndedBy["client_reported"] != 1 || out.EndedBy["room_abandoned"] != 1 || out.EndedBy["room_missing"] != 0 {
		t.Fatalf("unexpected reason counts: %v", out.EndedBy)
	}
	if out.ReconciledCalls != 1 {
		t.Fatalf("expected 1 reconciled call, got %d", out.ReconciledCalls)
	}
	if out.TotalDurationSeconds != 630 || out.AverageDurationSeconds != 315 {
		t.Fatalf("unexpected durations: total=%d avg=%d", out.TotalDurationSeconds, out.AverageDurationSeconds)
	}
}

func TestReporting_InvalidRange(t *testing.T) {
	svc := NewService(calls.NewMemoryStore())
	now := time.Now()

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{Range: TimeRange{From: now, To: now}}); err != ErrInvalidRequest {
		t.Fatalf("expected ErrInvalidRequest for empty range, got %v", err)
	}
}
