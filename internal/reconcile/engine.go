package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smarttv-backend/internal/alerting"
	"smarttv-backend/internal/audit"
	"smarttv-backend/internal/calls"
	"smarttv-backend/internal/rooms"
	"smarttv-backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Auditor records terminations. audit.Service satisfies it.
type Auditor interface {
	LogCallEnded(ctx context.Context, actor, actorRole, ip string, c audit.CallEnded) error
}

// Engine cross-checks accepted calls against remote room state and ends the
// ones the remote side shows are over.
//
// Rules:
// - No error ever terminates a call; only a positive classification does.
// - Remote queries run concurrently; store writes are sequential and independent per call.
// - A pass is idempotent: ended calls are no longer listed.
type Engine struct {
	store calls.Store
	rooms rooms.Client

	audit  Auditor
	alerts alerting.Sink
	log    *slog.Logger

	th             Thresholds
	maxConcurrency int
	clock          func() time.Time
}

type Options struct {
	Thresholds     Thresholds
	MaxConcurrency int

	Audit  Auditor
	Alerts alerting.Sink
	Log    *slog.Logger
	Now    func() time.Time
}

func NewEngine(store calls.Store, rc rooms.Client, opts Options) *Engine {
	e := &Engine{
		store:          store,
		rooms:          rc,
		audit:          opts.Audit,
		alerts:         opts.Alerts,
		log:            opts.Log,
		th:             opts.Thresholds.withDefaults(),
		maxConcurrency: opts.MaxConcurrency,
		clock:          opts.Now,
	}
	if e.alerts == nil {
		e.alerts = alerting.Noop{}
	}
	if e.log == nil {
		e.log = logger.Discard()
	}
	if e.maxConcurrency <= 0 {
		e.maxConcurrency = 8
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	return e
}

type snapshotResult struct {
	snap rooms.Snapshot
	err  error
}

// Reconcile runs one pass. The returned report is always populated; a non-nil
// error means the pass was aborted because the store was unavailable.
func (e *Engine) Reconcile(ctx context.Context) (SyncReport, error) {
	if e.store == nil || e.rooms == nil {
		return SyncReport{}, errors.New("reconcile: store and room client required")
	}
	report := newReport(e.clock().UTC())
	log := e.log.With("pass_started_at", report.StartedAt)

	active, err := e.store.ListByStatus(ctx, calls.CallStatusAccepted)
	if err != nil {
		return e.abort(ctx, log, report, fmt.Errorf("reconcile: list accepted calls: %w", err))
	}
	report.Checked = len(active)
	if len(active) == 0 {
		return e.finish(ctx, log, report), nil
	}

	results := e.snapshots(ctx, active)

	for i, c := range active {
		res := results[i]
		if res.err != nil {
			e.skip(ctx, log, &report, c, res.err)
			continue
		}
		snap := res.snap
		if snap.QueriedAt.IsZero() {
			snap.QueriedAt = e.clock().UTC()
		}

		d := Classify(c, snap, e.th)
		if !d.End {
			log.Debug("call still active",
				"call_id", c.CallID,
				"room_name", c.RoomName,
				"room_status", string(snap.Status),
				"connected", snap.ConnectedCount(),
				"age_seconds", int(snap.QueriedAt.Sub(c.StartedAt).Seconds()),
			)
			continue
		}

		err := e.store.SetEnded(ctx, c.CallID, d.EndedAt, d.Reason, d.DurationSeconds)
		switch {
		case err == nil:
			e.ended(ctx, log, &report, c, d)
		case errors.Is(err, calls.ErrAlreadyEnded):
			report.AlreadyEnded = append(report.AlreadyEnded, c.CallID)
			log.Info("call already ended by another writer", "call_id", c.CallID)
		case errors.Is(err, calls.ErrStoreUnavailable):
			return e.abort(ctx, log, report, fmt.Errorf("reconcile: end call %s: %w", c.CallID, err))
		default:
			report.WriteFailures = append(report.WriteFailures, WriteFailure{CallID: c.CallID, Error: err.Error()})
			log.Error("failed to end call", "call_id", c.CallID, "reason", string(d.Reason), "err", err)
		}
	}

	return e.finish(ctx, log, report), nil
}

// snapshots queries every room with bounded concurrency. Per-room failures are
// kept in the result; the group itself never fails.
func (e *Engine) snapshots(ctx context.Context, active []calls.CallRecord) []snapshotResult {
	results := make([]snapshotResult, len(active))
	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, c := range active {
		i, c := i, c
		g.Go(func() error {
			snap, err := e.rooms.Snapshot(ctx, c.RoomName)
			results[i] = snapshotResult{snap: snap, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) skip(ctx context.Context, log *slog.Logger, report *SyncReport, c calls.CallRecord, err error) {
	report.Skipped = append(report.Skipped, SkippedCall{CallID: c.CallID, RoomName: c.RoomName, Error: err.Error()})
	log.Warn("room state unavailable, call left active", "call_id", c.CallID, "room_name", c.RoomName, "err", err)
	e.alerts.Emit(ctx, alerting.Event{
		Type:    alerting.EventRemoteUnavailable,
		Level:   alerting.LevelWarning,
		Message: "room state unavailable",
		Fields:  map[string]any{"call_id": c.CallID, "room_name": c.RoomName, "error": err.Error()},
		At:      e.clock().UTC(),
	})
}

func (e *Engine) ended(ctx context.Context, log *slog.Logger, report *SyncReport, c calls.CallRecord, d Decision) {
	report.Ended++
	report.EndedCalls = append(report.EndedCalls, EndedCall{
		CallID:          c.CallID,
		RoomName:        c.RoomName,
		Reason:          d.Reason,
		EndedAt:         d.EndedAt,
		DurationSeconds: d.DurationSeconds,
	})
	log.Info("call ended by reconciliation",
		"call_id", c.CallID,
		"room_name", c.RoomName,
		"reason", string(d.Reason),
		"duration_seconds", d.DurationSeconds,
	)

	if e.audit != nil {
		if err := e.audit.LogCallEnded(ctx, audit.ActorReconciler, "", "", audit.CallEnded{
			CallID:          c.CallID,
			RoomName:        c.RoomName,
			Reason:          string(d.Reason),
			EndedAt:         d.EndedAt,
			DurationSeconds: d.DurationSeconds,
		}); err != nil {
			log.Warn("audit append failed", "call_id", c.CallID, "err", err)
		}
	}
	e.alerts.Emit(ctx, alerting.Event{
		Type:    alerting.EventCallEnded,
		Level:   alerting.LevelInfo,
		Message: "call ended by reconciliation",
		Fields: map[string]any{
			"call_id":          c.CallID,
			"room_name":        c.RoomName,
			"reason":           string(d.Reason),
			"duration_seconds": d.DurationSeconds,
		},
		At: e.clock().UTC(),
	})
}

func (e *Engine) abort(ctx context.Context, log *slog.Logger, report SyncReport, err error) (SyncReport, error) {
	report.Aborted = true
	report.AbortError = err.Error()
	log.Error("sync pass aborted", "err", err)
	return e.finish(ctx, log, report), err
}

func (e *Engine) finish(ctx context.Context, log *slog.Logger, report SyncReport) SyncReport {
	report.FinishedAt = e.clock().UTC()

	level := alerting.LevelInfo
	switch {
	case report.Aborted:
		level = alerting.LevelError
	case len(report.Skipped) > 0 || len(report.WriteFailures) > 0:
		level = alerting.LevelWarning
	}
	fields := map[string]any{
		"checked":        report.Checked,
		"ended":          report.Ended,
		"skipped":        len(report.Skipped),
		"write_failures": len(report.WriteFailures),
		"already_ended":  len(report.AlreadyEnded),
		"duration_ms":    report.Duration().Milliseconds(),
	}
	if report.Aborted {
		fields["abort_error"] = report.AbortError
	}

	log.Info("sync pass finished",
		"checked", report.Checked,
		"ended", report.Ended,
		"skipped", len(report.Skipped),
		"write_failures", len(report.WriteFailures),
		"aborted", report.Aborted,
	)
	e.alerts.Emit(ctx, alerting.Event{
		Type:    alerting.EventSyncSummary,
		Level:   level,
		Message: "sync pass finished",
		Fields:  fields,
		At:      report.FinishedAt,
	})
	return report
}
