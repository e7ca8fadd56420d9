package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"smarttv-backend/internal/reconcile"
	"smarttv-backend/pkg/logger"
)

var (
	// ErrPassInProgress is returned when a pass is already running here or on another replica.
	ErrPassInProgress = errors.New("scheduler: reconciliation pass in progress")
	ErrAlreadyRunning = errors.New("scheduler: already running")
	ErrNotRunning     = errors.New("scheduler: not running")
	// ErrStopped is returned for triggers and starts after Stop has begun.
	ErrStopped = errors.New("scheduler: stopped")
)

// Reconciler runs one reconciliation pass. reconcile.Engine satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.SyncReport, error)
}

// Locker provides cross-replica mutual exclusion for a pass.
// Acquire returns ok=false when another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running    bool                  `json:"running"`
	NextRun    *time.Time            `json:"next_run"`
	InFlight   bool                  `json:"in_flight"`
	LastRun    *time.Time            `json:"last_run,omitempty"`
	LastReport *reconcile.SyncReport `json:"last_report,omitempty"`
	LastError  string                `json:"last_error,omitempty"`
}

// Scheduler drives the reconciler on a fixed interval and on demand.
//
// Rules:
// - At most one pass is in flight per process; with a Locker, per deployment.
// - A manual trigger never shifts the next scheduled tick.
// - A pass runs to completion even if the caller that started it goes away.
// - Stop is final: once it begins no new pass starts, and it waits for the running one.
type Scheduler struct {
	rec      Reconciler
	interval time.Duration
	lock     Locker
	log      *slog.Logger
	clock    func() time.Time

	runOnStart bool

	inFlight atomic.Bool
	passes   sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	running    bool
	nextRun    time.Time
	lastRun    time.Time
	lastReport *reconcile.SyncReport
	lastErr    string
	cancel     context.CancelFunc
	done       chan struct{}
}

type Options struct {
	// Interval defaults to 3 minutes.
	Interval time.Duration
	// Lock is optional; nil means single-process exclusion only.
	Lock Locker
	// RunOnStart fires one pass immediately on Start.
	RunOnStart bool

	Log *slog.Logger
	Now func() time.Time
}

func New(rec Reconciler, opts Options) *Scheduler {
	s := &Scheduler{
		rec:        rec,
		interval:   opts.Interval,
		lock:       opts.Lock,
		log:        opts.Log,
		clock:      opts.Now,
		runOnStart: opts.RunOnStart,
	}
	if s.interval <= 0 {
		s.interval = 3 * time.Minute
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Start launches the periodic loop. The loop ends on Stop or when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.rec == nil {
		return errors.New("scheduler: reconciler required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	if s.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.nextRun = s.clock().UTC().Add(s.interval)

	go s.loop(loopCtx, s.done)
	s.log.Info("reconciliation scheduler started", "interval", s.interval.String())
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.nextRun = time.Time{}
		s.mu.Unlock()
	}()

	if s.runOnStart {
		s.tick(ctx)
	}

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			s.nextRun = s.clock().UTC().Add(s.interval)
			s.mu.Unlock()
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	switch err := s.begin(); {
	case errors.Is(err, ErrPassInProgress):
		s.log.Info("scheduled pass skipped, previous pass still running")
		return
	case err != nil:
		return
	}
	defer s.end()

	if _, err := s.pass(ctx, "scheduled"); err != nil {
		if errors.Is(err, ErrPassInProgress) {
			s.log.Info("scheduled pass skipped, lock held by another replica")
			return
		}
		s.log.Error("scheduled pass failed", "err", err)
	}
}

// Stop ends the loop, refuses further passes and waits for any in-flight pass,
// bounded by ctx. It drains passes even when the loop already exited or never started.
// A repeated Stop still waits, then reports ErrNotRunning.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	waited := make(chan struct{})
	go func() {
		if done != nil {
			<-done
		}
		s.passes.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
	if already {
		return ErrNotRunning
	}
	s.log.Info("reconciliation scheduler stopped")
	return nil
}

// begin claims the single pass slot. passes.Add only happens under mu while not closed.
func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrPassInProgress
	}
	s.passes.Add(1)
	return nil
}

func (s *Scheduler) end() {
	s.inFlight.Store(false)
	s.passes.Done()
}

// TriggerNow runs a pass immediately and blocks until it finishes.
func (s *Scheduler) TriggerNow(ctx context.Context) (reconcile.SyncReport, error) {
	if err := s.begin(); err != nil {
		return reconcile.SyncReport{}, err
	}
	defer s.end()
	return s.pass(ctx, "manual")
}

// TriggerAsync starts a pass in the background. ErrPassInProgress and ErrStopped are
// reported synchronously; the outcome is visible through Status.
func (s *Scheduler) TriggerAsync(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	go func() {
		defer s.end()
		if _, err := s.pass(ctx, "manual_async"); err != nil && !errors.Is(err, ErrPassInProgress) {
			s.log.Error("async pass failed", "err", err)
		}
	}()
	return nil
}

// pass runs one reconciliation. The caller holds inFlight.
func (s *Scheduler) pass(ctx context.Context, trigger string) (reconcile.SyncReport, error) {
	// Values are kept (request id, logger); cancellation is not.
	ctx = context.WithoutCancel(ctx)
	log := s.log.With("trigger", trigger)

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return reconcile.SyncReport{}, fmt.Errorf("scheduler: acquire lock: %w", err)
		}
		if !ok {
			return reconcile.SyncReport{}, ErrPassInProgress
		}
		defer release()
	}

	log.Debug("reconciliation pass starting")
	report, err := s.rec.Reconcile(ctx)

	s.mu.Lock()
	s.lastRun = s.clock().UTC()
	s.lastReport = &report
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	return report, err
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, InFlight: s.inFlight.Load(), LastError: s.lastErr}
	if s.running && !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	if !s.lastRun.IsZero() {
		last := s.lastRun
		st.LastRun = &last
	}
	if s.lastReport != nil {
		r := *s.lastReport
		st.LastReport = &r
	}
	return st
}
