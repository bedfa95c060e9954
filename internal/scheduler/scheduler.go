package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"docloom/features/dispatch"
	"docloom/internal/lock"
	"docloom/internal/settings"
)

const (
	localDateLayout = "2006-01-02"
	lockTTL         = 5 * time.Minute
)

// State is the persisted scheduler bookkeeping, one JSON document in the
// system settings store. Scheduled and catch-up runs are recorded
// separately so operators can tell them apart.
type State struct {
	Timezone                          string     `json:"timezone"`
	LastMidnightRunLocalDate          string     `json:"last_midnight_run_local_date,omitempty"`
	LastMidnightDispatchAt            *time.Time `json:"last_midnight_dispatch_at,omitempty"`
	LastMidnightDispatchedCount       int        `json:"last_midnight_dispatched_count"`
	LastStartupCatchupAt              *time.Time `json:"last_startup_catchup_at,omitempty"`
	LastStartupCatchupDispatchedCount int        `json:"last_startup_catchup_dispatched_count"`
	LastBatchDispatchID               string     `json:"last_batch_dispatch_id,omitempty"`
}

// Status augments State with derived fields for the operations endpoint.
type Status struct {
	State
	NextMidnight      time.Time `json:"next_midnight"`
	MissedRunDetected bool      `json:"missed_run_detected"`
}

// Dispatcher is the dispatch pass the scheduler triggers.
type Dispatcher interface {
	DispatchQueued(ctx context.Context, trigger string, limit int) (*dispatch.Result, error)
}

// QueueCounter reports pending work, used to decide whether startup
// catch-up has anything to do.
type QueueCounter interface {
	CountQueued(ctx context.Context) (int, error)
}

// Locker takes the cross-replica scheduler lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*lock.Lease, error)
}

// Scheduler fires one global dispatch per local calendar day at midnight
// and recovers missed runs on startup. Idempotency is by local date, and
// a non-blocking distributed lock keeps replicas from double-firing.
type Scheduler struct {
	dispatcher Dispatcher
	queue      QueueCounter
	locker     Locker
	store      settings.Store
	loc        *time.Location
	limit      int
	now        func() time.Time
}

func New(dispatcher Dispatcher, queue QueueCounter, locker Locker, store settings.Store, timezone string, limit int) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone %q: %w", timezone, err)
	}
	return &Scheduler{
		dispatcher: dispatcher,
		queue:      queue,
		locker:     locker,
		store:      store,
		loc:        loc,
		limit:      limit,
		now:        time.Now,
	}, nil
}

// Run blocks until ctx is cancelled, firing the midnight dispatch when
// the local day rolls over.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.nextMidnight(s.now())
		slog.InfoContext(ctx, "scheduler sleeping until local midnight", "next", next, "timezone", s.loc.String())

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if _, err := s.RunMidnightDispatchIfDue(ctx); err != nil {
			slog.ErrorContext(ctx, "midnight dispatch failed", "error", err)
		}
	}
}

// RunMidnightDispatchIfDue performs today's scheduled dispatch unless it
// already happened or another replica holds the lock. Returns whether a
// dispatch ran.
func (s *Scheduler) RunMidnightDispatchIfDue(ctx context.Context) (bool, error) {
	today := s.now().In(s.loc).Format(localDateLayout)

	state, err := s.loadState(ctx)
	if err != nil {
		return false, err
	}
	if state.LastMidnightRunLocalDate == today {
		return false, nil
	}

	lease, err := s.locker.Acquire(ctx, lock.SchedulerLockName("midnight_dispatch"), lockTTL, 0)
	if errors.Is(err, lock.ErrUnavailable) {
		slog.InfoContext(ctx, "another instance is running the midnight dispatch")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	// Recheck under the lock; the other instance may have finished
	// between our read and the acquire.
	state, err = s.loadState(ctx)
	if err != nil {
		return false, err
	}
	if state.LastMidnightRunLocalDate == today {
		return false, nil
	}

	result, err := s.dispatcher.DispatchQueued(ctx, dispatch.TriggerScheduled, s.limit)
	if err != nil {
		return false, fmt.Errorf("scheduled dispatch: %w", err)
	}

	now := s.now()
	state.Timezone = s.loc.String()
	state.LastMidnightRunLocalDate = today
	state.LastMidnightDispatchAt = &now
	state.LastMidnightDispatchedCount = result.Dispatched
	state.LastBatchDispatchID = result.BatchDispatchID
	if err := s.store.Put(ctx, settings.NamespaceScheduler, settings.KeySchedulerState, state); err != nil {
		return true, fmt.Errorf("persist scheduler state: %w", err)
	}

	slog.InfoContext(ctx, "midnight dispatch completed", "local_date", today,
		"dispatched", result.Dispatched, "batch_dispatch_id", result.BatchDispatchID)
	return true, nil
}

// RunStartupCatchupIfMissed dispatches queued work at process start when
// today's scheduled run has not happened yet. Recorded on the catch-up
// counters, not the daily ones, so the midnight run still fires.
func (s *Scheduler) RunStartupCatchupIfMissed(ctx context.Context) (bool, error) {
	queued, err := s.queue.CountQueued(ctx)
	if err != nil {
		return false, err
	}
	if queued == 0 {
		return false, nil
	}

	today := s.now().In(s.loc).Format(localDateLayout)
	state, err := s.loadState(ctx)
	if err != nil {
		return false, err
	}
	if state.LastMidnightRunLocalDate == today {
		return false, nil
	}

	lease, err := s.locker.Acquire(ctx, lock.SchedulerLockName("startup_catchup"), lockTTL, 0)
	if errors.Is(err, lock.ErrUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer lease.Release(context.WithoutCancel(ctx))

	result, err := s.dispatcher.DispatchQueued(ctx, dispatch.TriggerCatchup, s.limit)
	if err != nil {
		return false, fmt.Errorf("startup catch-up dispatch: %w", err)
	}

	now := s.now()
	state.Timezone = s.loc.String()
	state.LastStartupCatchupAt = &now
	state.LastStartupCatchupDispatchedCount = result.Dispatched
	state.LastBatchDispatchID = result.BatchDispatchID
	if err := s.store.Put(ctx, settings.NamespaceScheduler, settings.KeySchedulerState, state); err != nil {
		return true, fmt.Errorf("persist scheduler state: %w", err)
	}

	slog.InfoContext(ctx, "startup catch-up dispatch completed",
		"queued_before", queued, "dispatched", result.Dispatched, "batch_dispatch_id", result.BatchDispatchID)
	return true, nil
}

func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	state, err := s.loadState(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := now.In(s.loc).Format(localDateLayout)
	return &Status{
		State:             *state,
		NextMidnight:      s.nextMidnight(now),
		MissedRunDetected: state.LastMidnightRunLocalDate != today,
	}, nil
}

func (s *Scheduler) loadState(ctx context.Context) (*State, error) {
	state := &State{Timezone: s.loc.String()}
	if _, _, err := s.store.Get(ctx, settings.NamespaceScheduler, settings.KeySchedulerState, state); err != nil {
		return nil, fmt.Errorf("load scheduler state: %w", err)
	}
	return state, nil
}

func (s *Scheduler) nextMidnight(now time.Time) time.Time {
	local := now.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.loc)
}
