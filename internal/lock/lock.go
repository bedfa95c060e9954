package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable is returned when a lease could not be acquired within the
// caller's blocking timeout. Holders of queued work should requeue rather
// than fail on it.
var ErrUnavailable = errors.New("lock unavailable")

const pollInterval = 250 * time.Millisecond

// Manager hands out lease-based exclusive locks backed by a Postgres table.
// A lease is free when no row exists for its name or the existing row has
// expired; acquisition is a single INSERT ... ON CONFLICT upsert so two
// competing processes cannot both win.
type Manager struct {
	db *sql.DB
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// Lease is a held lock. Release it when done; an unreleased lease expires
// on its own after the TTL.
type Lease struct {
	Name   string
	Holder string

	mgr *Manager
}

// Acquire takes the named lease, waiting up to blockFor before giving up
// with ErrUnavailable. A zero blockFor makes a single non-blocking attempt.
func (m *Manager) Acquire(ctx context.Context, name string, ttl, blockFor time.Duration) (*Lease, error) {
	holder := uuid.New().String()
	deadline := time.Now().Add(blockFor)

	for {
		ok, err := m.tryAcquire(ctx, name, holder, ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", name, err)
		}
		if ok {
			return &Lease{Name: name, Holder: holder, mgr: m}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *Manager) tryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	// RETURNING yields a row only when the insert or takeover applied,
	// so a no-rows scan means someone else holds a live lease.
	query := `
		INSERT INTO distributed_leases (name, holder, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE distributed_leases.expires_at < NOW()
		RETURNING expires_at`

	var expires time.Time
	err := m.db.QueryRowContext(ctx, query, name, holder, int(ttl.Seconds())).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Release frees the lease if we still hold it. Releasing a lease that
// expired and was taken over by someone else is a no-op.
func (l *Lease) Release(ctx context.Context) error {
	if l.mgr == nil {
		return nil
	}
	query := `DELETE FROM distributed_leases WHERE name = $1 AND holder = $2`
	_, err := l.mgr.db.ExecContext(ctx, query, l.Name, l.Holder)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", l.Name, err)
	}
	return nil
}

// DocumentLockName is the lease name guarding all mutations of a document's
// vectors and lifecycle state.
func DocumentLockName(documentID string) string {
	return "ingest:doc:" + documentID
}

// SchedulerLockName guards a named scheduler action across replicas.
func SchedulerLockName(action string) string {
	return "scheduler:" + action
}
