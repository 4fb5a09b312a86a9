package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailrun/internal/core/port"
)

// dispatchLockKey is the advisory-lock key guarding dispatch ticks. One fixed
// key: at most one tick runs at a time across every process sharing the
// database.
const dispatchLockKey = int64(0x6d61696c72756e) // "mailrun"

// RunState implements port.RunState on Postgres: a session advisory lock for
// mutual exclusion and a single-row table recording the latest tick.
type RunState struct {
	pool *pgxpool.Pool
}

func NewRunState(pool *pgxpool.Pool) *RunState {
	return &RunState{pool: pool}
}

// AcquireLock takes the dispatch lock without blocking. The lock is bound to
// one pooled session, which stays pinned until release is called.
func (s *RunState) AcquireLock(ctx context.Context) (func(), bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, dispatchLockKey).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}
	release := func() {
		// Unlock must run on the session that took the lock, even when the
		// tick context is already canceled.
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, dispatchLockKey)
		conn.Release()
	}
	return release, true, nil
}

// LockHeld reports whether any session currently holds the dispatch lock.
func (s *RunState) LockHeld(ctx context.Context) (bool, error) {
	var held bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM pg_locks
		   WHERE locktype = 'advisory'
		     AND ((classid::bigint << 32) | objid::bigint) = $1
		 )`, dispatchLockKey).Scan(&held)
	return held, err
}

func (s *RunState) RecordTick(ctx context.Context, at time.Time, fatalMsg string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dispatch_runs (id, last_tick, last_error) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET last_tick = $1, last_error = $2`, at, fatalMsg)
	return err
}

// LastTick returns the stored tick time and fatal message. Before the first
// tick it returns the zero time.
func (s *RunState) LastTick(ctx context.Context) (time.Time, string, error) {
	var (
		at  *time.Time
		msg string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT last_tick, last_error FROM dispatch_runs WHERE id = 1`).Scan(&at, &msg)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, "", nil
	}
	if err != nil {
		return time.Time{}, "", err
	}
	if at == nil {
		return time.Time{}, msg, nil
	}
	return *at, msg, nil
}

var _ port.RunState = (*RunState)(nil)
