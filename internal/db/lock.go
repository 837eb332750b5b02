package db

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunLockKey is the advisory lock key that serializes pipeline runs.
const RunLockKey int64 = 0x6e657773 // "news"

// RunLock serializes pipeline runs across processes with a PostgreSQL session
// advisory lock. The lock lives on one pooled connection that is held until
// the returned release func is called.
type RunLock struct {
	db  *DB
	key int64
}

// NewRunLock creates a lock on key. A zero key uses RunLockKey.
func (db *DB) NewRunLock(key int64) *RunLock {
	if key == 0 {
		key = RunLockKey
	}
	return &RunLock{db: db, key: key}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *RunLock) Lock(ctx context.Context) (func(), error) {
	conn, err := l.db.pool.Acquire(ctx)
	if err != nil {
		return nil, &StoreError{Op: "acquire run lock", Cause: err}
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, l.key); err != nil {
		conn.Release()
		return nil, &StoreError{Op: "acquire run lock", Cause: err}
	}
	return l.releaser(conn), nil
}

// TryLock acquires the lock without waiting. ok is false when another
// session holds it.
func (l *RunLock) TryLock(ctx context.Context) (release func(), ok bool, err error) {
	conn, err := l.db.pool.Acquire(ctx)
	if err != nil {
		return nil, false, &StoreError{Op: "acquire run lock", Cause: err}
	}
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, &StoreError{Op: "acquire run lock", Cause: err}
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return l.releaser(conn), true, nil
}

func (l *RunLock) releaser(conn *pgxpool.Conn) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the run's ctx may already be cancelled here
			if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key); err != nil {
				// closing the session drops every advisory lock it holds
				_ = conn.Conn().Close(context.Background())
			}
			conn.Release()
		})
	}
}
