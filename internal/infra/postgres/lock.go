package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"madangbot/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.RunLock = (*AdvisoryLock)(nil)

// AdvisoryLock holds a session-level pg advisory lock on a dedicated
// connection until released. The ttl is not enforced by postgres; the lock
// dies with the session.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64
}

func NewAdvisoryLock(pool *pgxpool.Pool, name string) *AdvisoryLock {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return &AdvisoryLock{pool: pool, key: int64(h.Sum64())}
}

func (l *AdvisoryLock) TryAcquire(ctx context.Context, _ time.Duration) (func(context.Context) error, bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, l.key).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		defer conn.Release()
		_, err := conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
		return err
	}
	return release, true, nil
}
