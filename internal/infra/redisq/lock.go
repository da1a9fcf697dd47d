package redisq

import (
	"context"
	"fmt"
	"time"

	"madangbot/internal/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ ports.RunLock = (*Lock)(nil)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a single-key token lock; the TTL bounds how long a crashed
// holder can block others.
type Lock struct {
	c    *Client
	name string
}

func NewLock(c *Client, name string) *Lock {
	return &Lock{c: c, name: name}
}

func (l *Lock) TryAcquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.c.key("lock", l.name)
	token := uuid.NewString()
	ok, err := l.c.Rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.name, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.c.Rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
