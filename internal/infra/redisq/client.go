package redisq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"madangbot/internal/config"
	"madangbot/pkg/backoff"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrRedisNotReady = errors.New("redis is not ready")

type Client struct {
	Cfg config.Redis
	Rdb *redis.Client
}

func New(cfg config.Redis) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	log.Info().Msgf("connecting to redis at %s", opt.Addr)
	return &Client{Cfg: cfg, Rdb: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing connection; used by tests.
func NewWithClient(rdb *redis.Client, prefix string) *Client {
	return &Client{Cfg: config.Redis{KeyPrefix: prefix}, Rdb: rdb}
}

// Connect pings redis, retrying with backoff up to RetryAttempts times.
func (c *Client) Connect(ctx context.Context) error {
	attempts := max(c.Cfg.RetryAttempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = c.Rdb.Ping(ctx).Err(); err == nil {
			log.Ctx(ctx).Info().Msg("connected to redis")
			return nil
		}
		if i == attempts {
			break
		}
		delay := backoff.ExponentialJitter(c.Cfg.RetryInterval, 10*time.Second, i)
		log.Ctx(ctx).Warn().Err(err).Int("attempt", i).Dur("delay", delay).Msg("redis ping failed, retrying")
		select {
		case <-ctx.Done():
			return errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(delay):
		}
	}
	return errors.Join(ErrRedisNotReady, err)
}

func (c *Client) Close() error { return c.Rdb.Close() }

// key builds a key under the prefix wrapped in a hash tag, so every key the
// scripts touch hashes to one cluster slot.
func (c *Client) key(parts ...string) string {
	k := hashTag(c.Cfg.KeyPrefix)
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func hashTag(prefix string) string {
	if strings.HasPrefix(prefix, "{") && strings.HasSuffix(prefix, "}") {
		return prefix
	}
	return "{" + prefix + "}"
}

func (c *Client) taskKey(id string) string { return c.key("task", id) }

func (c *Client) queueKey(typ string) string {
	if typ == "" {
		return c.key("queue")
	}
	return c.key("queue", typ)
}

func (c *Client) replyKey(notificationID string) string { return c.key("reply", notificationID) }
