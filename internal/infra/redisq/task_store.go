package redisq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.TaskStore = (*Client)(nil)

// Every live task sits in the global queue zset and in its type zset,
// scored by an insertion sequence so ZRANGE yields FIFO order.

var insertScript = redis.NewScript(`
if ARGV[6] == '1' then
  if not redis.call('SET', KEYS[5], ARGV[1], 'NX') then
    local existing = redis.call('GET', KEYS[5])
    if redis.call('EXISTS', ARGV[7] .. existing) == 1 then
      return 0
    end
    redis.call('SET', KEYS[5], ARGV[1])
  end
end
local seq = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'type', ARGV[2], 'status', 'pending', 'retry_count', 0,
  'created_at', ARGV[3], 'seq', seq, 'not_before', 0, 'claimed_at', 0,
  'payload', ARGV[4], 'notification_id', ARGV[5])
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('ZADD', KEYS[3], seq, ARGV[1])
return 1
`)

// scanBatch is how many queue entries a select script reads per ZRANGE.
const scanBatch = 100

var selectScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local claim = ARGV[2] == '1'
local lease = tonumber(ARGV[3])
local batch = tonumber(ARGV[5])
local start = 0
while true do
  local ids = redis.call('ZRANGE', KEYS[1], start, start + batch - 1)
  if #ids == 0 then
    return false
  end
  for _, id in ipairs(ids) do
    local key = ARGV[4] .. id
    local f = redis.call('HMGET', key, 'status', 'not_before', 'claimed_at')
    local pick = false
    if f[1] == 'pending' and tonumber(f[2]) <= now then
      pick = true
    elseif lease > 0 and f[1] == 'processing' and tonumber(f[3]) + lease <= now then
      pick = true
    end
    if pick then
      if claim then
        redis.call('HSET', key, 'status', 'processing', 'claimed_at', ARGV[1])
      end
      return redis.call('HGETALL', key)
    end
  end
  start = start + batch
end
`)

var requeueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'status', 'pending', 'retry_count', ARGV[1], 'not_before', ARGV[2], 'claimed_at', 0)
return 1
`)

var deleteScript = redis.NewScript(`
local f = redis.call('HMGET', KEYS[1], 'type', 'notification_id')
redis.call('ZREM', KEYS[2], ARGV[1])
if not f[1] then
  return 0
end
redis.call('ZREM', ARGV[2] .. f[1], ARGV[1])
if f[2] and f[2] ~= '' then
  local dk = ARGV[3] .. f[2]
  if redis.call('GET', dk) == ARGV[1] then
    redis.call('DEL', dk)
  end
end
redis.call('DEL', KEYS[1])
return 1
`)

// countScript walks the whole queue to count pending tasks; it backs the
// stats endpoint only.
var countScript = redis.NewScript(`
local total = redis.call('ZCARD', KEYS[1])
local batch = tonumber(ARGV[2])
local pending = 0
for start = 0, total - 1, batch do
  local ids = redis.call('ZRANGE', KEYS[1], start, start + batch - 1)
  for _, id in ipairs(ids) do
    if redis.call('HGET', ARGV[1] .. id, 'status') == 'pending' then
      pending = pending + 1
    end
  end
end
return {total, pending}
`)

func (c *Client) Insert(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	payload, err := domain.EncodePayload(t.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var notificationID, dedup string
	dedup = "0"
	if r, ok := t.Payload.(domain.ReplyTask); ok {
		notificationID = r.NotificationID
		dedup = "1"
	}

	t.Status = domain.StatusPending
	t.RetryCount = 0
	t.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	typ := string(t.Type())
	res, err := insertScript.Run(ctx, c.Rdb,
		[]string{c.taskKey(t.ID), c.queueKey(typ), c.queueKey(""), c.key("seq"), c.replyKey(notificationID)},
		t.ID, typ, t.CreatedAt.UnixMicro(), payload, notificationID, dedup, c.taskKey(""),
	).Int()
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	if res == 0 {
		return domain.ErrDuplicate
	}
	log.Ctx(ctx).Debug().Str("task_id", t.ID).Str("task_type", typ).Msg("task stored")
	return nil
}

func (c *Client) FindPendingReply(ctx context.Context, notificationID string) (*domain.Task, error) {
	id, err := c.Rdb.Get(ctx, c.replyKey(notificationID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup reply %s: %w", notificationID, err)
	}
	t, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != domain.StatusPending && t.Status != domain.StatusProcessing {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (c *Client) Oldest(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error) {
	return c.selectTask(ctx, typ, now, false, lease)
}

func (c *Client) Claim(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error) {
	return c.selectTask(ctx, typ, now, true, lease)
}

func (c *Client) selectTask(ctx context.Context, typ domain.TaskType, now time.Time, claim bool, lease time.Duration) (*domain.Task, error) {
	flag := "0"
	if claim {
		flag = "1"
	}
	res, err := selectScript.Run(ctx, c.Rdb,
		[]string{c.queueKey(string(typ))},
		now.UnixMilli(), flag, lease.Milliseconds(), c.taskKey(""), scanBatch,
	).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return decodeTask(pairsToMap(res))
}

func (c *Client) Get(ctx context.Context, id string) (*domain.Task, error) {
	h, err := c.Rdb.HGetAll(ctx, c.taskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	if len(h) == 0 {
		return nil, domain.ErrNotFound
	}
	return decodeTask(h)
}

func (c *Client) Requeue(ctx context.Context, id string, retryCount int, notBefore time.Time) error {
	var nb int64
	if !notBefore.IsZero() {
		nb = notBefore.UnixMilli()
	}
	if err := requeueScript.Run(ctx, c.Rdb, []string{c.taskKey(id)}, retryCount, nb).Err(); err != nil {
		return fmt.Errorf("requeue task %s: %w", id, err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	err := deleteScript.Run(ctx, c.Rdb,
		[]string{c.taskKey(id), c.queueKey("")},
		id, c.queueKey("")+":", c.replyKey(""),
	).Err()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (c *Client) Counts(ctx context.Context) (int, int, error) {
	res, err := countScript.Run(ctx, c.Rdb, []string{c.queueKey("")}, c.taskKey(""), scanBatch).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return int(res[0]), int(res[1]), nil
}

func (c *Client) List(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := c.Rdb.ZRange(ctx, c.queueKey(""), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	pipe := c.Rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, c.taskKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]domain.Task, 0, len(ids))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		t, err := decodeTask(h)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func pairsToMap(kv []string) map[string]string {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func decodeTask(h map[string]string) (*domain.Task, error) {
	typ := domain.TaskType(h["type"])
	p, err := domain.DecodePayload(typ, []byte(h["payload"]))
	if err != nil {
		return nil, err
	}
	retry, _ := strconv.Atoi(h["retry_count"])
	created, _ := strconv.ParseInt(h["created_at"], 10, 64)
	t := &domain.Task{
		ID:         h["id"],
		Status:     domain.TaskStatus(h["status"]),
		RetryCount: retry,
		CreatedAt:  time.UnixMicro(created).UTC(),
		NotBefore:  msTime(h["not_before"]),
		ClaimedAt:  msTime(h["claimed_at"]),
		Payload:    p,
	}
	return t, nil
}

func msTime(s string) time.Time {
	ms, _ := strconv.ParseInt(s, 10, 64)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
