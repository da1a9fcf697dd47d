package redisq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/redis/go-redis/v9"
)

var _ ports.CursorStore = (*CursorStore)(nil)

var saveCursorScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], 'version')
local cur = 0
if v then cur = tonumber(v) end
if cur ~= tonumber(ARGV[1]) then
  return -1
end
local nv = cur + 1
redis.call('HSET', KEYS[1], 'last_seen_post_id', ARGV[2], 'version', nv, 'updated_at', ARGV[3])
return nv
`)

// CursorStore keeps one watcher hash per agent name.
type CursorStore struct {
	c *Client
}

func NewCursorStore(c *Client) *CursorStore {
	return &CursorStore{c: c}
}

func (s *CursorStore) Load(ctx context.Context, agentName string) (domain.WatcherState, error) {
	h, err := s.c.Rdb.HGetAll(ctx, s.c.key("watcher", agentName)).Result()
	if err != nil {
		return domain.WatcherState{}, fmt.Errorf("load cursor: %w", err)
	}
	if len(h) == 0 {
		return domain.WatcherState{AgentName: agentName}, domain.ErrNotFound
	}
	version, _ := strconv.ParseInt(h["version"], 10, 64)
	return domain.WatcherState{
		AgentName:      agentName,
		LastSeenPostID: h["last_seen_post_id"],
		Version:        version,
		UpdatedAt:      msTime(h["updated_at"]),
	}, nil
}

func (s *CursorStore) Save(ctx context.Context, st domain.WatcherState) (domain.WatcherState, error) {
	now := time.Now().UTC()
	nv, err := saveCursorScript.Run(ctx, s.c.Rdb,
		[]string{s.c.key("watcher", st.AgentName)},
		st.Version, st.LastSeenPostID, now.UnixMilli(),
	).Int64()
	if err != nil {
		return st, fmt.Errorf("save cursor: %w", err)
	}
	if nv < 0 {
		return st, domain.ErrStaleCursor
	}
	st.Version = nv
	st.UpdatedAt = now.Truncate(time.Millisecond)
	return st, nil
}
