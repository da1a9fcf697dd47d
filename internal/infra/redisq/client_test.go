package redisq

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysShareHashTag(t *testing.T) {
	c := newTestClient(t)
	for _, k := range []string{
		c.taskKey("a"), c.queueKey(""), c.queueKey("post_draft"),
		c.replyKey("n1"), c.key("seq"), c.key("lock", "cycle"),
	} {
		assert.True(t, strings.HasPrefix(k, "{test}:"), k)
	}

	c.Cfg.KeyPrefix = "{prod}"
	assert.Equal(t, "{prod}:queue", c.queueKey(""))
}

func TestInsertKeepsKeysInOneSlot(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	insert(t, c, reply("n1"))

	keys, err := c.Rdb.Keys(ctx, "*").Result()
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "{test}:"), k)
	}
}
