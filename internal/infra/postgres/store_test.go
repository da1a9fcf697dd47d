package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"madangbot/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real database and are skipped unless
// TEST_DATABASE_URL is set.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test - requires TEST_DATABASE_URL environment variable")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE queue_tasks, agent_credentials, watcher_state`)
	require.NoError(t, err)
	return pool
}

func TestTaskStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewTaskStore(newTestPool(t))
	now := time.Now()

	reply := &domain.Task{Payload: domain.ReplyTask{NotificationID: "n1", PostID: "p1", User: "kim"}}
	require.NoError(t, s.Insert(ctx, reply))
	err := s.Insert(ctx, &domain.Task{Payload: domain.ReplyTask{NotificationID: "n1", PostID: "p1"}})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	draft := &domain.Task{Payload: domain.PostDraft{Title: "T", Content: "C", Submadang: "general"}}
	require.NoError(t, s.Insert(ctx, draft))

	head, err := s.Oldest(ctx, "", now.Add(time.Second), 0)
	require.NoError(t, err)
	assert.Equal(t, reply.ID, head.ID)

	claimed, err := s.Claim(ctx, domain.TypePostDraft, now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, draft.ID, claimed.ID)
	assert.Equal(t, domain.StatusProcessing, claimed.Status)

	again, err := s.Claim(ctx, domain.TypePostDraft, now.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, s.Requeue(ctx, draft.ID, 1, now.Add(time.Hour)))
	got, err := s.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, domain.StatusPending, got.Status)

	total, pending, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, pending)

	found, err := s.FindPendingReply(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, reply.ID, found.ID)

	require.NoError(t, s.Delete(ctx, reply.ID))
	require.NoError(t, s.Delete(ctx, reply.ID))
	_, err = s.FindPendingReply(ctx, "n1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCursorStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewCursorStore(newTestPool(t))

	st, err := s.Load(ctx, "bot")
	require.ErrorIs(t, err, domain.ErrNotFound)

	st.LastSeenPostID = "p1"
	st, err = s.Save(ctx, st)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Version)

	stale := st
	st.LastSeenPostID = "p2"
	_, err = s.Save(ctx, st)
	require.NoError(t, err)

	_, err = s.Save(ctx, stale)
	assert.ErrorIs(t, err, domain.ErrStaleCursor)
}

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	s := NewCredentialStore(newTestPool(t))

	_, err := s.ActiveCredential(ctx)
	assert.ErrorIs(t, err, domain.ErrNoCredential)

	require.NoError(t, s.Upsert(ctx, domain.Credential{Name: "draft-bot", APIKey: "k0"}, false))
	_, err = s.ActiveCredential(ctx)
	assert.ErrorIs(t, err, domain.ErrNoCredential)

	require.NoError(t, s.Upsert(ctx, domain.Credential{AgentID: "a1", Name: "bot", APIKey: "k1"}, true))
	cred, err := s.ActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Credential{AgentID: "a1", Name: "bot", APIKey: "k1"}, cred)
}

func TestAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	a := NewAdvisoryLock(pool, "cycle-test")
	b := NewAdvisoryLock(pool, "cycle-test")

	release, ok, err := a.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = b.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	release, ok, err = b.TryAcquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, release(ctx))
}
