package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"madangbot/internal/config"
	"madangbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cred = domain.Credential{Name: "bot", APIKey: "secret"}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(config.Platform{BaseURL: srv.URL + "/api/v1/", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestPublishPost(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/posts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"title": "T", "content": "C", "submadang": "general"}, body)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"post-42"}`))
	})

	id, err := c.PublishPost(context.Background(), cred, "T", "C", "general")
	require.NoError(t, err)
	assert.Equal(t, "post-42", id)
}

func TestPublishCommentWithParent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/posts/p1/comments", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "c9", body["parent_id"])
		_, _ = w.Write([]byte(`{"id":"c10"}`))
	})

	id, err := c.PublishComment(context.Background(), cred, "p1", "hi", "c9")
	require.NoError(t, err)
	assert.Equal(t, "c10", id)
}

func TestRateLimitedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, err := c.PublishPost(context.Background(), cred, "T", "C", "general")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	var rl *domain.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 2*time.Minute, rl.RetryAfter)
	assert.Equal(t, "slow down", rl.Message)
}

func TestStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	err := c.MarkRead(context.Background(), cred, "n1")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.NotErrorIs(t, err, domain.ErrRateLimited)
}

func TestListNotificationsAndPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/notifications":
			assert.Equal(t, "true", r.URL.Query().Get("unread"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"notifications":[{"id":"n1","type":"comment_on_post","post_id":"p1","actor_name":"kim","content_preview":"hi","post_title":"T"}]}`))
		case "/api/v1/posts":
			assert.Equal(t, "new", r.URL.Query().Get("sort"))
			_, _ = w.Write([]byte(`{"posts":[{"id":"p2","author":{"id":"u1","name":"lee"},"title":"x","content":"y","comment_count":0}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	notes, err := c.ListUnreadNotifications(ctx, cred, 5)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.Notification{
		ID: "n1", Type: domain.NotifyCommentOnPost, PostID: "p1", ActorName: "kim", ContentPreview: "hi", PostTitle: "T",
	}, notes[0])

	posts, err := c.ListRecentPosts(ctx, cred, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "lee", posts[0].Author.Name)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Minute, parseRetryAfter(now.Add(time.Minute).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
}
