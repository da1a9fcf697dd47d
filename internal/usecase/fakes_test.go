package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/infra/redisq"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testCred = domain.Credential{AgentID: "a1", Name: "madang-bot", APIKey: "key"}

func newTestQueue(t *testing.T) (*Queue, *redisq.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisq.NewWithClient(rdb, "test")
	return NewQueue(store), store
}

type fakeCreds struct {
	cred domain.Credential
	err  error
}

func (f fakeCreds) ActiveCredential(context.Context) (domain.Credential, error) {
	return f.cred, f.err
}

type postCall struct {
	Title, Content, Submadang string
}

type commentCall struct {
	PostID, Content, ParentID string
}

type fakePlatform struct {
	mu sync.Mutex

	postErr    error
	commentErr func(postID string) error

	posts    []postCall
	comments []commentCall

	notifications []domain.Notification
	listErr       error
	read          []string
	readErr       func(id string) error
	// onRead runs before id is recorded as read
	onRead func(id string)

	recent []domain.Post
}

func (f *fakePlatform) PublishPost(_ context.Context, _ domain.Credential, title, content, submadang string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, postCall{title, content, submadang})
	return "post-1", nil
}

func (f *fakePlatform) PublishComment(_ context.Context, _ domain.Credential, postID, content, parentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		if err := f.commentErr(postID); err != nil {
			return "", err
		}
	}
	f.comments = append(f.comments, commentCall{postID, content, parentID})
	return "comment-1", nil
}

func (f *fakePlatform) ListUnreadNotifications(context.Context, domain.Credential, int) ([]domain.Notification, error) {
	return f.notifications, f.listErr
}

func (f *fakePlatform) MarkRead(_ context.Context, _ domain.Credential, id string) error {
	if f.onRead != nil {
		f.onRead(id)
	}
	if f.readErr != nil {
		if err := f.readErr(id); err != nil {
			return err
		}
	}
	f.read = append(f.read, id)
	return nil
}

func (f *fakePlatform) ListRecentPosts(context.Context, domain.Credential, int) ([]domain.Post, error) {
	return f.recent, nil
}

type replyCall struct {
	AgentName, OriginalPost, UserComment, User string
}

type fakeGenerator struct {
	draft    domain.Draft
	draftErr error
	replyErr error
	hang     bool
	replies  []replyCall
}

func (g *fakeGenerator) GenerateDraft(ctx context.Context, _, topic string) (domain.Draft, error) {
	if g.hang {
		<-ctx.Done()
		return domain.Draft{}, ctx.Err()
	}
	if g.draftErr != nil {
		return domain.Draft{}, g.draftErr
	}
	d := g.draft
	if d.Topic == "" {
		d.Topic = topic
	}
	return d, nil
}

func (g *fakeGenerator) GenerateReply(_ context.Context, agentName, originalPost, userComment, user string) (string, error) {
	g.replies = append(g.replies, replyCall{agentName, originalPost, userComment, user})
	if g.replyErr != nil {
		return "", g.replyErr
	}
	return "thanks " + user, nil
}

type fakeNotifier struct {
	msgs []string
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg string) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

type memCursors struct {
	states map[string]domain.WatcherState
	saves  int
}

func newMemCursors() *memCursors {
	return &memCursors{states: map[string]domain.WatcherState{}}
}

func (m *memCursors) Load(_ context.Context, agent string) (domain.WatcherState, error) {
	st, ok := m.states[agent]
	if !ok {
		return domain.WatcherState{AgentName: agent}, domain.ErrNotFound
	}
	return st, nil
}

func (m *memCursors) Save(_ context.Context, st domain.WatcherState) (domain.WatcherState, error) {
	if cur := m.states[st.AgentName]; cur.Version != st.Version {
		return st, domain.ErrStaleCursor
	}
	st.Version++
	st.UpdatedAt = time.Now()
	m.states[st.AgentName] = st
	m.saves++
	return st, nil
}
