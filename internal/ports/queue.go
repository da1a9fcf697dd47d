package ports

import (
	"context"
	"time"

	"madangbot/internal/domain"
)

// TaskStore is the durable table behind the queue. Only usecase.Queue
// talks to it.
type TaskStore interface {
	// Insert stores t as pending with retry count zero and assigns
	// CreatedAt. Returns domain.ErrDuplicate when a pending reply task with
	// the same notification id already exists.
	Insert(ctx context.Context, t *domain.Task) error
	// FindPendingReply returns the live reply task for a notification, or
	// domain.ErrNotFound.
	FindPendingReply(ctx context.Context, notificationID string) (*domain.Task, error)
	// Oldest returns the oldest task available at now, restricted to typ
	// when typ is non-empty. With lease > 0 a processing task claimed more
	// than lease ago counts as available too. Returns nil when nothing
	// matches.
	Oldest(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error)
	// Claim atomically flips the oldest available task (or, with lease > 0,
	// a processing task whose lease expired) to processing and returns it.
	Claim(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	// Requeue puts an existing task back to pending with the given retry
	// count and earliest run time. No-op when absent.
	Requeue(ctx context.Context, id string, retryCount int, notBefore time.Time) error
	// Delete removes the task. No-op when absent.
	Delete(ctx context.Context, id string) error
	Counts(ctx context.Context) (total, pending int, err error)
	List(ctx context.Context, limit int) ([]domain.Task, error)
}

// CursorStore persists the new-post watcher state per agent.
type CursorStore interface {
	// Load returns the cursor, or domain.ErrNotFound on first run.
	Load(ctx context.Context, agentName string) (domain.WatcherState, error)
	// Save writes st if the stored version still equals st.Version and
	// returns the state with its new version. domain.ErrStaleCursor otherwise.
	Save(ctx context.Context, st domain.WatcherState) (domain.WatcherState, error)
}

// RunLock serializes cycles across processes.
type RunLock interface {
	// TryAcquire returns a release func, or ok=false when held elsewhere.
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
