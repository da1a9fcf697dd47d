package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/rs/zerolog/log"
)

type Stats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

// Queue is the only component that reads or writes the task store.
type Queue struct {
	Store ports.TaskStore
	Now   func() time.Time
}

func NewQueue(store ports.TaskStore) *Queue {
	return &Queue{Store: store, Now: time.Now}
}

// Enqueue stores a new pending task and returns its id. Reply tasks are
// deduplicated by notification id: an existing live row's id is returned,
// and a lost insert race returns "" with no error.
func (q *Queue) Enqueue(ctx context.Context, p domain.Payload) (string, error) {
	id, _, err := q.enqueue(ctx, p)
	return id, err
}

// enqueue also reports whether a new row was created.
func (q *Queue) enqueue(ctx context.Context, p domain.Payload) (string, bool, error) {
	if p == nil {
		return "", false, fmt.Errorf("%w: nil payload", domain.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return "", false, err
	}

	logger := log.Ctx(ctx).With().Str("task_type", string(p.TaskType())).Logger()

	if r, ok := p.(domain.ReplyTask); ok {
		existing, err := q.Store.FindPendingReply(ctx, r.NotificationID)
		switch {
		case err == nil:
			logger.Debug().Str("task_id", existing.ID).Str("notification_id", r.NotificationID).
				Msg("reply already queued")
			return existing.ID, false, nil
		case !errors.Is(err, domain.ErrNotFound):
			return "", false, err
		}
	}

	t := &domain.Task{Payload: p}
	if err := q.Store.Insert(ctx, t); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			logger.Info().Msg("duplicate enqueue ignored")
			return "", false, nil
		}
		return "", false, err
	}
	logger.Info().Str("task_id", t.ID).Msg("task enqueued")
	return t.ID, true, nil
}

// Peek returns the oldest available task of priority, falling back to the
// oldest of any type. It never mutates the store.
func (q *Queue) Peek(ctx context.Context, priority domain.TaskType) (*domain.Task, error) {
	return q.peek(ctx, priority, 0)
}

// peek is Peek that also sees processing tasks whose lease has expired,
// which is what Claim with the same lease would return.
func (q *Queue) peek(ctx context.Context, priority domain.TaskType, lease time.Duration) (*domain.Task, error) {
	now := q.Now()
	if priority != "" {
		t, err := q.Store.Oldest(ctx, priority, now, lease)
		if err != nil || t != nil {
			return t, err
		}
	}
	return q.Store.Oldest(ctx, "", now, lease)
}

// Claim is Peek plus an atomic switch to processing. A claimed task must be
// finished with Remove, MarkFailed or Release.
func (q *Queue) Claim(ctx context.Context, priority domain.TaskType, lease time.Duration) (*domain.Task, error) {
	now := q.Now()
	if priority != "" {
		t, err := q.Store.Claim(ctx, priority, now, lease)
		if err != nil || t != nil {
			return t, err
		}
	}
	return q.Store.Claim(ctx, "", now, lease)
}

// Remove deletes the task. Idempotent.
func (q *Queue) Remove(ctx context.Context, id string) error {
	if err := q.Store.Delete(ctx, id); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("task_id", id).Msg("task removed")
	return nil
}

// MarkFailed bumps the retry count and puts the task back to pending, or
// deletes it once the count would reach domain.MaxRetries.
func (q *Queue) MarkFailed(ctx context.Context, id string) error {
	t, err := q.Store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	next := t.RetryCount + 1
	logger := log.Ctx(ctx).With().Str("task_id", id).Str("task_type", string(t.Type())).Int("retry_count", next).Logger()
	if next >= domain.MaxRetries {
		if err := q.Store.Delete(ctx, id); err != nil {
			return err
		}
		logger.Warn().Msg("task dropped after exhausting retries")
		return nil
	}
	if err := q.Store.Requeue(ctx, id, next, time.Time{}); err != nil {
		return err
	}
	logger.Info().Msg("task scheduled for retry")
	return nil
}

// Release returns a claimed task to pending without touching its retry
// count. It will not be picked before notBefore.
func (q *Queue) Release(ctx context.Context, id string, notBefore time.Time) error {
	t, err := q.Store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := q.Store.Requeue(ctx, id, t.RetryCount, notBefore); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("task_id", id).Time("not_before", notBefore).Msg("task released")
	return nil
}

func (q *Queue) Get(ctx context.Context, id string) (*domain.Task, error) {
	return q.Store.Get(ctx, id)
}

func (q *Queue) List(ctx context.Context, limit int) ([]domain.Task, error) {
	return q.Store.List(ctx, limit)
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	total, pending, err := q.Store.Counts(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, Pending: pending}, nil
}
