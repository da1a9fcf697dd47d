package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var _ ports.TaskStore = (*TaskStore)(nil)

const taskColumns = `id, type, status, retry_count, payload, created_at, not_before, claimed_at`

// TaskStore is a PostgreSQL-backed queue table.
type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

func (s *TaskStore) Insert(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	payload, err := domain.EncodePayload(t.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var notificationID *string
	if r, ok := t.Payload.(domain.ReplyTask); ok {
		notificationID = &r.NotificationID
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO queue_tasks (id, type, status, retry_count, payload, notification_id)
		VALUES ($1, $2, 'pending', 0, $3::jsonb, $4)
		RETURNING created_at`,
		t.ID, string(t.Type()), string(payload), notificationID).Scan(&t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert task: %w", err)
	}
	t.Status = domain.StatusPending
	t.RetryCount = 0
	log.Ctx(ctx).Debug().Str("task_id", t.ID).Str("task_type", string(t.Type())).Msg("task stored")
	return nil
}

func (s *TaskStore) FindPendingReply(ctx context.Context, notificationID string) (*domain.Task, error) {
	return s.scanOne(ctx, `
		SELECT `+taskColumns+` FROM queue_tasks
		WHERE type = 'reply_task' AND notification_id = $1 AND status IN ('pending', 'processing')
		LIMIT 1`, notificationID)
}

func (s *TaskStore) Oldest(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error) {
	t, err := s.scanOne(ctx, `
		SELECT `+taskColumns+` FROM queue_tasks
		WHERE ($1::text = '' OR type = $1)
		  AND ((status = 'pending' AND (not_before IS NULL OR not_before <= $2))
		    OR ($3::boolean AND status = 'processing' AND claimed_at <= $4))
		ORDER BY seq ASC
		LIMIT 1`, string(typ), now, lease > 0, now.Add(-lease))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// Claim uses row locking so concurrent claimers never receive the same row.
func (s *TaskStore) Claim(ctx context.Context, typ domain.TaskType, now time.Time, lease time.Duration) (*domain.Task, error) {
	t, err := s.scanOne(ctx, `
		UPDATE queue_tasks SET status = 'processing', claimed_at = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE ($1::text = '' OR type = $1)
			  AND ((status = 'pending' AND (not_before IS NULL OR not_before <= $2))
			    OR ($3::boolean AND status = 'processing' AND claimed_at <= $4))
			ORDER BY seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, string(typ), now, lease > 0, now.Add(-lease))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	return s.scanOne(ctx, `SELECT `+taskColumns+` FROM queue_tasks WHERE id = $1`, id)
}

func (s *TaskStore) Requeue(ctx context.Context, id string, retryCount int, notBefore time.Time) error {
	var nb *time.Time
	if !notBefore.IsZero() {
		nb = &notBefore
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE queue_tasks SET status = 'pending', retry_count = $2, not_before = $3, claimed_at = NULL
		WHERE id = $1`, id, retryCount, nb)
	if err != nil {
		return fmt.Errorf("requeue task %s: %w", id, err)
	}
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM queue_tasks WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}

func (s *TaskStore) Counts(ctx context.Context) (int, int, error) {
	var total, pending int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'pending') FROM queue_tasks`).Scan(&total, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("count tasks: %w", err)
	}
	return total, pending, nil
}

func (s *TaskStore) List(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM queue_tasks ORDER BY seq ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) scanOne(ctx context.Context, query string, args ...any) (*domain.Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return t, err
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		t         domain.Task
		typ       string
		payload   []byte
		notBefore *time.Time
		claimedAt *time.Time
	)
	if err := row.Scan(&t.ID, &typ, &t.Status, &t.RetryCount, &payload, &t.CreatedAt, &notBefore, &claimedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	p, err := domain.DecodePayload(domain.TaskType(typ), payload)
	if err != nil {
		return nil, err
	}
	t.Payload = p
	if notBefore != nil {
		t.NotBefore = *notBefore
	}
	if claimedAt != nil {
		t.ClaimedAt = *claimedAt
	}
	return &t, nil
}
