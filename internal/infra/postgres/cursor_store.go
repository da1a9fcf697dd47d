package postgres

import (
	"context"
	"errors"
	"fmt"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.CursorStore = (*CursorStore)(nil)

type CursorStore struct {
	pool *pgxpool.Pool
}

func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

func (s *CursorStore) Load(ctx context.Context, agentName string) (domain.WatcherState, error) {
	st := domain.WatcherState{AgentName: agentName}
	err := s.pool.QueryRow(ctx, `
		SELECT last_seen_post_id, version, updated_at FROM watcher_state WHERE agent_name = $1`,
		agentName).Scan(&st.LastSeenPostID, &st.Version, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, domain.ErrNotFound
	}
	if err != nil {
		return st, fmt.Errorf("load cursor: %w", err)
	}
	return st, nil
}

func (s *CursorStore) Save(ctx context.Context, st domain.WatcherState) (domain.WatcherState, error) {
	var row pgx.Row
	if st.Version == 0 {
		row = s.pool.QueryRow(ctx, `
			INSERT INTO watcher_state (agent_name, last_seen_post_id, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (agent_name) DO NOTHING
			RETURNING version, updated_at`, st.AgentName, st.LastSeenPostID)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE watcher_state SET last_seen_post_id = $2, version = version + 1, updated_at = now()
			WHERE agent_name = $1 AND version = $3
			RETURNING version, updated_at`, st.AgentName, st.LastSeenPostID, st.Version)
	}

	next := st
	if err := row.Scan(&next.Version, &next.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, domain.ErrStaleCursor
		}
		return st, fmt.Errorf("save cursor: %w", err)
	}
	return next, nil
}
