package postgres

import (
	"context"
	"errors"
	"fmt"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.CredentialSource = (*CredentialStore)(nil)

// CredentialStore reads agent identities from agent_credentials. The most
// recently updated verified row is the active one.
type CredentialStore struct {
	pool *pgxpool.Pool
}

func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

func (s *CredentialStore) ActiveCredential(ctx context.Context) (domain.Credential, error) {
	var c domain.Credential
	err := s.pool.QueryRow(ctx, `
		SELECT agent_id, name, api_key FROM agent_credentials
		WHERE verified
		ORDER BY updated_at DESC
		LIMIT 1`).Scan(&c.AgentID, &c.Name, &c.APIKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, domain.ErrNoCredential
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("active credential: %w", err)
	}
	return c, nil
}

// Upsert stores a credential keyed by agent name. Verified rows become
// eligible immediately.
func (s *CredentialStore) Upsert(ctx context.Context, c domain.Credential, verified bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_credentials (id, agent_id, name, api_key, verified)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET agent_id = EXCLUDED.agent_id, api_key = EXCLUDED.api_key,
		    verified = EXCLUDED.verified, updated_at = now()`,
		uuid.Must(uuid.NewV7()).String(), c.AgentID, c.Name, c.APIKey, verified)
	if err != nil {
		return fmt.Errorf("store credential %s: %w", c.Name, err)
	}
	return nil
}
