package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/rs/zerolog/log"
)

// ErrNoTopic is returned when no topic is given and none is configured.
var ErrNoTopic = errors.New("no topic to write about")

// Planner generates drafts and queues them for publishing.
type Planner struct {
	Queue       *Queue
	Credentials ports.CredentialSource
	Generator   ports.Generator
	Topics      []string
	Submadang   string
	CallTimeout time.Duration
}

// Plan writes a draft about topic, or a random configured topic when
// empty, and enqueues it.
func (p *Planner) Plan(ctx context.Context, topic string) (string, error) {
	if topic == "" {
		if len(p.Topics) == 0 {
			return "", ErrNoTopic
		}
		topic = p.Topics[rand.IntN(len(p.Topics))]
	}

	cred, err := p.Credentials.ActiveCredential(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve credential: %w", err)
	}

	genCtx, cancel := withTimeout(ctx, p.CallTimeout)
	draft, err := p.Generator.GenerateDraft(genCtx, cred.Name, topic)
	cancel()
	if err != nil {
		return "", fmt.Errorf("generate draft: %w", err)
	}
	if draft.Topic == "" {
		draft.Topic = topic
	}

	id, err := p.Queue.Enqueue(ctx, domain.PostDraft{
		Topic:     draft.Topic,
		Title:     draft.Title,
		Content:   draft.Content,
		Submadang: p.Submadang,
	})
	if err != nil {
		return "", err
	}
	log.Ctx(ctx).Info().Str("task_id", id).Str("topic", draft.Topic).Msg("draft planned")
	return id, nil
}

// PlanIfIdle plans a draft only when no draft is waiting.
func (p *Planner) PlanIfIdle(ctx context.Context) (string, bool, error) {
	head, err := p.Queue.Store.Oldest(ctx, domain.TypePostDraft, p.Queue.Now(), 0)
	if err != nil {
		return "", false, err
	}
	if head != nil {
		return "", false, nil
	}
	id, err := p.Plan(ctx, "")
	return id, err == nil, err
}
