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

const (
	ReasonEmpty          = "empty"
	ReasonUnknownType    = "unknown_type"
	ReasonInvalidPayload = "invalid_payload"

	ResultPost  = "post"
	ResultReply = "reply"
)

type Result struct {
	Processed bool   `json:"processed"`
	Type      string `json:"type,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Worker executes one queued task per call. Drafts always go before
// replies.
type Worker struct {
	Queue       *Queue
	Credentials ports.CredentialSource
	Publisher   ports.Publisher
	Generator   ports.Generator
	Notifier    ports.Notifier

	ClaimLease        time.Duration
	RateLimitCooldown time.Duration
	CallTimeout       time.Duration
	GenerateTimeout   time.Duration
}

func (w *Worker) ProcessOne(ctx context.Context) (Result, error) {
	head, err := w.Queue.peek(ctx, domain.TypePostDraft, w.ClaimLease)
	if err != nil {
		return Result{}, fmt.Errorf("peek: %w", err)
	}
	if head == nil {
		return Result{Reason: ReasonEmpty}, nil
	}

	cred, err := w.Credentials.ActiveCredential(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("resolve credential: %w", err)
	}

	t, err := w.Queue.Claim(ctx, domain.TypePostDraft, w.ClaimLease)
	if err != nil {
		return Result{}, fmt.Errorf("claim: %w", err)
	}
	if t == nil {
		return Result{Reason: ReasonEmpty}, nil
	}

	logger := log.Ctx(ctx).With().
		Str("task_id", t.ID).
		Str("task_type", string(t.Type())).
		Int("retry_count", t.RetryCount).
		Logger()
	ctx = logger.WithContext(ctx)

	res, err := w.dispatch(ctx, cred, t)
	if err == nil {
		// the side effect already happened, so a failed delete must not
		// count as a task failure
		if rmErr := w.Queue.Remove(ctx, t.ID); rmErr != nil {
			logger.Error().Err(rmErr).Msg("remove finished task")
			return res, fmt.Errorf("remove task %s: %w", t.ID, rmErr)
		}
		return res, nil
	}

	var rl *domain.RateLimitError
	if errors.Is(err, domain.ErrRateLimited) {
		delay := w.RateLimitCooldown
		if errors.As(err, &rl) && rl.RetryAfter > delay {
			delay = rl.RetryAfter
		}
		if relErr := w.Queue.Release(ctx, t.ID, w.Queue.Now().Add(delay)); relErr != nil {
			logger.Error().Err(relErr).Msg("release throttled task")
		}
		logger.Warn().Err(err).Dur("cooldown", delay).Msg("upstream throttled, task left pending")
		return Result{}, fmt.Errorf("%w: %w", domain.ErrTooFast, err)
	}

	logger.Error().Err(err).Msg("task failed")
	if mfErr := w.Queue.MarkFailed(ctx, t.ID); mfErr != nil {
		logger.Error().Err(mfErr).Msg("mark failed")
		return Result{}, errors.Join(err, mfErr)
	}
	return Result{}, err
}

// dispatch runs the side effect of t. A nil error means t is finished and
// must be removed, including tasks that are dropped as unprocessable.
func (w *Worker) dispatch(ctx context.Context, cred domain.Credential, t *domain.Task) (Result, error) {
	logger := log.Ctx(ctx)

	if _, unknown := t.Payload.(domain.Unknown); !unknown && t.Payload != nil {
		if err := t.Payload.Validate(); err != nil {
			logger.Error().Err(err).Msg("dropping malformed task")
			return Result{Reason: ReasonInvalidPayload}, nil
		}
	}

	switch p := t.Payload.(type) {
	case domain.PostDraft:
		if err := w.publishDraft(ctx, cred, p); err != nil {
			return Result{}, err
		}
		return Result{Processed: true, Type: ResultPost}, nil
	case domain.ReplyTask:
		if err := w.reply(ctx, cred, p); err != nil {
			return Result{}, err
		}
		return Result{Processed: true, Type: ResultReply}, nil
	default:
		logger.Error().Msg("dropping task of unsupported type")
		return Result{Reason: ReasonUnknownType}, nil
	}
}

func (w *Worker) publishDraft(ctx context.Context, cred domain.Credential, d domain.PostDraft) error {
	callCtx, cancel := withTimeout(ctx, w.CallTimeout)
	defer cancel()

	postID, err := w.Publisher.PublishPost(callCtx, cred, d.Title, d.Content, d.Submadang)
	if err != nil {
		return fmt.Errorf("publish post: %w", err)
	}
	log.Ctx(ctx).Info().Str("post_id", postID).Str("submadang", d.Submadang).Msg("draft published")
	notifyBestEffort(ctx, w.Notifier, fmt.Sprintf("📝 %s published %q in %s", cred.Name, d.Title, d.Submadang))
	return nil
}

func (w *Worker) reply(ctx context.Context, cred domain.Credential, r domain.ReplyTask) error {
	genCtx, cancel := withTimeout(ctx, w.GenerateTimeout)
	text, err := w.Generator.GenerateReply(genCtx, cred.Name, r.PostTitle, r.UserComment, r.User)
	cancel()
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	pubCtx, cancel := withTimeout(ctx, w.CallTimeout)
	defer cancel()
	commentID, err := w.Publisher.PublishComment(pubCtx, cred, r.PostID, text, r.CommentID)
	if err != nil {
		return fmt.Errorf("publish comment: %w", err)
	}
	log.Ctx(ctx).Info().Str("comment_id", commentID).Str("post_id", r.PostID).Str("user", r.User).Msg("reply published")
	notifyBestEffort(ctx, w.Notifier, fmt.Sprintf("💬 %s replied to %s on %q", cred.Name, r.User, r.PostTitle))
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// notifyBestEffort never fails the caller.
func notifyBestEffort(ctx context.Context, n ports.Notifier, msg string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("notification not delivered")
	}
}
