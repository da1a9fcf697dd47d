package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/rs/zerolog/log"
)

// ScanResult reports one notification scan. MarkReadFailed counts
// notifications left unread on the platform; they come back on the next
// scan and are queued again once their earlier reply task is gone.
type ScanResult struct {
	Success        bool `json:"success"`
	Queued         int  `json:"queued"`
	MarkReadFailed int  `json:"markReadFailed,omitempty"`
}

type WatchResult struct {
	Baseline  bool `json:"baseline,omitempty"`
	Evaluated int  `json:"evaluated"`
	Processed int  `json:"processedCount"`
}

// Sensor turns inbound platform activity into queued work and replies.
// It owns the new-post cursor.
type Sensor struct {
	Queue         *Queue
	Credentials   ports.CredentialSource
	Notifications ports.NotificationSource
	Posts         ports.PostLister
	Publisher     ports.Publisher
	Generator     ports.Generator
	Notifier      ports.Notifier
	Cursors       ports.CursorStore

	NotificationLimit int
	PostLimit         int
	EngageProbability float64
	ReplyCooldown     time.Duration
	CallTimeout       time.Duration
	GenerateTimeout   time.Duration

	// Rand returns a value in [0,1). Defaults to math/rand.
	Rand func() float64
	// Sleep waits d or until ctx ends. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ScanNotifications queues a reply task per repliable unread notification
// and marks each one read after it is safely queued.
func (s *Sensor) ScanNotifications(ctx context.Context) (ScanResult, error) {
	cred, err := s.Credentials.ActiveCredential(ctx)
	if err != nil {
		return ScanResult{}, fmt.Errorf("resolve credential: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, s.CallTimeout)
	notes, err := s.Notifications.ListUnreadNotifications(callCtx, cred, s.NotificationLimit)
	cancel()
	if err != nil {
		return ScanResult{}, fmt.Errorf("list notifications: %w", err)
	}

	res := ScanResult{Success: true}
	for _, n := range notes {
		logger := log.Ctx(ctx).With().Str("notification_id", n.ID).Str("notification_type", string(n.Type)).Logger()

		if !n.Repliable() {
			if err := s.markRead(ctx, cred, n.ID); err != nil {
				res.MarkReadFailed++
			}
			logger.Debug().Msg("notification skipped")
			continue
		}

		_, created, err := s.Queue.enqueue(ctx, domain.ReplyTask{
			NotificationID: n.ID,
			PostID:         n.PostID,
			CommentID:      n.CommentID,
			User:           n.ActorName,
			UserComment:    n.ContentPreview,
			PostTitle:      n.PostTitle,
		})
		if err != nil {
			// left unread so the next scan sees it again
			res.Success = false
			return res, fmt.Errorf("enqueue reply for notification %s: %w", n.ID, err)
		}
		if created {
			res.Queued++
			logger.Info().Str("user", n.ActorName).Msg("reply task queued")
		}
		if err := s.markRead(ctx, cred, n.ID); err != nil {
			res.MarkReadFailed++
		}
	}
	if res.MarkReadFailed > 0 {
		log.Ctx(ctx).Warn().Int("mark_read_failed", res.MarkReadFailed).Msg("some notifications remain unread")
	}
	return res, nil
}

func (s *Sensor) markRead(ctx context.Context, cred domain.Credential, id string) error {
	callCtx, cancel := withTimeout(ctx, s.CallTimeout)
	defer cancel()
	if err := s.Notifications.MarkRead(callCtx, cred, id); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("notification_id", id).Msg("mark read failed")
		return err
	}
	return nil
}

// ScanNewPosts looks at posts newer than the cursor, oldest first, and
// comments on the ones it selects. The cursor moves past every evaluated
// post before any reply is attempted.
func (s *Sensor) ScanNewPosts(ctx context.Context) (WatchResult, error) {
	logger := log.Ctx(ctx)

	cred, err := s.Credentials.ActiveCredential(ctx)
	if errors.Is(err, domain.ErrNoCredential) {
		logger.Warn().Msg("no active credential, new-post scan skipped")
		return WatchResult{}, nil
	}
	if err != nil {
		return WatchResult{}, fmt.Errorf("resolve credential: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, s.CallTimeout)
	posts, err := s.Posts.ListRecentPosts(callCtx, cred, s.PostLimit)
	cancel()
	if err != nil {
		return WatchResult{}, fmt.Errorf("list posts: %w", err)
	}

	st, err := s.Cursors.Load(ctx, cred.Name)
	if errors.Is(err, domain.ErrNotFound) {
		return s.baseline(ctx, st, posts)
	}
	if err != nil {
		return WatchResult{}, err
	}

	candidates := newPostsSince(posts, st.LastSeenPostID, cred)
	res := WatchResult{Evaluated: len(candidates)}
	for i, p := range candidates {
		st.LastSeenPostID = p.ID
		if st, err = s.Cursors.Save(ctx, st); err != nil {
			return res, fmt.Errorf("advance cursor to %s: %w", p.ID, err)
		}

		if !s.selected(p) {
			logger.Debug().Str("post_id", p.ID).Int("comment_count", p.CommentCount).Msg("post skipped")
			continue
		}

		if err := s.comment(ctx, cred, p); err != nil {
			logger.Error().Err(err).Str("post_id", p.ID).Msg("comment on new post failed")
		} else {
			res.Processed++
		}

		if i < len(candidates)-1 {
			if err := s.sleep(ctx, s.ReplyCooldown); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// baseline records the newest post on the first run without acting on
// anything that already existed.
func (s *Sensor) baseline(ctx context.Context, st domain.WatcherState, posts []domain.Post) (WatchResult, error) {
	idx := slices.IndexFunc(posts, func(p domain.Post) bool { return p.ID != "" })
	if idx < 0 {
		return WatchResult{}, nil
	}
	st.LastSeenPostID = posts[idx].ID
	if _, err := s.Cursors.Save(ctx, st); err != nil {
		return WatchResult{}, fmt.Errorf("save baseline cursor: %w", err)
	}
	log.Ctx(ctx).Info().Str("post_id", st.LastSeenPostID).Msg("watcher baseline established")
	return WatchResult{Baseline: true}, nil
}

// newPostsSince walks posts newest-first up to the cursor and returns the
// ones written by others, oldest first.
func newPostsSince(posts []domain.Post, cursor string, cred domain.Credential) []domain.Post {
	var out []domain.Post
	for _, p := range posts {
		if p.ID == cursor {
			break
		}
		if p.ID == "" || p.Author == nil || (p.Author.ID == "" && p.Author.Name == "") {
			continue
		}
		if cred.Owns(*p.Author) {
			continue
		}
		out = append(out, p)
	}
	slices.Reverse(out)
	return out
}

// selected always engages lonely posts and samples the rest.
func (s *Sensor) selected(p domain.Post) bool {
	if p.CommentCount == 0 {
		return true
	}
	r := rand.Float64
	if s.Rand != nil {
		r = s.Rand
	}
	return r() < s.EngageProbability
}

func (s *Sensor) comment(ctx context.Context, cred domain.Credential, p domain.Post) error {
	genCtx, cancel := withTimeout(ctx, s.GenerateTimeout)
	text, err := s.Generator.GenerateReply(genCtx, cred.Name, p.Title, p.Content, p.Author.Name)
	cancel()
	if err != nil {
		return fmt.Errorf("generate comment: %w", err)
	}

	pubCtx, cancel := withTimeout(ctx, s.CallTimeout)
	defer cancel()
	commentID, err := s.Publisher.PublishComment(pubCtx, cred, p.ID, text, "")
	if err != nil {
		return fmt.Errorf("publish comment: %w", err)
	}
	log.Ctx(ctx).Info().Str("post_id", p.ID).Str("comment_id", commentID).Msg("commented on new post")
	notifyBestEffort(ctx, s.Notifier, fmt.Sprintf("👀 %s commented on %q by %s", cred.Name, p.Title, p.Author.Name))
	return nil
}

func (s *Sensor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
