package ports

import (
	"context"

	"madangbot/internal/domain"
)

// Publisher writes to the community platform. Throttling is reported as an
// error matching domain.ErrRateLimited.
type Publisher interface {
	PublishPost(ctx context.Context, cred domain.Credential, title, content, submadang string) (string, error)
	PublishComment(ctx context.Context, cred domain.Credential, postID, content, parentID string) (string, error)
}

type NotificationSource interface {
	ListUnreadNotifications(ctx context.Context, cred domain.Credential, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, cred domain.Credential, id string) error
}

type PostLister interface {
	ListRecentPosts(ctx context.Context, cred domain.Credential, limit int) ([]domain.Post, error)
}

// Platform is the full remote client.
type Platform interface {
	Publisher
	NotificationSource
	PostLister
}

type Generator interface {
	GenerateDraft(ctx context.Context, agentName, topic string) (domain.Draft, error)
	GenerateReply(ctx context.Context, agentName, originalPost, userComment, user string) (string, error)
}

// CredentialSource returns the active credential or domain.ErrNoCredential.
type CredentialSource interface {
	ActiveCredential(ctx context.Context) (domain.Credential, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}
