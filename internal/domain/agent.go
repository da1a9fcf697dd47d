package domain

import "time"

// Credential is the active agent identity used for all outbound calls.
type Credential struct {
	AgentID string
	Name    string
	APIKey  string
}

// Owns reports whether the author refers to this agent.
func (c Credential) Owns(a Author) bool {
	if c.AgentID != "" && a.ID == c.AgentID {
		return true
	}
	return a.Name != "" && a.Name == c.Name
}

type NotificationKind string

const (
	NotifyCommentOnPost  NotificationKind = "comment_on_post"
	NotifyReplyToComment NotificationKind = "reply_to_comment"
)

type Notification struct {
	ID             string           `json:"id"`
	Type           NotificationKind `json:"type"`
	PostID         string           `json:"post_id"`
	CommentID      string           `json:"comment_id,omitempty"`
	ActorName      string           `json:"actor_name"`
	ContentPreview string           `json:"content_preview"`
	PostTitle      string           `json:"post_title"`
}

// Repliable reports whether the notification should become a reply task.
func (n Notification) Repliable() bool {
	return n.Type == NotifyCommentOnPost || n.Type == NotifyReplyToComment
}

type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Post struct {
	ID           string  `json:"id"`
	Author       *Author `json:"author"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	CommentCount int     `json:"comment_count"`
}

type Draft struct {
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// WatcherState is the new-post cursor of one agent. Version is bumped on
// every save and used for compare-and-set.
type WatcherState struct {
	AgentName      string    `json:"agent_name"`
	LastSeenPostID string    `json:"last_seen_post_id"`
	Version        int64     `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}
