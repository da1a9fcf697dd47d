package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusFailed     TaskStatus = "failed"
	StatusCompleted  TaskStatus = "completed"
)

type TaskType string

const (
	TypePostDraft TaskType = "post_draft"
	TypeReplyTask TaskType = "reply_task"
)

// MaxRetries is the retry ceiling: a task whose incremented retry count
// reaches it is deleted instead of rescheduled.
const MaxRetries = 3

// Payload is the variant data of a task. The concrete type determines the
// task type; see PostDraft, ReplyTask and Unknown.
type Payload interface {
	TaskType() TaskType
	Validate() error
}

type PostDraft struct {
	Topic     string `json:"topic"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Submadang string `json:"submadang"`
}

func (PostDraft) TaskType() TaskType { return TypePostDraft }

func (p PostDraft) Validate() error {
	if p.Title == "" || p.Content == "" || p.Submadang == "" {
		return fmt.Errorf("%w: post_draft requires title, content and submadang", ErrInvalidPayload)
	}
	return nil
}

type ReplyTask struct {
	NotificationID string `json:"notificationId"`
	PostID         string `json:"postId"`
	CommentID      string `json:"commentId,omitempty"`
	User           string `json:"user"`
	UserComment    string `json:"userComment"`
	PostTitle      string `json:"postTitle"`
}

func (ReplyTask) TaskType() TaskType { return TypeReplyTask }

func (r ReplyTask) Validate() error {
	if r.NotificationID == "" || r.PostID == "" {
		return fmt.Errorf("%w: reply_task requires notificationId and postId", ErrInvalidPayload)
	}
	return nil
}

// Unknown holds a stored row whose type this build does not understand.
// It is never enqueued, only read back.
type Unknown struct {
	Type TaskType
	Raw  json.RawMessage
}

func (u Unknown) TaskType() TaskType { return u.Type }

func (u Unknown) Validate() error {
	return fmt.Errorf("%w: unsupported task type %q", ErrInvalidPayload, u.Type)
}

type Task struct {
	ID         string     `json:"id"`
	Status     TaskStatus `json:"status"`
	RetryCount int        `json:"retryCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	NotBefore  time.Time  `json:"notBefore,omitzero"`
	ClaimedAt  time.Time  `json:"claimedAt,omitzero"`
	Payload    Payload    `json:"payload"`
}

func (t Task) Type() TaskType {
	if t.Payload == nil {
		return ""
	}
	return t.Payload.TaskType()
}

// Available reports whether the task can be picked up at now.
func (t Task) Available(now time.Time) bool {
	return t.Status == StatusPending && !now.Before(t.NotBefore)
}

// EncodePayload serializes the payload for storage.
func EncodePayload(p Payload) ([]byte, error) {
	if u, ok := p.(Unknown); ok {
		return u.Raw, nil
	}
	return json.Marshal(p)
}

// DecodePayload restores a payload from its stored type tag and bytes.
// Unrecognized tags decode to Unknown rather than failing.
func DecodePayload(typ TaskType, raw []byte) (Payload, error) {
	switch typ {
	case TypePostDraft:
		var p PostDraft
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode post_draft: %w", err)
		}
		return p, nil
	case TypeReplyTask:
		var r ReplyTask
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode reply_task: %w", err)
		}
		return r, nil
	default:
		return Unknown{Type: typ, Raw: raw}, nil
	}
}

func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	raw, err := EncodePayload(t.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Type    TaskType        `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{alias(t), t.Type(), raw})
}
