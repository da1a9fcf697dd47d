package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"madangbot/internal/config"
	"madangbot/internal/domain"
	"madangbot/internal/ports"

	"github.com/rs/zerolog/log"
)

var _ ports.Platform = (*Client)(nil)

// StatusError is a non-2xx response other than 429.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("platform responded %d: %s", e.Code, e.Body)
}

// Client talks to the community platform REST API.
type Client struct {
	base *url.URL
	http *http.Client
}

func New(cfg config.Platform) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse platform url: %w", err)
	}
	return &Client{base: u, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *Client) PublishPost(ctx context.Context, cred domain.Credential, title, content, submadang string) (string, error) {
	var out idResponse
	err := c.do(ctx, cred, http.MethodPost, "/posts", nil, map[string]string{
		"title":     title,
		"content":   content,
		"submadang": submadang,
	}, &out)
	return out.ID, err
}

func (c *Client) PublishComment(ctx context.Context, cred domain.Credential, postID, content, parentID string) (string, error) {
	body := map[string]string{"content": content}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var out idResponse
	err := c.do(ctx, cred, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, body, &out)
	return out.ID, err
}

func (c *Client) ListUnreadNotifications(ctx context.Context, cred domain.Credential, limit int) ([]domain.Notification, error) {
	q := url.Values{"unread": {"true"}, "limit": {strconv.Itoa(limit)}}
	var out struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := c.do(ctx, cred, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (c *Client) MarkRead(ctx context.Context, cred domain.Credential, id string) error {
	return c.do(ctx, cred, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

func (c *Client) ListRecentPosts(ctx context.Context, cred domain.Credential, limit int) ([]domain.Post, error) {
	q := url.Values{"sort": {"new"}, "limit": {strconv.Itoa(limit)}}
	var out struct {
		Posts []domain.Post `json:"posts"`
	}
	if err := c.do(ctx, cred, http.MethodGet, "/posts", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Posts, nil
}

func (c *Client) do(ctx context.Context, cred domain.Credential, method, path string, query url.Values, in, out any) error {
	u := *c.base
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Ctx(ctx).Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("platform call")

	if resp.StatusCode == http.StatusTooManyRequests {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    strings.TrimSpace(string(msg)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
