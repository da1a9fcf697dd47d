package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"madangbot/internal/config"
	"madangbot/internal/ports"
)

var _ ports.Notifier = (*Webhook)(nil)

// Webhook posts {"content": message} to a chat webhook.
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(cfg config.Notify) *Webhook {
	return &Webhook{url: cfg.WebhookURL, http: &http.Client{Timeout: cfg.Timeout}}
}

func (w *Webhook) Notify(ctx context.Context, message string) error {
	if w.url == "" {
		return nil
	}
	b, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook responded %d", resp.StatusCode)
	}
	return nil
}
