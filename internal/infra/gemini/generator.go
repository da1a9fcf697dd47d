package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"madangbot/internal/config"
	"madangbot/internal/domain"
	"madangbot/internal/ports"
	"madangbot/pkg/backoff"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

var _ ports.Generator = (*Generator)(nil)

var (
	ErrInvalidConfig    = errors.New("invalid generator configuration")
	ErrInvalidResponse  = errors.New("invalid response from language model")
	ErrContentBlocked   = errors.New("content blocked by language model safety filters")
	ErrTransientFailure = errors.New("transient error during generation")
)

var draftPrompt = template.Must(template.New("draft").Parse(
	`You are {{.Agent}}, a friendly member of an online community.
Write a short, casual post about "{{.Topic}}" in your own voice.
Reply only with JSON: {"topic": string, "title": string, "content": string}.`))

var replyPrompt = template.Must(template.New("reply").Parse(
	`You are {{.Agent}}, a friendly member of an online community.
Post: "{{.Post}}"
{{.User}} wrote: "{{.Comment}}"
Write one short, warm reply to {{.User}}. Reply with the comment text only.`))

// models is the subset of *genai.Models used here.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator writes drafts and replies with Gemini, retrying throttled or
// transient calls with exponential backoff.
type Generator struct {
	models models
	cfg    config.Gemini
}

func New(ctx context.Context, cfg config.Gemini) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrInvalidConfig, err)
	}
	return &Generator{models: client.Models, cfg: cfg}, nil
}

func (g *Generator) GenerateDraft(ctx context.Context, agentName, topic string) (domain.Draft, error) {
	prompt, err := render(draftPrompt, map[string]string{"Agent": agentName, "Topic": topic})
	if err != nil {
		return domain.Draft{}, err
	}
	text, err := g.call(ctx, prompt, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.9),
	})
	if err != nil {
		return domain.Draft{}, err
	}

	var d domain.Draft
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return domain.Draft{}, fmt.Errorf("%w: parse draft: %v", ErrInvalidResponse, err)
	}
	if d.Title == "" || d.Content == "" {
		return domain.Draft{}, fmt.Errorf("%w: draft missing title or content", ErrInvalidResponse)
	}
	if d.Topic == "" {
		d.Topic = topic
	}
	return d, nil
}

func (g *Generator) GenerateReply(ctx context.Context, agentName, originalPost, userComment, user string) (string, error) {
	prompt, err := render(replyPrompt, map[string]string{
		"Agent":   agentName,
		"Post":    originalPost,
		"Comment": userComment,
		"User":    user,
	})
	if err != nil {
		return "", err
	}
	text, err := g.call(ctx, prompt, &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.8)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) call(ctx context.Context, prompt string, gc *genai.GenerateContentConfig) (string, error) {
	logger := log.Ctx(ctx)
	maxRetries := max(g.cfg.MaxRetries, 0)

	for attempt := 0; ; attempt++ {
		text, err := g.once(ctx, prompt, gc)
		if err == nil {
			return text, nil
		}
		if !retryable(err) {
			return "", err
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded %d retries: %v", ErrTransientFailure, maxRetries, err)
		}

		delay := backoff.ExponentialJitter(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt+1)
		logger.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("gemini call failed, retrying")
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrTransientFailure, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (g *Generator) once(ctx context.Context, prompt string, gc *genai.GenerateContentConfig) (string, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), gc)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}

	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return sb.String(), nil
}

// retryable reports provider throttling, server errors and timeouts.
func retryable(err error) bool {
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return retryableCode(apiErrPtr.Code)
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func retryableCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
