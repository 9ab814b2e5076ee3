package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultTimeout  = 120 * time.Second
)

// Config captures the settings for one chat-completions endpoint.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	RetryAttempts  int
}

// Client posts JSON-mode chat completions to an OpenAI-compatible endpoint
// (OpenRouter by default). BaseURL is the full completions URL.
type Client struct {
	cfg   Config
	http  *http.Client
	retry backoff
	sleep func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout bounds every attempt.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts sets the total number of attempts. 1 disables retries.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.attempts = attempts
	}
}

// WithRetryBackoff sets the first retry delay and the cap on any delay.
func WithRetryBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = base
		c.retry.max = maxDelay
	}
}

// WithSleeper replaces the context-aware wait between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		if sleeper == nil {
			return
		}
		c.sleep = func(ctx context.Context, d time.Duration) error {
			sleeper(d)
			return ctx.Err()
		}
	}
}

// NewClient builds a client. Empty fields fall back to OpenRouter defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: timeout},
		retry: newBackoff(cfg.RetryAttempts),
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPStatusError reports a non-2xx response from the completion endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, snippet(e.Body))
}

// Image is an inline image attachment sent after the prompt text.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURL returns the image as a base64 data: URL.
func (img Image) DataURL() string {
	mime := strings.TrimSpace(img.MIMEType)
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// CompleteVisionJSON sends systemPrompt, then one user message holding
// userText followed by every image, and returns the model's raw JSON text.
func (c *Client) CompleteVisionJSON(ctx context.Context, systemPrompt, userText string, images []Image) (string, error) {
	const op = "llm vision"
	systemPrompt = strings.TrimSpace(systemPrompt)
	userText = strings.TrimSpace(userText)
	switch {
	case systemPrompt == "":
		return "", fmt.Errorf("%s: system prompt required", op)
	case userText == "":
		return "", fmt.Errorf("%s: user text required", op)
	case len(images) == 0:
		return "", fmt.Errorf("%s: at least one image required", op)
	case c.cfg.APIKey == "":
		return "", fmt.Errorf("%s: api key required", op)
	}

	parts := []contentPart{{Type: "text", Text: userText}}
	for i, img := range images {
		if len(img.Data) == 0 {
			return "", fmt.Errorf("%s: image %d is empty", op, i)
		}
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img.DataURL()}})
	}
	return c.complete(ctx, op, []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: parts},
	})
}

// HealthCheck asks for a trivial JSON reply to prove the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "llm health"
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%s: api key required", op)
	}
	content, err := c.complete(ctx, op, []message{
		{Role: "system", Content: "You answer with a single JSON object and nothing else."},
		{Role: "user", Content: `Reply with {"ok":true}`},
	})
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &reply); err != nil {
		return fmt.Errorf("%s: parse payload: %w", op, err)
	}
	if !reply.OK {
		return errors.New(op + ": unexpected response")
	}
	return nil
}

// complete runs one logical request, retrying transient failures.
func (c *Client) complete(ctx context.Context, op string, messages []message) (string, error) {
	body := completionRequest{
		Model:          c.cfg.Model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	for attempt := 1; ; attempt++ {
		content, err := c.post(ctx, op, body)
		if err == nil {
			return content, nil
		}
		delay, again := c.retry.next(ctx, err, attempt)
		if !again {
			if attempt > 1 {
				return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
			}
			return "", err
		}
		if serr := c.sleep(ctx, delay); serr != nil {
			return "", serr
		}
	}
}
