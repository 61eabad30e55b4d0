// Package llm implements the text-generation port on top of any
// OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/example/evoloop/internal/metrics"
	"github.com/example/evoloop/internal/ports/secondary"
)

// Roles label the two backends in logs and metrics.
const (
	RoleGenerator = "generator"
	RoleJudge     = "judge"
)

// Options configures a Client.
type Options struct {
	Role        string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration // per call; 0 means no extra bound
	RPS         float64       // 0 disables rate limiting
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client sends one user message per call and returns the first choice.
type Client struct {
	client      *openai.Client
	role        string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient creates a chat completion client. An API key is required
// unless a base URL points at a self-hosted endpoint.
func NewClient(opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("%s model is not set", opts.Role)
	}
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set and no base_url is configured for the %s", opts.Role)
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		client:      openai.NewClientWithConfig(cfg),
		role:        opts.Role,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		limiter:     limiter,
		logger:      logger.With("role", opts.Role, "model", opts.Model),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.temperature,
	}
	if c.maxTokens > 0 {
		req.MaxCompletionTokens = c.maxTokens
	}

	start := time.Now()
	c.logger.DebugContext(ctx, "sending chat completion", "prompt_chars", len(prompt))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err == nil && len(resp.Choices) == 0 {
		err = fmt.Errorf("no choices returned")
	}
	metrics.ObserveBackendCall(c.role, start, err)
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", c.role, err)
	}

	choice := resp.Choices[0]
	c.logger.DebugContext(ctx, "received chat completion",
		"finish_reason", choice.FinishReason,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start))
	return choice.Message.Content, nil
}

// Ensure Client implements the interface
var _ secondary.TextGenerator = (*Client)(nil)
