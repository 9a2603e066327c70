package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"docpipe/internal/logging"
	"docpipe/internal/retry"
	"docpipe/internal/services"
)

const (
	defaultBaseURL     = "https://api.regolo.ai/v1"
	defaultHTTPTimeout = 300 * time.Second
	completionsPath    = "chat/completions"

	// OCRPrompt is the instruction sent with every page image.
	OCRPrompt = "Convert the document to markdown."
)

// Config captures the runtime settings required to talk to the generator.
type Config struct {
	APIKey         string
	BaseURL        string
	TimeoutSeconds int
	// MaxTokens is used when a request does not set its own budget.
	MaxTokens int
}

// Recorder observes completed exchanges. Outcome is "ok" or services.Kind.
type Recorder interface {
	ObserveRequest(model, outcome string, elapsed time.Duration)
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
	recorder   Recorder
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the transport retry policy. The predicate is
// forced to services.TransportRetryable when unset.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder attaches a request recorder (metrics).
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxTokens:      cfg.MaxTokens,
		},
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.Transport(5, 2*time.Second, 2),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	if client.policy.Retryable == nil {
		client.policy.Retryable = services.TransportRetryable
	}
	client.logger = logging.NewComponentLogger(client.logger, "llm")
	return client
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, summarizePayloadSnippet(e.Body))
}

// Complete performs one exchange under the transport retry policy and returns
// the decoded envelope. On failure the response is nil.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if c.cfg.APIKey == "" {
		return nil, services.Wrap(services.ErrAuth, "llm", "complete", "api key required", nil)
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "complete", "model required", nil)
	}
	if len(req.Messages) == 0 {
		return nil, services.Wrap(services.ErrValidation, "llm", "complete", "at least one message required", nil)
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.cfg.MaxTokens
	}

	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, c.logger).With(logging.String("model", req.Model))

	policy := c.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(next int, delay time.Duration, err error) {
		logging.WarnWithContext(logger, "generator call failed; retrying", "generator_retry",
			logging.Int(logging.FieldAttempt, next),
			logging.Duration("delay", delay),
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient generator failure; backing off"),
		)
		if userHook != nil {
			userHook(next, delay, err)
		}
	}

	started := time.Now()
	resp, err := retry.DoValue(ctx, policy, func(ctx context.Context, attempt int) (*Response, error) {
		logger.Debug("generator request", logging.Int(logging.FieldAttempt, attempt))
		return c.sendOnce(ctx, req, requestID)
	})
	c.observe(req.Model, err, time.Since(started))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Generate issues a system + user prompt and returns the response content.
func (c *Client) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if strings.TrimSpace(prompt.User) == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "generate", "user content required", nil)
	}
	resp, err := c.Complete(ctx, prompt.Request())
	if err != nil {
		return "", err
	}
	return resp.Content()
}

// Transcribe sends one page image to a vision model and returns its markdown.
func (c *Client) Transcribe(ctx context.Context, model string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", services.Wrap(services.ErrValidation, "llm", "transcribe", "image is empty", nil)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	resp, err := c.Complete(ctx, Request{
		Model: model,
		Messages: []Message{{
			Role: "user",
			Content: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURL{URL: dataURI}},
				{Type: "text", Text: OCRPrompt},
			},
		}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content()
}

// HealthCheck issues a tiny request to verify the key and model are usable.
func (c *Client) HealthCheck(ctx context.Context, model string) error {
	_, err := c.Generate(ctx, Prompt{
		Model:     model,
		System:    "You must respond with JSON only.",
		User:      `Respond with {"ok":true}`,
		MaxTokens: 16,
	})
	if err != nil {
		return fmt.Errorf("llm health: %w", err)
	}
	return nil
}

func (c *Client) sendOnce(ctx context.Context, payload Request, requestID string) (*Response, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, completionsPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "request", "build url", err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "llm", "request", "encode body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "request", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrTransport, "llm", "request",
			fmt.Sprintf("http error (timeout=%s)", c.timeoutDuration()), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "llm", "request", "read body", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, services.Wrap(services.ErrAuth, "llm", "request", "invalid api key", statusErr)
		case http.StatusTooManyRequests:
			return nil, services.Wrap(services.ErrRateLimit, "llm", "request", "rate limit exceeded", statusErr)
		default:
			return nil, services.Wrap(services.ErrTransport, "llm", "request", "api error", statusErr)
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, services.Wrap(services.ErrTransport, "llm", "request", "empty response body", nil)
	}

	var completion Response
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, services.Wrap(services.ErrTransport, "llm", "request",
			"decode response: "+summarizePayloadSnippet(string(body)), err)
	}
	if completion.Error != nil {
		return nil, services.Wrap(services.ErrTransport, "llm", "request",
			"api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	return &completion, nil
}

func (c *Client) observe(model string, err error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = services.Kind(err)
	}
	c.recorder.ObserveRequest(model, outcome, elapsed)
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func summarizePayloadSnippet(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "<empty>"
	}
	clean := strings.Join(strings.Fields(trimmed), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
