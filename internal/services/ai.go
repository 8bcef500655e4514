package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studygen/internal/apierr"
	"studygen/internal/logger"
)

var (
	// ErrAIUnavailable is returned when no LLM API key is configured.
	ErrAIUnavailable = errors.New("llm integration is not configured")
	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("model returned an empty completion")
)

// AIConfig configures the chat completion client.
type AIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single attempt.
	Timeout     time.Duration
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

func (c AIConfig) withDefaults() AIConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialWait <= 0 {
		c.InitialWait = time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 20 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	return c
}

// AIService sends single-prompt chat completions to an OpenAI-compatible API.
type AIService struct {
	client *openai.Client
	cfg    AIConfig
	log    *logger.Logger
}

func NewAIService(cfg AIConfig, log *logger.Logger) *AIService {
	cfg = cfg.withDefaults()
	s := &AIService{cfg: cfg, log: log.With("component", "LLM")}
	if cfg.APIKey == "" {
		return s
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return s
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.cfg.Model == ""
}

// Complete sends prompt as a single user message and returns the reply.
// Rate limits, 5xx responses and network errors are retried with backoff.
func (s *AIService) Complete(ctx context.Context, prompt string) (string, error) {
	if s.disabled() {
		return "", apierr.Generation(http.StatusInternalServerError, ErrAIUnavailable)
	}

	var lastErr error
	for attempt := range s.cfg.MaxAttempts {
		content, err := s.completeOnce(ctx, prompt)
		if err == nil {
			return content, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == s.cfg.MaxAttempts-1 {
			break
		}

		wait := s.backoff(attempt)
		s.log.Warn("llm call failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return "", apierr.Generation(0, ctx.Err())
		case <-time.After(wait):
		}
	}
	return "", mapCompletionError(lastErr)
}

func (s *AIService) completeOnce(ctx context.Context, prompt string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(s.cfg.Temperature),
		MaxTokens:   s.cfg.MaxTokens,
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	s.log.Debug("llm call completed",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration", time.Since(start),
	)
	return content, nil
}

// providerStatus returns the HTTP status the provider answered with, or 0
// when the call never got a response.
func providerStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return false
	}
	status := providerStatus(err)
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	case status >= 400:
		return false
	}
	// Network errors.
	return true
}

func (s *AIService) backoff(attempt int) time.Duration {
	wait := float64(s.cfg.InitialWait) * math.Pow(s.cfg.Multiplier, float64(attempt))
	if wait > float64(s.cfg.MaxWait) {
		wait = float64(s.cfg.MaxWait)
	}

	// ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

func mapCompletionError(err error) error {
	if apierr.IsDeadline(err) {
		return apierr.Timeout(fmt.Errorf("llm call: %w", err))
	}
	if errors.Is(err, context.Canceled) {
		return apierr.Generation(http.StatusInternalServerError, fmt.Errorf("llm call: %w", err))
	}
	if errors.Is(err, ErrEmptyCompletion) || providerStatus(err) != 0 {
		return apierr.Generation(http.StatusBadGateway, fmt.Errorf("llm call: %w", err))
	}
	return apierr.Generation(http.StatusInternalServerError, fmt.Errorf("llm call: %w", err))
}
