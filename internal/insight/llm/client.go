// Package llm is a minimal client for the Anthropic messages API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

// APIVersion is sent as the anthropic-version header.
const APIVersion = "2023-06-01"

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultModel       = "claude-3-5-sonnet-20241022"
	defaultTemperature = 0.3
	defaultMaxTokens   = 2000
	defaultTimeout     = 60 * time.Second
	maxErrorBody       = 4 << 10
	statusOverloaded   = 529
)

// Config controls the messages client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client sends single-turn prompts. It implements insight.Completer.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// New fills unset fields with defaults and returns a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Complete sends prompt as a single user message and returns the first text block.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &analysis.GenerationError{
			Kind:    analysis.GenerationNotConfigured,
			Message: "llm api key is not configured",
		}
	}
	body, err := json.Marshal(messagesRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal messages request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamCall("llm", 0)
		return "", &analysis.GenerationError{
			Kind:    analysis.GenerationUnknown,
			Message: "llm request failed",
			Err:     err,
		}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close messages response", zap.Error(cerr))
		}
	}()
	metrics.ObserveUpstreamCall("llm", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("llm request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)),
		)
		return "", statusError(resp.StatusCode, snippet)
	}

	var payload messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &analysis.GenerationError{
			Kind:    analysis.GenerationUnknown,
			Message: "decode llm response",
			Err:     err,
		}
	}
	for _, block := range payload.Content {
		if block.Type == "" || block.Type == "text" {
			c.logger.Debug("llm reply received",
				zap.String("model", c.cfg.Model),
				zap.Int("input_tokens", payload.Usage.InputTokens),
				zap.Int("output_tokens", payload.Usage.OutputTokens),
				zap.Duration("elapsed", time.Since(start)),
			)
			return block.Text, nil
		}
	}
	return "", &analysis.GenerationError{
		Kind:    analysis.GenerationUnknown,
		Message: "empty llm response",
	}
}

func statusError(code int, body []byte) error {
	genErr := &analysis.GenerationError{StatusCode: code}
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		genErr.Err = errors.New(parsed.Error.Message)
	} else if detail := strings.TrimSpace(string(body)); detail != "" {
		genErr.Err = errors.New(detail)
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		genErr.Kind = analysis.GenerationAuthFailure
		genErr.Message = "llm rejected credentials"
	case http.StatusTooManyRequests:
		genErr.Kind = analysis.GenerationRateLimited
		genErr.Message = "llm rate limit exceeded"
	case statusOverloaded, http.StatusServiceUnavailable:
		genErr.Kind = analysis.GenerationOverloaded
		genErr.Message = "llm overloaded"
	default:
		genErr.Kind = analysis.GenerationUnknown
		genErr.Message = "llm error"
	}
	return genErr
}
