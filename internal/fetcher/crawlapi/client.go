// Package crawlapi implements analysis.Fetcher against a hosted scraping API
// that exposes a bearer-authenticated POST /scrape endpoint.
package crawlapi

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
	"github.com/JakeFAU/website-growth-analyzer/internal/fetcher"
	"github.com/JakeFAU/website-growth-analyzer/internal/metrics"
)

const maxErrorBody = 4 << 10

// Config controls the scraping API client.
type Config struct {
	BaseURL string
	APIKey  string
	// WaitFor lets dynamic content settle before the page is collected.
	WaitFor time.Duration
	Timeout time.Duration
}

// Client calls the scraping API once per Fetch.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int64    `json:"waitFor"`
	Timeout         int64    `json:"timeout,omitempty"`
}

type scrapeMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	StatusCode  int    `json:"statusCode"`
	SourceURL   string `json:"sourceURL"`
}

type scrapeDocument struct {
	Markdown string         `json:"markdown"`
	Content  string         `json:"content"`
	HTML     string         `json:"html"`
	Metadata scrapeMetadata `json:"metadata"`
}

type scrapeResponse struct {
	Success bool           `json:"success"`
	Data    scrapeDocument `json:"data"`
	Error   string         `json:"error"`
}

// New builds a Client. A zero Timeout defaults to 30 seconds and a zero
// WaitFor to 3 seconds.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.WaitFor <= 0 {
		cfg.WaitFor = 3 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout + cfg.WaitFor},
		logger: logger,
	}
}

// Fetch scrapes target and returns cleaned content.
func (c *Client) Fetch(ctx context.Context, target string) (analysis.CrawledContent, error) {
	if c.cfg.APIKey == "" {
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchAuthFailure,
			Message: "crawler api key is not configured",
		}
	}
	start := time.Now()
	body, err := json.Marshal(scrapeRequest{
		URL:             target,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: true,
		WaitFor:         c.cfg.WaitFor.Milliseconds(),
		Timeout:         c.cfg.Timeout.Milliseconds(),
	})
	if err != nil {
		return analysis.CrawledContent{}, fmt.Errorf("marshal scrape request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return analysis.CrawledContent{}, fmt.Errorf("build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveUpstreamCall("crawler", 0)
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchNetworkUnreachable,
			Message: "crawler unreachable",
			Err:     err,
		}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close scrape response", zap.Error(cerr))
		}
	}()
	metrics.ObserveUpstreamCall("crawler", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("scrape request rejected",
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(snippet)),
		)
		return analysis.CrawledContent{}, statusError(resp.StatusCode, string(snippet))
	}

	var payload scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchUpstreamError,
			Message: "decode crawler response",
			Err:     err,
		}
	}
	if !payload.Success {
		msg := payload.Error
		if msg == "" {
			msg = "crawler reported failure"
		}
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchUpstreamError,
			Message: msg,
		}
	}

	doc := payload.Data
	statusCode := doc.Metadata.StatusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	content, err := fetcher.Finalize(analysis.CrawledContent{
		URL:         target,
		Content:     fetcher.PickContent(doc.Markdown, doc.Content, doc.HTML),
		Title:       strings.TrimSpace(doc.Metadata.Title),
		Description: strings.TrimSpace(doc.Metadata.Description),
		StatusCode:  statusCode,
		CrawlTime:   time.Since(start),
	})
	if err != nil {
		return analysis.CrawledContent{}, err
	}
	return content, nil
}

func statusError(code int, body string) error {
	fetchErr := &analysis.FetchError{StatusCode: code}
	if detail := strings.TrimSpace(body); detail != "" {
		fetchErr.Err = errors.New(detail)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		fetchErr.Kind = analysis.FetchAuthFailure
		fetchErr.Message = "crawler rejected credentials"
	case code == http.StatusTooManyRequests:
		fetchErr.Kind = analysis.FetchRateLimited
		fetchErr.Message = "crawler rate limit exceeded"
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		fetchErr.Kind = analysis.FetchBadRequest
		fetchErr.Message = "crawler rejected the url"
	default:
		fetchErr.Kind = analysis.FetchUpstreamError
		fetchErr.Message = "crawler error"
	}
	return fetchErr
}
