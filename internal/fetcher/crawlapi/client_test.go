package crawlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "crawl-key", WaitFor: time.Millisecond, Timeout: 5 * time.Second}, nil)
}

func TestFetchSendsScrapeRequest(t *testing.T) {
	t.Parallel()

	markdown := "# Acme\n\n" + strings.Repeat("Acme builds reliable widgets for makers. ", 10)
	var got scrapeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer crawl-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": markdown,
				"html":     "<p>ignored</p>",
				"metadata": map[string]any{
					"title":       " Acme ",
					"description": "Widgets",
					"statusCode":  200,
				},
			},
		})
	})

	content, err := client.Fetch(context.Background(), "https://acme.test")
	require.NoError(t, err)

	assert.Equal(t, "https://acme.test", got.URL)
	assert.True(t, got.OnlyMainContent)
	assert.Equal(t, []string{"markdown", "html"}, got.Formats)
	assert.Equal(t, int64(1), got.WaitFor)

	assert.Equal(t, "Acme", content.Title)
	assert.Equal(t, "Widgets", content.Description)
	assert.Equal(t, http.StatusOK, content.StatusCode)
	assert.True(t, strings.HasPrefix(content.Content, "# Acme Acme builds"))
	assert.NotContains(t, content.Content, "ignored")
	assert.Equal(t, len(content.Content), content.ContentLength)
}

func TestFetchFallsBackToStrippedHTML(t *testing.T) {
	t.Parallel()

	body := "<article><h2>Pricing</h2><p>" + strings.Repeat("Plans start at ten dollars. ", 8) + "</p></article>"
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"html": body},
		})
	})

	content, err := client.Fetch(context.Background(), "https://acme.test/pricing")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(content.Content, "Pricing Plans start"))
	assert.NotContains(t, content.Content, "<")
}

func TestFetchInsufficientContent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"markdown": "Loading..."},
		})
	})

	_, err := client.Fetch(context.Background(), "https://acme.test")
	var fetchErr *analysis.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, analysis.FetchInsufficientContent, fetchErr.Kind)
}

func TestFetchMapsUpstreamStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]analysis.FetchErrorKind{
		http.StatusUnauthorized:        analysis.FetchAuthFailure,
		http.StatusForbidden:           analysis.FetchAuthFailure,
		http.StatusTooManyRequests:     analysis.FetchRateLimited,
		http.StatusBadRequest:          analysis.FetchBadRequest,
		http.StatusUnprocessableEntity: analysis.FetchBadRequest,
		http.StatusBadGateway:          analysis.FetchUpstreamError,
	}
	for status, want := range cases {
		status, want := status, want
		t.Run(http.StatusText(status), func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				http.Error(w, `{"error":"nope"}`, status)
			})

			_, err := client.Fetch(context.Background(), "https://acme.test")
			var fetchErr *analysis.FetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, want, fetchErr.Kind)
			assert.Equal(t, status, fetchErr.StatusCode)
			assert.Equal(t, int32(1), calls.Load(), "fetch must not retry")
		})
	}
}

func TestFetchReportsUnsuccessfulPayload(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "blocked by site"})
	})

	_, err := client.Fetch(context.Background(), "https://acme.test")
	var fetchErr *analysis.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, analysis.FetchUpstreamError, fetchErr.Kind)
	assert.Contains(t, err.Error(), "blocked by site")
}

func TestFetchNetworkUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Config{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}, nil)

	_, err := client.Fetch(context.Background(), "https://acme.test")
	var fetchErr *analysis.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, analysis.FetchNetworkUnreachable, fetchErr.Kind)
}

func TestFetchWithoutAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BaseURL: "http://unused"}, nil).Fetch(context.Background(), "https://acme.test")
	var fetchErr *analysis.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, analysis.FetchAuthFailure, fetchErr.Kind)
}
