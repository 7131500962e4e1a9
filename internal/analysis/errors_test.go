package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid input", fmt.Errorf("%w: url is required", ErrInvalidInput), http.StatusBadRequest},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"net timeout", &FetchError{Kind: FetchNetworkUnreachable, Err: timeoutErr{}}, http.StatusGatewayTimeout},
		{"bad request", &FetchError{Kind: FetchBadRequest, StatusCode: 400}, http.StatusBadRequest},
		{"thin content", &FetchError{Kind: FetchInsufficientContent}, http.StatusBadRequest},
		{"crawl rate limited", &FetchError{Kind: FetchRateLimited, StatusCode: 429}, http.StatusTooManyRequests},
		{"crawl auth", &FetchError{Kind: FetchAuthFailure, StatusCode: 401}, http.StatusInternalServerError},
		{"crawl upstream", &FetchError{Kind: FetchUpstreamError, StatusCode: 502}, http.StatusInternalServerError},
		{"llm rate limited", &GenerationError{Kind: GenerationRateLimited}, http.StatusTooManyRequests},
		{"llm overloaded", &GenerationError{Kind: GenerationOverloaded}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	t.Parallel()

	assert.Contains(t, PublicMessage(ErrInvalidInput), "valid website URL")
	assert.Contains(t, PublicMessage(context.DeadlineExceeded), "too long")
	assert.Contains(t, PublicMessage(&FetchError{Kind: FetchInsufficientContent}), "enough content")
	assert.Contains(t, PublicMessage(&FetchError{Kind: FetchAuthFailure}), "crawling service")
	assert.Contains(t, PublicMessage(&GenerationError{Kind: GenerationNotConfigured}), "analysis service")
	assert.Contains(t, PublicMessage(&GenerationError{Kind: GenerationOverloaded}), "busy")
	assert.Equal(t, "Something went wrong while analyzing this website.", PublicMessage(errors.New("boom")))
}

func TestDetailsOnlyInDevelopment(t *testing.T) {
	t.Parallel()

	err := &FetchError{Kind: FetchAuthFailure, StatusCode: 401, Message: "invalid key"}
	assert.Equal(t, "fetch: invalid key (status 401)", Details(err, true))
	assert.Empty(t, Details(err, false))
	assert.Empty(t, Details(nil, true))
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	fetchErr := &FetchError{Kind: FetchNetworkUnreachable, Err: cause}
	genErr := &GenerationError{Kind: GenerationUnknown, StatusCode: 500, Err: cause}

	assert.ErrorIs(t, fetchErr, cause)
	assert.ErrorIs(t, genErr, cause)
	assert.Equal(t, "fetch: network_unreachable: connection refused", fetchErr.Error())
	assert.Equal(t, "generate: unknown (status 500): connection refused", genErr.Error())
}
