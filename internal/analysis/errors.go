package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrInvalidInput marks a malformed or missing request URL.
var ErrInvalidInput = errors.New("invalid input")

// FetchErrorKind classifies crawl failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchAuthFailure         FetchErrorKind = "auth_failure"
	FetchRateLimited         FetchErrorKind = "rate_limited"
	FetchBadRequest          FetchErrorKind = "bad_request"
	FetchUpstreamError       FetchErrorKind = "upstream_error"
	FetchInsufficientContent FetchErrorKind = "insufficient_content"
	FetchNetworkUnreachable  FetchErrorKind = "network_unreachable"
)

// FetchError is returned by Fetcher implementations.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch: %s: %v", msg, e.Err)
	}
	return "fetch: " + msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies language-model failures.
type GenerationErrorKind string

// Generation failure kinds.
const (
	GenerationNotConfigured GenerationErrorKind = "not_configured"
	GenerationRateLimited   GenerationErrorKind = "rate_limited"
	GenerationAuthFailure   GenerationErrorKind = "auth_failure"
	GenerationOverloaded    GenerationErrorKind = "overloaded"
	GenerationUnknown       GenerationErrorKind = "unknown"
)

// GenerationError is returned by Generator implementations for upstream failures.
type GenerationError struct {
	Kind       GenerationErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("generate: %s: %v", msg, e.Err)
	}
	return "generate: " + msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

// HTTPStatus maps a pipeline error to the status code returned to callers.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrInvalidInput) {
		return http.StatusBadRequest
	}
	if isTimeout(err) {
		return http.StatusGatewayTimeout
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case FetchBadRequest, FetchInsufficientContent:
			return http.StatusBadRequest
		case FetchRateLimited:
			return http.StatusTooManyRequests
		default:
			return http.StatusInternalServerError
		}
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) && genErr.Kind == GenerationRateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// PublicMessage is the short human-readable message for a failed request.
func PublicMessage(err error) string {
	if errors.Is(err, ErrInvalidInput) {
		return "Please provide a valid website URL starting with http:// or https://"
	}
	if isTimeout(err) {
		return "The analysis took too long. Please try again."
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case FetchInsufficientContent:
			return "We could not find enough content on this page to analyze."
		case FetchBadRequest:
			return "The website could not be crawled. Please check the URL."
		case FetchRateLimited:
			return "Too many requests. Please try again in a few minutes."
		case FetchAuthFailure:
			return "The crawling service is not configured correctly."
		default:
			return "We could not reach this website. Please try again later."
		}
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		switch genErr.Kind {
		case GenerationRateLimited:
			return "Too many requests. Please try again in a few minutes."
		case GenerationNotConfigured, GenerationAuthFailure:
			return "The analysis service is not configured correctly."
		case GenerationOverloaded:
			return "The analysis service is busy. Please try again shortly."
		}
	}
	return "Something went wrong while analyzing this website."
}

// Details returns internal diagnostic text for non-production responses.
func Details(err error, development bool) string {
	if !development || err == nil {
		return ""
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
