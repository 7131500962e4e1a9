package analysis

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	httpURLPattern = regexp.MustCompile(`^https?://[^\s/$.?#][^\s]*$`)
	schemePrefix   = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)
	wwwPrefix      = regexp.MustCompile(`(?i)^www\.`)
)

// ValidateURL checks that raw is an absolute http or https URL with a host.
// The returned string is trimmed of surrounding whitespace.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	if !httpURLPattern.MatchString(strings.ToLower(trimmed)) {
		return "", fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidInput)
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: url is malformed", ErrInvalidInput)
	}
	return trimmed, nil
}

// ExtractDomain returns the host of raw without a leading "www.". Unparseable
// input falls back to stripping the scheme and "www." and keeping everything
// before the first slash.
func ExtractDomain(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if u, err := url.Parse(trimmed); err == nil && u.Hostname() != "" {
		return wwwPrefix.ReplaceAllString(strings.ToLower(u.Hostname()), "")
	}
	host := schemePrefix.ReplaceAllString(trimmed, "")
	host = wwwPrefix.ReplaceAllString(host, "")
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	return strings.ToLower(host)
}
