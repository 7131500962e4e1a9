// Package fetcher holds the content cleaning rules shared by every Fetcher
// implementation. Subpackages talk to the actual page sources.
package fetcher

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

const (
	// MaxContentLength bounds cleaned content so the prompt stays inside the
	// model's input budget.
	MaxContentLength = 50000
	// MinContentLength rejects empty, script-only or access-denied pages.
	MinContentLength = 100
)

var stripPolicy = bluemonday.StrictPolicy()

// Clean removes control characters, collapses whitespace runs to a single
// space and truncates to MaxContentLength runes.
func Clean(raw string) string {
	stripped := strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, raw)
	collapsed := strings.Join(strings.Fields(stripped), " ")
	return truncate(collapsed, MaxContentLength)
}

// isControl matches U+0000-U+0008, U+000B, U+000C, U+000E-U+001F and U+007F.
// Tab, line feed and carriage return are left for whitespace collapsing.
func isControl(r rune) bool {
	switch {
	case r <= 0x08:
		return true
	case r == 0x0B, r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}

// StripHTML drops every tag from markup and decodes entities.
func StripHTML(markup string) string {
	text := stripPolicy.Sanitize(strings.ReplaceAll(markup, ">", "> "))
	return html.UnescapeString(text)
}

// PickContent applies the extraction preference order: markdown, then plain
// text, then HTML with tags stripped. The result is cleaned.
func PickContent(markdown, text, markup string) string {
	switch {
	case strings.TrimSpace(markdown) != "":
		return Clean(markdown)
	case strings.TrimSpace(text) != "":
		return Clean(text)
	case strings.TrimSpace(markup) != "":
		return Clean(StripHTML(markup))
	default:
		return ""
	}
}

// Finalize enforces the minimum length and fills in the derived length field.
func Finalize(content analysis.CrawledContent) (analysis.CrawledContent, error) {
	content.ContentLength = utf8.RuneCountInString(content.Content)
	if content.ContentLength < MinContentLength {
		return analysis.CrawledContent{}, &analysis.FetchError{
			Kind:    analysis.FetchInsufficientContent,
			Message: "page has too little readable content",
		}
	}
	return content, nil
}
