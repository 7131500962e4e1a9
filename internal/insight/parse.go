package insight

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

// DefaultSummary replaces a missing summary in an otherwise valid reply.
const DefaultSummary = "Analysis completed successfully."

// FallbackScore is the neutral score used when the reply cannot be parsed.
const FallbackScore = 50

// ErrNoJSONObject means the reply contained no balanced JSON object.
var ErrNoJSONObject = errors.New("no json object in reply")

var requiredFields = []string{"score", "categories", "recommendations"}

// number accepts JSON numbers and numeric strings.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return errors.New("number is null")
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		trimmed = []byte(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	}
	f, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", trimmed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("number %q is not finite", trimmed)
	}
	*n = number(f)
	return nil
}

func (n number) int() int {
	f := math.Round(float64(n))
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32
	case f < math.MinInt32:
		return math.MinInt32
	}
	return int(f)
}

type replyCategory struct {
	Name     string `json:"name"`
	Score    number `json:"score"`
	Feedback string `json:"feedback"`
}

type replyRecommendation struct {
	Priority string `json:"priority"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Effort   string `json:"effort"`
}

type reply struct {
	Score           number                `json:"score"`
	Summary         string                `json:"summary"`
	Categories      []replyCategory       `json:"categories"`
	Recommendations []replyRecommendation `json:"recommendations"`
}

// ParseReply extracts and normalizes the analysis from a raw model reply.
func ParseReply(raw string, rubric Rubric) (analysis.Result, error) {
	span, ok := firstObject(stripCodeFence(raw))
	if !ok {
		return analysis.Result{}, ErrNoJSONObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return analysis.Result{}, fmt.Errorf("decode reply: %w", err)
	}
	for _, name := range requiredFields {
		if _, present := fields[name]; !present {
			return analysis.Result{}, fmt.Errorf("reply missing %q", name)
		}
	}

	var parsed reply
	if err := json.Unmarshal([]byte(span), &parsed); err != nil {
		return analysis.Result{}, fmt.Errorf("decode reply: %w", err)
	}

	result := analysis.Result{
		Score:           clamp(parsed.Score.int(), 0, RubricTotal),
		Summary:         strings.TrimSpace(parsed.Summary),
		Categories:      make([]analysis.Category, 0, len(parsed.Categories)),
		Recommendations: make([]analysis.Recommendation, 0, len(parsed.Recommendations)),
	}
	if result.Summary == "" {
		result.Summary = DefaultSummary
	}
	for _, c := range parsed.Categories {
		name := strings.TrimSpace(c.Name)
		result.Categories = append(result.Categories, analysis.Category{
			Name:     name,
			Score:    rubric.ClampCategory(name, c.Score.int()),
			Feedback: strings.TrimSpace(c.Feedback),
		})
	}
	for _, rec := range parsed.Recommendations {
		result.Recommendations = append(result.Recommendations, analysis.Recommendation{
			Priority: normalizePriority(rec.Priority),
			Action:   strings.TrimSpace(rec.Action),
			Impact:   strings.TrimSpace(rec.Impact),
			Effort:   normalizeEffort(rec.Effort),
		})
	}
	return result, nil
}

// FallbackResult is returned when the model reply cannot be parsed.
func FallbackResult() analysis.Result {
	return analysis.Result{
		Score:   FallbackScore,
		Summary: "We could not complete a detailed analysis of this website. Please try again.",
		Categories: []analysis.Category{{
			Name:     "Analysis Error",
			Score:    0,
			Feedback: "The analysis response could not be processed, so a neutral score was assigned.",
		}},
		Recommendations: []analysis.Recommendation{{
			Priority: analysis.PriorityHigh,
			Action:   "Retry the analysis",
			Impact:   "Get an accurate, detailed assessment of the website",
			Effort:   analysis.EffortLow,
		}},
	}
}

// stripCodeFence removes a surrounding markdown code fence such as ```json.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} span, ignoring braces inside
// JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case ch == '\\':
					escaped = true
				case ch == '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func normalizePriority(p string) analysis.Priority {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return analysis.PriorityHigh
	case "low":
		return analysis.PriorityLow
	default:
		return analysis.PriorityMedium
	}
}

func normalizeEffort(e string) analysis.Effort {
	switch strings.ToLower(strings.TrimSpace(e)) {
	case "low":
		return analysis.EffortLow
	case "high":
		return analysis.EffortHigh
	default:
		return analysis.EffortMedium
	}
}
