// Package analysis defines the lead analysis pipeline: the shared types, the
// collaborator interfaces, the error taxonomy, and the Orchestrator that runs
// fetch, generate and persist for a single request.
package analysis

import (
	"encoding/json"
	"time"
)

// Priority ranks how urgent a recommendation is.
type Priority string

// Recommendation priorities understood by the UI and the CSV export.
const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Effort estimates the work needed to act on a recommendation.
type Effort string

// Effort levels.
const (
	EffortLow    Effort = "Low"
	EffortMedium Effort = "Medium"
	EffortHigh   Effort = "High"
)

// Request is the inbound analysis request.
type Request struct {
	URL      string
	ClientIP string
}

// CrawledContent is the cleaned page content returned by a Fetcher.
type CrawledContent struct {
	URL           string        `json:"url"`
	Content       string        `json:"content"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	StatusCode    int           `json:"statusCode"`
	ContentLength int           `json:"contentLength"`
	CrawlTime     time.Duration `json:"crawlTime"`
}

// Category is one scored section of the rubric.
type Category struct {
	Name     string `json:"name"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// Recommendation is one actionable suggestion produced by the model.
type Recommendation struct {
	Priority Priority `json:"priority"`
	Action   string   `json:"action"`
	Impact   string   `json:"impact"`
	Effort   Effort   `json:"effort"`
}

// Result is the parsed model output. Categories and Recommendations are never nil.
type Result struct {
	Score           int              `json:"score"`
	Summary         string           `json:"summary"`
	Categories      []Category       `json:"categories"`
	Recommendations []Recommendation `json:"recommendations"`
}

// LeadRecord is one persisted analysis, unique per (URL, calendar day).
type LeadRecord struct {
	ID              int64           `json:"id"`
	URL             string          `json:"url"`
	Domain          string          `json:"domain"`
	GrowthScore     int             `json:"growth_score"`
	Summary         string          `json:"analysis_summary"`
	Categories      json.RawMessage `json:"analysis_categories"`
	Recommendations json.RawMessage `json:"recommendations"`
	ContentLength   int             `json:"content_length"`
	PageTitle       string          `json:"page_title"`
	ClientIP        string          `json:"client_ip"`
	CreatedAt       time.Time       `json:"created_at"`
	AnalyzedAt      time.Time       `json:"analyzed_at"`
}

// SavedRef identifies the row written by LeadStore.Save.
type SavedRef struct {
	ID       int64 `json:"id"`
	Inserted bool  `json:"inserted"`
}

// Stats summarizes the lead table for the admin dashboard.
type Stats struct {
	Total         int64        `json:"total_leads"`
	UniqueDomains int64        `json:"unique_domains"`
	AverageScore  float64      `json:"avg_score"`
	Excellent     int64        `json:"excellent_leads"`
	Good          int64        `json:"good_leads"`
	Poor          int64        `json:"poor_leads"`
	Last24h       int64        `json:"leads_24h"`
	Last7d        int64        `json:"leads_7d"`
	Recent        []LeadRecord `json:"recent,omitempty"`
}

// Score bucket thresholds shared by the stores.
const (
	ExcellentThreshold = 80
	GoodThreshold      = 65
	PoorThreshold      = 45
	RecentLimit        = 10
)

// Response is what the Orchestrator hands back to the transport layer.
type Response struct {
	URL           string
	Timestamp     time.Time
	Result        Result
	ContentLength int
	AnalysisTime  time.Duration
	Lead          *SavedRef
}

// LeadEvent is published after a lead is stored.
type LeadEvent struct {
	LeadID     int64     `json:"lead_id"`
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	Score      int       `json:"score"`
	Inserted   bool      `json:"inserted"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// NewLeadRecord builds the record persisted for a finished analysis.
func NewLeadRecord(req Request, content CrawledContent, result Result, now time.Time) (LeadRecord, error) {
	categories, err := json.Marshal(nonNilCategories(result.Categories))
	if err != nil {
		return LeadRecord{}, err
	}
	recommendations, err := json.Marshal(nonNilRecommendations(result.Recommendations))
	if err != nil {
		return LeadRecord{}, err
	}
	return LeadRecord{
		URL:             req.URL,
		Domain:          ExtractDomain(req.URL),
		GrowthScore:     result.Score,
		Summary:         result.Summary,
		Categories:      categories,
		Recommendations: recommendations,
		ContentLength:   content.ContentLength,
		PageTitle:       content.Title,
		ClientIP:        req.ClientIP,
		CreatedAt:       now,
		AnalyzedAt:      now,
	}, nil
}

func nonNilCategories(in []Category) []Category {
	if in == nil {
		return []Category{}
	}
	return in
}

func nonNilRecommendations(in []Recommendation) []Recommendation {
	if in == nil {
		return []Recommendation{}
	}
	return in
}

// LeadDay is the UTC calendar day used to deduplicate leads.
func LeadDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
