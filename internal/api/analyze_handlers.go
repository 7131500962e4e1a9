package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
)

type analyzeRequest struct {
	URL string `json:"url"`
}

type analysisBody struct {
	Score           int                       `json:"score"`
	Feedback        string                    `json:"feedback"`
	Categories      []analysis.Category       `json:"categories"`
	Recommendations []analysis.Recommendation `json:"recommendations"`
}

type analysisMetadata struct {
	ContentLength int `json:"contentLength"`
	// AnalysisTime is the pipeline duration in milliseconds.
	AnalysisTime int64 `json:"analysisTime"`
}

type analyzeResponse struct {
	Success   bool             `json:"success"`
	URL       string           `json:"url"`
	Timestamp string           `json:"timestamp"`
	Analysis  analysisBody     `json:"analysis"`
	Metadata  analysisMetadata `json:"metadata"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeAnalysisError(w, r, fmt.Errorf("%w: decode body: %w", analysis.ErrInvalidInput, err))
		return
	}

	resp, err := s.analyzer.Run(r.Context(), analysis.Request{URL: req.URL, ClientIP: s.clientIP(r)})
	if err != nil {
		s.writeAnalysisError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Success:   true,
		URL:       resp.URL,
		Timestamp: resp.Timestamp.UTC().Format(time.RFC3339),
		Analysis: analysisBody{
			Score:           resp.Result.Score,
			Feedback:        resp.Result.Summary,
			Categories:      nonNil(resp.Result.Categories),
			Recommendations: nonNil(resp.Result.Recommendations),
		},
		Metadata: analysisMetadata{
			ContentLength: resp.ContentLength,
			AnalysisTime:  resp.AnalysisTime.Milliseconds(),
		},
	})
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	status := analysis.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("analysis request failed",
			zap.Int("status", status),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	var maxErr *http.MaxBytesError
	msg := analysis.PublicMessage(err)
	if errors.As(err, &maxErr) {
		msg = "Request body too large"
	}
	writeError(w, status, msg, analysis.Details(err, s.development()))
}

func (s *Server) analyzeTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Analyze endpoint is working",
	})
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
