package api

import (
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/storage"
)

// AnalyzeVideoRequest is the body of POST /analyze_video. Every field
// may also be supplied as a query parameter; absent fields fall back to
// the process-wide defaults.
type AnalyzeVideoRequest struct {
	VideoURL       string `json:"video_url"`
	TargetItem     string `json:"target_item"`
	NumberOfFrames int    `json:"number_of_frames,omitempty"`
	ModelSelection string `json:"model_selection,omitempty"`
}

// AnalyzeVideoResponse echoes the request identity and carries the
// aggregated per-class counts.
type AnalyzeVideoResponse struct {
	VideoURL   string         `json:"video_url"`
	TargetItem string         `json:"target_item"`
	Results    map[string]int `json:"results"`
}

// HistoryResponse is returned by GET /history: the most recent
// analyses, newest first.
type HistoryResponse struct {
	Records []storage.Record `json:"records"`
}

// SimilarHistoryResponse is returned by GET /history?similar=...: past
// analyses ranked by object-mix similarity.
type SimilarHistoryResponse struct {
	Matches []storage.SimilarAnalysis `json:"matches"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

// ErrorResponse carries a failure message; the field name matches the
// endpoint's documented contract.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// SummaryToResponse converts a pipeline summary to the wire shape.
func SummaryToResponse(s *models.Summary) AnalyzeVideoResponse {
	return AnalyzeVideoResponse{
		VideoURL:   s.VideoURL,
		TargetItem: s.TargetItem,
		Results:    s.ClassCounts,
	}
}
