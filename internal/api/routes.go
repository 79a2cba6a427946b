package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/extractor"
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/storage"
	"github.com/framelens/framelens/internal/videosource"
)

// Pipeline runs one analysis end to end.
type Pipeline interface {
	Run(ctx context.Context, req analyzer.Request) (*models.Summary, error)
}

// Version of the service, overridable at build time via ldflags.
var Version = "0.1.0"

var startTime = time.Now()

// NewRouter assembles the HTTP routes.
func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler())
	r.Post("/analyze_video", analyzeVideoHandler(cfg))
	r.Get("/history", historyHandler(cfg))

	if cfg.Dashboard != nil {
		r.Mount("/dashboard", cfg.Dashboard)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/dashboard", http.StatusFound)
		})
	}

	return r
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: Version,
			UptimeS: int64(time.Since(startTime).Seconds()),
		})
	}
}

// analyzeVideoHandler runs the whole pipeline inside the request and
// returns the summary. Every internal failure surfaces verbatim as a
// 500 with a detail message; no partial results are ever returned.
func analyzeVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseAnalyzeRequest(r, cfg)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		family := req.ModelSelection
		if family == "" {
			family = cfg.Config.ModelFamily
		}
		version := ""
		if family == cfg.Config.ModelFamily {
			version = cfg.Config.ModelVersion
		}
		det, err := cfg.Detectors.Get(family, version)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		newPipeline := cfg.NewPipeline
		if newPipeline == nil {
			newPipeline = func(det detector.Detector) Pipeline {
				resolver := videosource.NewResolver(cfg.Config.VideoExtension, cfg.Logger,
					videosource.WithScratchDir(cfg.Config.ScratchDir))
				return analyzer.NewOrchestrator(resolver, extractor.New(cfg.Logger), det, cfg.Logger)
			}
		}

		summary, err := newPipeline(det).Run(r.Context(), analyzer.Request{
			VideoURL:   req.VideoURL,
			TargetItem: req.TargetItem,
			MaxFrames:  cfg.Config.FrameCap(req.NumberOfFrames),
			Confidence: cfg.Config.Confidence,
		})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if cfg.Store != nil {
			if err := cfg.Store.Record(r.Context(), *summary, ""); err != nil {
				cfg.Logger.Warn("failed to record analysis", "error", err)
			}
		}

		WriteJSON(w, http.StatusOK, SummaryToResponse(summary))
	}
}

// parseAnalyzeRequest merges query parameters over an optional JSON
// body, with process-wide defaults filling any gaps.
func parseAnalyzeRequest(r *http.Request, cfg ServerConfig) (AnalyzeVideoRequest, error) {
	req := AnalyzeVideoRequest{}

	if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, err
		}
	}

	q := r.URL.Query()
	if v := q.Get("video_url"); v != "" {
		req.VideoURL = v
	}
	if v := q.Get("target_item"); v != "" {
		req.TargetItem = v
	}
	if v := q.Get("model_selection"); v != "" {
		req.ModelSelection = v
	}
	if v := q.Get("number_of_frames"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, err
		}
		req.NumberOfFrames = n
	}

	if req.VideoURL == "" {
		req.VideoURL = cfg.Config.VideoURL
	}
	if req.TargetItem == "" {
		req.TargetItem = cfg.Config.TargetItem
	}

	return req, nil
}

const defaultHistoryLimit = 20

// historyHandler serves the recorded analyses. Plain requests return
// the newest records; a similar parameter (comma-separated class:count
// pairs, e.g. "car:4,person:2") switches to object-mix similarity
// ranking when the configured store supports it.
func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Store == nil {
			WriteError(w, http.StatusNotFound, "history recording is disabled")
			return
		}

		limit := defaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusInternalServerError, fmt.Sprintf("invalid limit %q", v))
				return
			}
			limit = n
		}

		if similar := r.URL.Query().Get("similar"); similar != "" {
			searcher, ok := cfg.Store.(storage.SimilaritySearcher)
			if !ok {
				WriteError(w, http.StatusInternalServerError,
					"similarity search is not supported by the configured history store")
				return
			}
			classCounts, err := parseClassCounts(similar)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error())
				return
			}
			matches, err := searcher.SearchSimilar(r.Context(), classCounts, limit)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error())
				return
			}
			WriteJSON(w, http.StatusOK, SimilarHistoryResponse{Matches: matches})
			return
		}

		records, err := cfg.Store.Recent(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, HistoryResponse{Records: records})
	}
}

// parseClassCounts parses "car:4,person:2" into class counts. A bare
// class name counts as 1.
func parseClassCounts(raw string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		class, count, ok := strings.Cut(pair, ":")
		class = strings.TrimSpace(class)
		if class == "" {
			return nil, fmt.Errorf("invalid class filter %q", pair)
		}
		n := 1
		if ok {
			parsed, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil || parsed <= 0 {
				return nil, fmt.Errorf("invalid count in class filter %q", pair)
			}
			n = parsed
		}
		counts[class] += n
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("empty class filter %q", raw)
	}
	return counts, nil
}
