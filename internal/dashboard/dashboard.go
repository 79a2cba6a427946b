// Package dashboard serves the interactive analysis page. A session
// runs the same pipeline as the API endpoint; the browser polls it on a
// fixed inter-frame delay and renders annotated frames as they are
// consumed. The pacing is presentation only.
package dashboard

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/extractor"
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/narrator"
	"github.com/framelens/framelens/internal/videosource"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Dashboard owns the page and its analysis sessions.
type Dashboard struct {
	cfg       *config.Config
	detectors *detector.Cache
	narrator  *narrator.Narrator
	logger    *slog.Logger
	page      *template.Template

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one background analysis run. Once started it runs to
// completion or failure; there is no cancellation.
type session struct {
	mu        sync.Mutex
	orch      *analyzer.Orchestrator
	meta      *models.VideoMeta
	frames    []models.FrameResult
	summary   *models.Summary
	narration string
	err       error
}

// state derives the session state from the run's outcome, falling back
// to the live orchestrator state while the pipeline is in flight.
func (s *session) state() analyzer.State {
	if s.err != nil {
		return analyzer.StateFailed
	}
	if s.summary != nil {
		return analyzer.StateDone
	}
	if s.orch != nil {
		return s.orch.State()
	}
	return analyzer.StateIdle
}

// New creates the dashboard. narr may be nil.
func New(cfg *config.Config, detectors *detector.Cache, narr *narrator.Narrator, logger *slog.Logger) (*Dashboard, error) {
	page, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse dashboard templates: %w", err)
	}

	return &Dashboard{
		cfg:       cfg,
		detectors: detectors,
		narrator:  narr,
		logger:    logger,
		page:      page,
		sessions:  make(map[string]*session),
	}, nil
}

// Handler returns the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", d.renderPage)
	r.Post("/sessions", d.startSession)
	r.Get("/sessions/{id}", d.pollSession)
	return r
}

type pageData struct {
	Title             string
	DefaultURL        string
	DefaultTarget     string
	DefaultConfidence float64
	DefaultFrames     int
	HardFrameCap      int
	Families          []string
}

func (d *Dashboard) renderPage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:             "Video and Image Analyzer",
		DefaultURL:        d.cfg.VideoURL,
		DefaultTarget:     d.cfg.TargetItem,
		DefaultConfidence: d.cfg.Confidence,
		DefaultFrames:     d.cfg.NumberOfFrames,
		HardFrameCap:      config.HardFrameCap,
		Families:          []string{detector.FamilyYOLOv5, detector.FamilyYOLOv8},
	}
	if err := d.page.ExecuteTemplate(w, "index.html", data); err != nil {
		d.logger.Error("render dashboard", "error", err)
	}
}

type startResponse struct {
	SessionID string `json:"session_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// startSession validates the form, spawns the analysis in the
// background and hands the session ID back for polling.
func (d *Dashboard) startSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}

	videoURL := r.FormValue("video_url")
	if r.FormValue("media_source") == "sample" || videoURL == "" {
		videoURL = d.cfg.VideoURL
	}

	target := r.FormValue("target_item")

	confidence := d.cfg.Confidence
	if v := r.FormValue("confidence"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			confidence = parsed
		}
	}

	maxFrames := d.cfg.NumberOfFrames
	if v := r.FormValue("frame_cap"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			maxFrames = parsed
		}
	}
	maxFrames = d.cfg.FrameCap(maxFrames)

	family := r.FormValue("model_selection")
	if family == "" {
		family = d.cfg.ModelFamily
	}
	version := ""
	if family == d.cfg.ModelFamily {
		version = d.cfg.ModelVersion
	}
	det, err := d.detectors.Get(family, version)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	sess := &session{}
	id := uuid.NewString()[:8]

	d.mu.Lock()
	d.sessions[id] = sess
	d.mu.Unlock()

	go d.runSession(sess, det, analyzer.Request{
		VideoURL:   videoURL,
		TargetItem: target,
		MaxFrames:  maxFrames,
		Confidence: confidence,
	})

	writeJSON(w, http.StatusCreated, startResponse{SessionID: id})
}

// probedResolver resolves once up front so video metadata can be shown
// while the pipeline runs, then hands the local path to the
// orchestrator without a second download.
type probedResolver struct {
	path string
}

func (p *probedResolver) Resolve(ctx context.Context, url string) (string, error) {
	return p.path, nil
}

// runSession executes the pipeline, feeding per-frame results into the
// session as they are assembled.
func (d *Dashboard) runSession(sess *session, det detector.Detector, req analyzer.Request) {
	ctx := context.Background()

	resolver := videosource.NewResolver(d.cfg.VideoExtension, d.logger,
		videosource.WithScratchDir(d.cfg.ScratchDir))
	ext := extractor.New(d.logger)

	videoPath, err := resolver.Resolve(ctx, req.VideoURL)
	if err != nil {
		sess.mu.Lock()
		sess.err = err
		sess.mu.Unlock()
		return
	}

	if meta, err := ext.Probe(ctx, videoPath); err != nil {
		d.logger.Warn("video probe failed", "error", err)
	} else {
		sess.mu.Lock()
		sess.meta = meta
		sess.mu.Unlock()
	}

	orch := analyzer.NewOrchestrator(&probedResolver{path: videoPath}, ext, det, d.logger)
	orch.FrameObserver = func(fr models.FrameResult) {
		sess.mu.Lock()
		sess.frames = append(sess.frames, fr)
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	sess.orch = orch
	sess.mu.Unlock()

	summary, frames, err := orch.RunWithFrames(ctx, req)

	sess.mu.Lock()
	if err != nil {
		sess.err = err
		sess.mu.Unlock()
		return
	}
	sess.frames = frames
	sess.summary = summary
	first := models.Frame{Index: 0, Data: frames[0].Outcome.Annotated}
	sess.mu.Unlock()

	if d.narrator != nil {
		narration, err := d.narrator.Describe(ctx, first)
		if err != nil {
			d.logger.Warn("narration failed", "error", err)
			return
		}
		sess.mu.Lock()
		sess.narration = narration
		sess.mu.Unlock()
	}
}

type frameView struct {
	Index     int            `json:"index"`
	Annotated string         `json:"annotated"`
	Counts    map[string]int `json:"counts"`
}

type sessionView struct {
	State     string          `json:"state"`
	Error     string          `json:"error,omitempty"`
	Narration string          `json:"narration,omitempty"`
	Total     int             `json:"total_frames"`
	Frame     *frameView      `json:"frame,omitempty"`
	Summary   *models.Summary `json:"summary,omitempty"`
	Meta      *metaView       `json:"meta,omitempty"`
}

type metaView struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// pollSession returns the session state plus at most one frame (the
// one at the cursor), so the page advances one frame per poll.
func (d *Dashboard) pollSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d.mu.Lock()
	sess, ok := d.sessions[id]
	d.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "unknown session"})
		return
	}

	cursor, _ := strconv.Atoi(r.URL.Query().Get("cursor"))

	sess.mu.Lock()
	defer sess.mu.Unlock()

	state := sess.state()
	view := sessionView{
		State:     state.String(),
		Narration: sess.narration,
		Total:     len(sess.frames),
	}
	if sess.err != nil {
		view.Error = sess.err.Error()
	}
	if sess.meta != nil {
		view.Meta = &metaView{Width: sess.meta.Width, Height: sess.meta.Height, FPS: sess.meta.FPS}
	}
	if cursor >= 0 && cursor < len(sess.frames) {
		fr := sess.frames[cursor]
		view.Frame = &frameView{
			Index:     fr.Index,
			Annotated: base64.StdEncoding.EncodeToString(fr.Outcome.Annotated),
			Counts:    fr.Outcome.ClassCounts,
		}
	}
	if state == analyzer.StateDone && cursor >= len(sess.frames) {
		view.Summary = sess.summary
	}

	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
