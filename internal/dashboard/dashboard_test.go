package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/models"
	"github.com/framelens/framelens/internal/videosource"
)

func testDashboard(t *testing.T) *Dashboard {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		VideoURL:       "https://youtu.be/MNn9qKG2UFI",
		TargetItem:     "car",
		Confidence:     0.45,
		NumberOfFrames: 100,
		ModelFamily:    "yolov5",
	}
	detectors := detector.NewCache(func() detector.Config {
		return detector.Config{BaseURL: "http://localhost:9", Logger: logger}
	})

	d, err := New(cfg, detectors, nil, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestRenderPage(t *testing.T) {
	handler := testDashboard(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Video and Image Analyzer") {
		t.Error("page missing title")
	}
	for _, needle := range []string{"yolov5", "yolov8", "https://youtu.be/MNn9qKG2UFI"} {
		if !strings.Contains(body, needle) {
			t.Errorf("page missing %q", needle)
		}
	}
}

func TestStartSession_UnknownModelFamily(t *testing.T) {
	handler := testDashboard(t).Handler()

	form := url.Values{"model_selection": {"yolov99"}}
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestStartSession_RegistersSession(t *testing.T) {
	d := testDashboard(t)
	handler := d.Handler()

	// An invalid URL makes the background run fail fast without touching
	// any external binary; the handler itself must still hand out an ID.
	form := url.Values{
		"media_source": {"url"},
		"video_url":    {"not-a-url"},
		"target_item":  {"car"},
	}
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var resp startResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("no session ID returned")
	}

	d.mu.Lock()
	sess, ok := d.sessions[resp.SessionID]
	d.mu.Unlock()
	if !ok {
		t.Fatal("session not registered under returned ID")
	}

	// The background run rejects the URL.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sess.mu.Lock()
		err := sess.err
		sess.mu.Unlock()
		if err != nil {
			if !errors.Is(err, videosource.ErrInvalidURL) {
				t.Fatalf("session error = %v, want ErrInvalidURL", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never failed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPollSession_Unknown(t *testing.T) {
	handler := testDashboard(t).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestPollSession_FrameAtCursor(t *testing.T) {
	d := testDashboard(t)
	handler := d.Handler()

	sess := &session{
		frames: []models.FrameResult{
			{Index: 0, Outcome: models.Outcome{Annotated: []byte("img0"), ClassCounts: map[string]int{"car": 2}}},
			{Index: 1, Outcome: models.Outcome{Annotated: []byte("img1"), ClassCounts: map[string]int{"car": 1}}},
		},
		summary: &models.Summary{
			VideoURL:    "https://example.com/v.mp4",
			TargetItem:  "car",
			ClassCounts: map[string]int{"car": 3},
		},
		meta: &models.VideoMeta{Width: 640, Height: 480, FPS: 30},
	}
	d.mu.Lock()
	d.sessions["abc"] = sess
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc?cursor=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var view sessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.State != analyzer.StateDone.String() {
		t.Errorf("state = %q, want done", view.State)
	}
	if view.Total != 2 {
		t.Errorf("total = %d, want 2", view.Total)
	}
	if view.Frame == nil || view.Frame.Index != 1 {
		t.Fatalf("frame = %+v, want the frame at cursor 1", view.Frame)
	}
	if view.Frame.Counts["car"] != 1 {
		t.Errorf("frame counts = %v", view.Frame.Counts)
	}
	if view.Meta == nil || view.Meta.Width != 640 {
		t.Errorf("meta = %+v, want probed dimensions", view.Meta)
	}
	// While frames remain the summary is withheld.
	if view.Summary != nil {
		t.Error("summary returned before the cursor passed the last frame")
	}
}

func TestPollSession_SummaryAfterLastFrame(t *testing.T) {
	d := testDashboard(t)
	handler := d.Handler()

	sess := &session{
		frames: []models.FrameResult{
			{Index: 0, Outcome: models.Outcome{Annotated: []byte("img0"), ClassCounts: map[string]int{"car": 2}}},
		},
		summary: &models.Summary{
			VideoURL:    "https://example.com/v.mp4",
			TargetItem:  "car",
			ClassCounts: map[string]int{"car": 2},
		},
	}
	d.mu.Lock()
	d.sessions["abc"] = sess
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc?cursor=1", nil))

	var view sessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Frame != nil {
		t.Error("no frame expected past the end")
	}
	if view.Summary == nil || view.Summary.ClassCounts["car"] != 2 {
		t.Fatalf("summary = %+v, want final counts", view.Summary)
	}
}

func TestPollSession_Failed(t *testing.T) {
	d := testDashboard(t)
	handler := d.Handler()

	d.mu.Lock()
	d.sessions["bad"] = &session{err: errors.New("no stream available")}
	d.mu.Unlock()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/bad", nil))

	var view sessionView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.State != analyzer.StateFailed.String() {
		t.Errorf("state = %q, want failed", view.State)
	}
	if view.Error == "" {
		t.Error("error message missing")
	}
}
