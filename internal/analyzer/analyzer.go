// Package analyzer drives the per-request analysis pipeline: extract
// frames, run detection over each frame, aggregate class counts.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/models"
)

const maxWorkers = 4 // Adjust based on your CPU cores

// State of an analysis run. The progression is strictly
// Idle → Extracting → PerFrameInference → Aggregating → Done, with
// Failed as the terminal state of any aborted run.
type State int32

const (
	StateIdle State = iota
	StateExtracting
	StateInference
	StateAggregating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateInference:
		return "inference"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Resolver yields a local file for a video URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// FrameExtractor reads frames out of a local video file.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath string, maxFrames int) ([]models.Frame, error)
}

// Request describes one analysis.
type Request struct {
	VideoURL   string
	TargetItem string
	MaxFrames  int
	Confidence float64
}

// Orchestrator runs the pipeline. One Orchestrator handles one run;
// two concurrent requests get independent Orchestrators and share
// nothing but the process-wide detector cache.
type Orchestrator struct {
	resolver  Resolver
	extractor FrameExtractor
	detector  detector.Detector
	logger    *slog.Logger

	state atomic.Int32

	// FrameObserver, when set, is called with frame results in strict
	// index order while inference is still running: a result is emitted
	// as soon as it and every lower-indexed frame have completed. Used
	// by the dashboard; presentation only.
	FrameObserver func(models.FrameResult)
}

// NewOrchestrator wires an analysis pipeline.
func NewOrchestrator(resolver Resolver, extractor FrameExtractor, det detector.Detector, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		extractor: extractor,
		detector:  det,
		logger:    logger,
	}
}

// State reports the current pipeline state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Run executes the whole pipeline for one request. Any failure in any
// stage aborts the run and is returned to the caller; no partial
// results are produced.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.Summary, error) {
	summary, _, err := o.run(ctx, req)
	return summary, err
}

// RunWithFrames is Run, additionally returning the ordered per-frame
// results (used by the dashboard for its final table).
func (o *Orchestrator) RunWithFrames(ctx context.Context, req Request) (*models.Summary, []models.FrameResult, error) {
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*models.Summary, []models.FrameResult, error) {
	o.setState(StateExtracting)

	videoPath, err := o.resolver.Resolve(ctx, req.VideoURL)
	if err != nil {
		o.setState(StateFailed)
		return nil, nil, err
	}

	frames, err := o.extractor.Extract(ctx, videoPath, req.MaxFrames)
	if err != nil {
		o.setState(StateFailed)
		return nil, nil, err
	}

	o.setState(StateInference)

	results, err := o.inferFrames(ctx, frames, req)
	if err != nil {
		o.setState(StateFailed)
		return nil, nil, err
	}

	o.setState(StateAggregating)

	summary := Aggregate(results, req.VideoURL, req.TargetItem)

	o.setState(StateDone)
	o.logger.Info("analysis complete",
		"url", req.VideoURL,
		"target", req.TargetItem,
		"frames", len(results),
		"classes", len(summary.ClassCounts),
	)

	return summary, results, nil
}

// inferFrames runs detection over every frame. Inference per frame is
// independent, so frames are fanned out to a bounded worker pool; the
// results slice is addressed by frame index, preserving order for the
// caller. The first error cancels the remaining work.
//
// The observer is fed while inference is still in flight: each
// completed frame marks itself done, and the contiguous prefix of done
// frames is emitted in index order, so early frames surface without
// waiting for the whole run.
func (o *Orchestrator) inferFrames(ctx context.Context, frames []models.Frame, req Request) ([]models.FrameResult, error) {
	results := make([]models.FrameResult, len(frames))

	var remaining atomic.Int64
	remaining.Store(int64(len(frames)))

	var observeMu sync.Mutex
	done := make([]bool, len(frames))
	next := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)

	for _, frame := range frames {
		g.Go(func() error {
			outcome, err := o.detector.Predict(ctx, frame, detector.Options{
				TargetClasses: targetClasses(req.TargetItem),
				Confidence:    req.Confidence,
			})
			if err != nil {
				return fmt.Errorf("frame %d/%d failed: %w", frame.Index+1, len(frames), err)
			}

			results[frame.Index] = models.FrameResult{Index: frame.Index, Outcome: outcome}

			if o.FrameObserver != nil {
				observeMu.Lock()
				done[frame.Index] = true
				for next < len(frames) && done[next] {
					o.FrameObserver(results[next])
					next++
				}
				observeMu.Unlock()
			}

			o.logger.Debug("frame analyzed",
				"frame", frame.Index,
				"remaining", remaining.Add(-1),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// targetClasses turns the request's target item into the detector's
// class filter. Multiple classes may be requested comma-separated; an
// empty target means no filtering.
func targetClasses(targetItem string) []string {
	var classes []string
	for _, c := range strings.Split(targetItem, ",") {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
	}
	return classes
}
