// Package detector wraps the pretrained object-detection model families.
// The model weights live in an external detector sidecar; both families
// are HTTP clients of it with different call shapes, exposed behind a
// single Detector contract.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/framelens/framelens/internal/models"
)

// DefaultConfidence is the confidence threshold applied when a request
// carries an out-of-range value. Out-of-range values are clamped, never
// rejected.
const DefaultConfidence = 0.45

var (
	// ErrUnsupportedModelFamily means the family identifier is not one
	// of the recognized model families.
	ErrUnsupportedModelFamily = errors.New("unsupported model family")

	// ErrUnsupportedModelVersion means the version is not in the
	// family's accepted list.
	ErrUnsupportedModelVersion = errors.New("unsupported model version")
)

// Families and their accepted weight checkpoints.
const (
	FamilyYOLOv5 = "yolov5"
	FamilyYOLOv8 = "yolov8"
)

var acceptedVersions = map[string][]string{
	FamilyYOLOv5: {"yolov5n", "yolov5s", "yolov5m", "yolov5l", "yolov5x"},
	FamilyYOLOv8: {"yolov8n.pt", "yolov8n-seg.pt"},
}

// Options adjust a single prediction.
type Options struct {
	// TargetClasses filters the returned class counts to the named
	// classes. Empty means all detected classes are returned.
	TargetClasses []string

	// Confidence is the minimum model certainty for a detection to be
	// reported. Must be in (0, 1]; out-of-range values are clamped to
	// DefaultConfidence.
	Confidence float64
}

// Detector is the capability both model families expose.
type Detector interface {
	// Predict runs inference on one frame, returning the annotated
	// frame and the per-class detection counts.
	Predict(ctx context.Context, frame models.Frame, opts Options) (models.Outcome, error)

	// Family identifies the model family serving this detector.
	Family() string
}

// Streamer marks a detector that supports a streaming-result mode for
// memory-bounded large inputs. It is a capability flag, not a separate
// contract.
type Streamer interface {
	SupportsStreaming() bool
}

// detection is the wire-independent shape both clients normalize to.
type detection struct {
	Name       string
	Confidence float64
}

// Config carries construction-time settings shared by both families.
type Config struct {
	// BaseURL of the detector sidecar.
	BaseURL string

	// Version is the weight checkpoint, e.g. "yolov5s".
	Version string

	// Client defaults to a client with a generous inference timeout.
	Client *http.Client

	Logger *slog.Logger
}

// New constructs a detector for the given family and version. Both
// checks happen here, before any weights are touched.
func New(family string, cfg Config) (Detector, error) {
	versions, ok := acceptedVersions[family]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)",
			ErrUnsupportedModelFamily, family, strings.Join(familyNames(), ", "))
	}
	if !slices.Contains(versions, cfg.Version) {
		return nil, fmt.Errorf("%w: %q for family %q (available: %s)",
			ErrUnsupportedModelVersion, cfg.Version, family, strings.Join(versions, ", "))
	}

	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	switch family {
	case FamilyYOLOv5:
		return newYOLOv5Client(cfg), nil
	default:
		return newYOLOv8Client(cfg), nil
	}
}

// DefaultVersion returns the default weight checkpoint for a family.
func DefaultVersion(family string) (string, error) {
	versions, ok := acceptedVersions[family]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedModelFamily, family)
	}
	return versions[0], nil
}

func familyNames() []string {
	names := make([]string, 0, len(acceptedVersions))
	for name := range acceptedVersions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// clampConfidence normalizes an out-of-range confidence to the default
// rather than failing.
func clampConfidence(confidence float64, logger *slog.Logger) float64 {
	if confidence <= 0 || confidence > 1.0 {
		logger.Warn("confidence out of range, using default",
			"requested", confidence, "default", DefaultConfidence)
		return DefaultConfidence
	}
	return confidence
}

// countClasses folds raw detections into per-class counts, applying the
// target-class filter. Class-name matching is case-insensitive.
func countClasses(detections []detection, targets []string) map[string]int {
	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			wanted[t] = true
		}
	}

	counts := make(map[string]int)
	for _, d := range detections {
		name := strings.ToLower(d.Name)
		if len(wanted) > 0 && !wanted[name] {
			continue
		}
		counts[name]++
	}
	return counts
}
