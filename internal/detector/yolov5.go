package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/framelens/framelens/internal/models"
)

// yolov5Client talks to the v5 endpoint of the detector sidecar: the
// raw JPEG goes in the request body and detections come back as a flat
// JSON list.
type yolov5Client struct {
	baseURL string
	version string
	client  *http.Client
	logger  *slog.Logger
}

func newYOLOv5Client(cfg Config) *yolov5Client {
	return &yolov5Client{
		baseURL: cfg.BaseURL,
		version: cfg.Version,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

type yolov5Response struct {
	Annotated  string `json:"annotated"`
	Detections []struct {
		Name       string    `json:"name"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"`
	} `json:"detections"`
}

func (c *yolov5Client) Family() string { return FamilyYOLOv5 }

func (c *yolov5Client) Predict(ctx context.Context, frame models.Frame, opts Options) (models.Outcome, error) {
	confidence := clampConfidence(opts.Confidence, c.logger)

	url := fmt.Sprintf("%s/v1/object-detection/%s?conf=%g", c.baseURL, c.version, confidence)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame.Data))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("yolov5 inference for frame %d: %w", frame.Index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Outcome{}, fmt.Errorf("yolov5 inference for frame %d: status %d: %s",
			frame.Index, resp.StatusCode, body)
	}

	var parsed yolov5Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.Outcome{}, fmt.Errorf("decode yolov5 response for frame %d: %w", frame.Index, err)
	}

	annotated, err := base64.StdEncoding.DecodeString(parsed.Annotated)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("decode annotated frame %d: %w", frame.Index, err)
	}

	detections := make([]detection, 0, len(parsed.Detections))
	for _, d := range parsed.Detections {
		detections = append(detections, detection{Name: d.Name, Confidence: d.Confidence})
	}

	return models.Outcome{
		Annotated:   annotated,
		ClassCounts: countClasses(detections, opts.TargetClasses),
	}, nil
}
