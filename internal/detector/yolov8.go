package detector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/framelens/framelens/internal/models"
)

// yolov8Client talks to the v8 endpoint of the detector sidecar. The
// call shape differs from v5: the image is posted as a multipart form
// with the model name, and the sidecar can stream detections back as
// NDJSON for memory-bounded large inputs.
type yolov8Client struct {
	baseURL string
	version string
	client  *http.Client
	logger  *slog.Logger

	// stream switches the sidecar to NDJSON result delivery.
	stream bool
}

func newYOLOv8Client(cfg Config) *yolov8Client {
	return &yolov8Client{
		baseURL: cfg.BaseURL,
		version: cfg.Version,
		client:  cfg.Client,
		logger:  cfg.Logger,
		stream:  true,
	}
}

// SupportsStreaming reports the streaming-result capability.
func (c *yolov8Client) SupportsStreaming() bool { return c.stream }

func (c *yolov8Client) Family() string { return FamilyYOLOv8 }

type yolov8Result struct {
	Cls  string    `json:"cls"`
	Conf float64   `json:"conf"`
	XYXY []float64 `json:"xyxy"`

	// Annotated is only present on the final record of a stream, or on
	// the single record of a non-streaming response.
	Annotated string `json:"annotated,omitempty"`
}

type yolov8Response struct {
	Annotated string         `json:"annotated"`
	Results   []yolov8Result `json:"results"`
}

func (c *yolov8Client) Predict(ctx context.Context, frame models.Frame, opts Options) (models.Outcome, error) {
	confidence := clampConfidence(opts.Confidence, c.logger)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("model", c.version); err != nil {
		return models.Outcome{}, fmt.Errorf("build multipart request: %w", err)
	}
	if err := writer.WriteField("conf", fmt.Sprintf("%g", confidence)); err != nil {
		return models.Outcome{}, fmt.Errorf("build multipart request: %w", err)
	}
	part, err := writer.CreateFormFile("image", fmt.Sprintf("frame_%04d.jpg", frame.Index))
	if err != nil {
		return models.Outcome{}, fmt.Errorf("build multipart request: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return models.Outcome{}, fmt.Errorf("build multipart request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return models.Outcome{}, fmt.Errorf("build multipart request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/predict", c.baseURL)
	if c.stream {
		url += "?stream=1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("yolov8 inference for frame %d: %w", frame.Index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Outcome{}, fmt.Errorf("yolov8 inference for frame %d: status %d: %s",
			frame.Index, resp.StatusCode, raw)
	}

	var (
		detections []detection
		annotated  []byte
	)
	if c.stream {
		detections, annotated, err = decodeStream(resp.Body)
	} else {
		detections, annotated, err = decodeSingle(resp.Body)
	}
	if err != nil {
		return models.Outcome{}, fmt.Errorf("decode yolov8 response for frame %d: %w", frame.Index, err)
	}

	return models.Outcome{
		Annotated:   annotated,
		ClassCounts: countClasses(detections, opts.TargetClasses),
	}, nil
}

// decodeStream consumes NDJSON records: one detection per line, with
// the annotated image riding on the final record.
func decodeStream(r io.Reader) ([]detection, []byte, error) {
	var (
		detections []detection
		annotated  []byte
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec yolov8Result
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, err
		}
		if rec.Cls != "" {
			detections = append(detections, detection{Name: rec.Cls, Confidence: rec.Conf})
		}
		if rec.Annotated != "" {
			decoded, err := base64.StdEncoding.DecodeString(rec.Annotated)
			if err != nil {
				return nil, nil, err
			}
			annotated = decoded
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return detections, annotated, nil
}

func decodeSingle(r io.Reader) ([]detection, []byte, error) {
	var parsed yolov8Response
	if err := json.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, nil, err
	}

	detections := make([]detection, 0, len(parsed.Results))
	for _, rec := range parsed.Results {
		detections = append(detections, detection{Name: rec.Cls, Confidence: rec.Conf})
	}

	annotated, err := base64.StdEncoding.DecodeString(parsed.Annotated)
	if err != nil {
		return nil, nil, err
	}
	return detections, annotated, nil
}
