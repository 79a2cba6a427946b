// Package config holds the process-wide defaults for framelens.
// Values are read from environment variables with sensible defaults;
// every analysis-relevant value can still be overridden per request.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// HardFrameCap is the absolute upper bound on frames read from a single
// video, regardless of what a request asks for.
const HardFrameCap = 500

// Config carries all process-wide settings.
type Config struct {
	Port     int    `env:"FRAMELENS_PORT"      envDefault:"8080"`
	LogLevel string `env:"FRAMELENS_LOG_LEVEL" envDefault:"info"`

	// Default analysis parameters, overridable per request.
	VideoURL       string  `env:"FRAMELENS_VIDEO_URL"   envDefault:"https://youtu.be/MNn9qKG2UFI"`
	TargetItem     string  `env:"FRAMELENS_TARGET_ITEM" envDefault:"car"`
	Confidence     float64 `env:"FRAMELENS_CONFIDENCE"  envDefault:"0.45"`
	NumberOfFrames int     `env:"FRAMELENS_FRAMES"      envDefault:"100"`
	ModelFamily    string  `env:"FRAMELENS_MODEL_FAMILY"  envDefault:"yolov5"`
	ModelVersion   string  `env:"FRAMELENS_MODEL_VERSION" envDefault:"yolov5s"`
	VideoExtension string  `env:"FRAMELENS_VIDEO_EXT"     envDefault:"mp4"`

	// Detector sidecar serving the pretrained weights.
	DetectorURL string `env:"FRAMELENS_DETECTOR_URL" envDefault:"http://localhost:8501"`

	// Scratch directory for downloaded videos. Empty means a fresh
	// temporary directory per download.
	ScratchDir string `env:"FRAMELENS_SCRATCH_DIR"`

	// History store. SQLitePath is the local default; DatabaseURL, when
	// set, switches recording to Postgres.
	SQLitePath  string `env:"FRAMELENS_SQLITE_PATH" envDefault:"framelens.db"`
	DatabaseURL string `env:"FRAMELENS_DATABASE_URL"`

	// Optional scene narration through a local Ollama vision model.
	NarrationEnabled bool   `env:"FRAMELENS_NARRATION" envDefault:"false"`
	OllamaURL        string `env:"FRAMELENS_OLLAMA_URL" envDefault:"http://localhost"`
	OllamaPort       int    `env:"FRAMELENS_OLLAMA_PORT" envDefault:"11434"`
	OllamaModel      string `env:"FRAMELENS_OLLAMA_MODEL" envDefault:"llama3.2-vision:11b"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config from environment: %w", err)
	}
	return cfg, nil
}

// FrameCap clamps a requested frame count to something usable: requests
// that are zero or negative fall back to the configured default, and
// nothing may exceed the hard cap.
func (c *Config) FrameCap(requested int) int {
	if requested <= 0 {
		requested = c.NumberOfFrames
	}
	if requested > HardFrameCap {
		return HardFrameCap
	}
	return requested
}
