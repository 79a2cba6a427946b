// Package narrator produces an optional natural-language description
// of a sampled frame through a locally served Ollama vision model. It
// is config-gated and purely additive: narration failures never fail
// an analysis.
package narrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"

	"github.com/framelens/framelens/internal/models"
)

const systemPrompt = "You are a visual analysis assistant specialized in concise scene descriptions. Describe the objects visible in the image and what is happening."

// Config for the Ollama provider.
type Config struct {
	BaseURL string
	Port    int
	Model   string
}

// Narrator wraps the vision agent.
type Narrator struct {
	agent  *agent.Agent
	logger *slog.Logger
}

// New initializes the vision agent against a local Ollama server.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Narrator, error) {
	logrLogger := logr.FromSlogHandler(logger.Handler())
	opts := &ollama.ProviderOpts{
		Logger:  &logrLogger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	}
	provider := ollama.NewProvider(opts)

	model := &core.Model{
		ID: cfg.Model,
	}
	provider.UseModel(ctx, model)

	visionAgent, err := agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithLogger(&logrLogger),
		bootstrap.WithSystemPrompt(systemPrompt),
	)
	if err != nil {
		return nil, err
	}

	return &Narrator{
		agent:  visionAgent,
		logger: logger,
	}, nil
}

// Describe narrates a single frame. The frame is staged to a temporary
// file because the provider consumes images by path.
func (n *Narrator) Describe(ctx context.Context, frame models.Frame) (string, error) {
	dir, err := os.MkdirTemp("", "framelens-narrate-")
	if err != nil {
		return "", fmt.Errorf("stage frame for narration: %w", err)
	}
	defer os.RemoveAll(dir)

	framePath := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", frame.Index))
	if err := os.WriteFile(framePath, frame.Data, 0644); err != nil {
		return "", fmt.Errorf("stage frame for narration: %w", err)
	}

	response, err := n.agent.Run(
		ctx,
		agent.WithInput("What is happening in this image? List the items shown."),
		agent.WithImagePath(framePath),
	)
	if err != nil {
		return "", fmt.Errorf("narrate frame %d: %w", frame.Index, err)
	}

	if len(response.Messages) == 0 {
		return "", fmt.Errorf("narrate frame %d: no response messages received from model", frame.Index)
	}

	content := response.Messages[len(response.Messages)-1].Content
	n.logger.Debug("frame narrated", "frame", frame.Index, "length", len(content))

	return content, nil
}
