package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/analyzer"
	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/extractor"
	"github.com/framelens/framelens/internal/videosource"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a single video analysis and print the summary",
		Long: `Analyze downloads the video, samples frames, runs detection over each
frame, and prints the aggregated per-class counts as JSON.

Examples:
  # Count cars in the default sample video
  framelens analyze --target car

  # Analyze a specific video with the yolov8 family, 50 frames
  framelens analyze --url https://youtu.be/MNn9qKG2UFI --target person \
    --frames 50 --model yolov8`,
		RunE: runAnalyzeCmd,
	}

	cmd.Flags().StringP("url", "u", "", "Video URL (defaults to the configured sample)")
	cmd.Flags().StringP("target", "t", "", "Target class to count")
	cmd.Flags().IntP("frames", "n", 0, "Maximum number of frames to analyze")
	cmd.Flags().StringP("model", "m", "", "Model family (yolov5 or yolov8)")
	cmd.Flags().Float64P("confidence", "c", 0, "Confidence threshold in (0, 1]")

	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cfg.LogLevel, verbose)

	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = cfg.VideoURL
	}
	target, _ := cmd.Flags().GetString("target")
	if target == "" {
		target = cfg.TargetItem
	}
	family, _ := cmd.Flags().GetString("model")
	if family == "" {
		family = cfg.ModelFamily
	}
	frames, _ := cmd.Flags().GetInt("frames")
	confidence, _ := cmd.Flags().GetFloat64("confidence")
	if confidence == 0 {
		confidence = cfg.Confidence
	}

	det, err := detector.New(family, detector.Config{
		BaseURL: cfg.DetectorURL,
		Version: defaultVersionFor(family, cfg),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	resolver := videosource.NewResolver(cfg.VideoExtension, logger,
		videosource.WithScratchDir(cfg.ScratchDir))
	orch := analyzer.NewOrchestrator(resolver, extractor.New(logger), det, logger)

	summary, err := orch.Run(cmd.Context(), analyzer.Request{
		VideoURL:   url,
		TargetItem: target,
		MaxFrames:  cfg.FrameCap(frames),
		Confidence: confidence,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// defaultVersionFor keeps the configured version when it belongs to the
// requested family, falling back to the family default otherwise.
func defaultVersionFor(family string, cfg *config.Config) string {
	if family == cfg.ModelFamily {
		return cfg.ModelVersion
	}
	version, err := detector.DefaultVersion(family)
	if err != nil {
		// detector.New repeats the family check and reports it.
		return ""
	}
	return version
}
