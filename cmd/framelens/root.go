package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for framelens.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "framelens",
		Short: "Count objects in videos with pretrained detection models",
		Long: `framelens downloads a video from a URL, samples its frames, runs an
object-detection model over each frame, and aggregates per-class counts
into a summary report.

The serve command exposes the analysis through POST /analyze_video and
an interactive dashboard; analyze runs a single analysis from the
command line.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAnalyzeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	// A .env file is optional; the environment wins when both exist.
	_ = godotenv.Load()

	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger configures the tint slog handler used everywhere.
func newLogger(level string, verbose bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		}),
	)
}
