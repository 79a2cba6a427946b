package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framelens/framelens/internal/api"
	"github.com/framelens/framelens/internal/config"
	"github.com/framelens/framelens/internal/dashboard"
	"github.com/framelens/framelens/internal/detector"
	"github.com/framelens/framelens/internal/narrator"
	"github.com/framelens/framelens/internal/storage"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API and dashboard",
		Long: `Serve starts the HTTP server exposing POST /analyze_video and the
interactive dashboard at /dashboard.

Configuration comes from the environment (or a .env file); see the
FRAMELENS_* variables. Finished analyses are recorded to a local SQLite
history by default, or to PostgreSQL when FRAMELENS_DATABASE_URL is
set.`,
		RunE: runServeCmd,
	}

	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides FRAMELENS_PORT)")
	cmd.Flags().Bool("no-history", false, "Disable analysis history recording")

	return cmd
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cfg.LogLevel, verbose)

	ctx := cmd.Context()

	detectors := detector.NewCache(func() detector.Config {
		return detector.Config{
			BaseURL: cfg.DetectorURL,
			Logger:  logger,
		}
	})

	var store storage.Store
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		store, err = openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var narr *narrator.Narrator
	if cfg.NarrationEnabled {
		narr, err = narrator.New(ctx, narrator.Config{
			BaseURL: cfg.OllamaURL,
			Port:    cfg.OllamaPort,
			Model:   cfg.OllamaModel,
		}, logger)
		if err != nil {
			logger.Warn("narration unavailable", "error", err)
			narr = nil
		}
	}

	dash, err := dashboard.New(cfg, detectors, narr, logger)
	if err != nil {
		return err
	}

	var dashHandler http.Handler = dash.Handler()
	server := api.NewServer(api.ServerConfig{
		Config:    cfg,
		Detectors: detectors,
		Store:     store,
		Dashboard: dashHandler,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		if err := storage.InitSchema(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("initialize postgres schema: %w", err)
		}
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("recording analyses to postgres")
		return store, nil
	}

	store, err := storage.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	logger.Info("recording analyses to sqlite", "path", cfg.SQLitePath)
	return store, nil
}
