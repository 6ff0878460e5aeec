package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/api"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/config"
	"github.com/ldang04/vibecut/internal/db"
	"github.com/ldang04/vibecut/internal/export"
	"github.com/ldang04/vibecut/internal/llm"
	"github.com/ldang04/vibecut/internal/logging"
	"github.com/ldang04/vibecut/internal/media"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/pipeline"
	"github.com/ldang04/vibecut/internal/plan"
	"github.com/ldang04/vibecut/internal/playback"
	"github.com/ldang04/vibecut/internal/profile"
	"github.com/ldang04/vibecut/internal/search"
	"github.com/ldang04/vibecut/internal/ui"
	"github.com/ldang04/vibecut/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cacheDir := filepath.Join(cfg.DataDir(), "cache")
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting vibecut daemon", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                   VIBECUT DAEMON v0.1.0                   ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Analysis:   %-45s ║\n", cfg.AnalysisURL())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	var index *search.Index
	if idx, err := search.OpenIndex(cfg.IndexPath()); err != nil {
		logger.Warn("keyword index unavailable, continuing without it", "path", cfg.IndexPath(), "error", err)
	} else {
		index = idx
		defer index.Close()
	}

	analysisClient := analysis.NewHTTPClient(cfg.AnalysisURL(), logger)
	ffmpeg := media.NewCLIFFmpeg(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlers := pipeline.NewHandlers(repo, analysisClient, ffmpeg, index, cacheDir, logger)
	runner := pipeline.NewRunner(repo, handlers, cfg.WorkerCount(), cfg.PollInterval(), logger)
	go runner.Start(ctx)

	composer := llm.NewComposer(cfg.LLMAPIKey(), cfg.LLMBaseURL(), cfg.LLMModel(), logger)
	orch := orchestrator.New(repo, analysisClient, composer, logger)

	if cfg.WatchDir() != "" {
		projectID, err := ensureWatchProject(repo)
		if err != nil {
			return fmt.Errorf("failed to ensure watch project: %w", err)
		}
		w := watcher.New(repo, projectID, cfg.WatchDir(), 0, logger)
		go func() {
			if err := w.Start(ctx); err != nil {
				logger.Error("watch folder stopped", "error", err)
			}
		}()
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Repository:   repo,
		Runner:       runner,
		Orchestrator: orch,
		Applier:      plan.NewApplier(repo, logger),
		Profiles:     profile.NewBuilder(repo, logger),
		Exporter:     export.NewExporter(repo, logger),
		Playback:     playback.NewServer(repo, logger),
		Semantic:     search.NewSemantic(repo),
		Keyword:      index,
		Analysis:     analysisClient,
		Logger:       logger,
		StartTime:    startTime,
		Version:      config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner: runner,
			Logger: logger,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo catalog.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}

// ensureWatchProject resolves the project watched files import into:
// the one remembered in config, else the most recent project, else a
// fresh Inbox project. The choice is remembered so later projects do
// not silently steal the drop folder.
func ensureWatchProject(repo catalog.Repository) (int64, error) {
	ctx := context.Background()

	if stored, err := repo.GetConfig(ctx, "watch_project_id"); err == nil && stored != "" {
		if id, err := strconv.ParseInt(stored, 10, 64); err == nil {
			if p, err := repo.GetProject(ctx, id); err == nil && p != nil {
				return id, nil
			}
		}
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		return 0, err
	}

	var projectID int64
	if len(projects) > 0 {
		projectID = projects[0].ID
	} else {
		p := &catalog.Project{Name: "Inbox"}
		if err := repo.CreateProject(ctx, p); err != nil {
			return 0, err
		}
		projectID = p.ID
	}

	if err := repo.SetConfig(ctx, "watch_project_id", strconv.FormatInt(projectID, 10)); err != nil {
		return 0, err
	}
	return projectID, nil
}
