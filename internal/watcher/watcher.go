// Package watcher polls a drop folder for new video files and queues
// them for import. A file is only imported once its size has held
// still across two consecutive polls, so a clip still being copied in
// never enters the pipeline half-written.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ldang04/vibecut/internal/catalog"
)

const defaultInterval = 5 * time.Second

// Watcher feeds new files from one directory into one project. All
// state is touched from the Start goroutine only.
type Watcher struct {
	repo      catalog.Repository
	projectID int64
	dir       string
	interval  time.Duration
	logger    *slog.Logger

	// pending tracks files waiting for their size to settle; seen holds
	// everything already imported or already in the catalog.
	pending map[string]int64
	seen    map[string]bool
}

func New(repo catalog.Repository, projectID int64, dir string, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		repo:      repo,
		projectID: projectID,
		dir:       dir,
		interval:  interval,
		logger:    logger.With("component", "watcher"),
		pending:   make(map[string]int64),
		seen:      make(map[string]bool),
	}
}

// Start blocks until ctx is cancelled, sweeping the directory on every
// tick. Files already registered as assets of the project are skipped
// from the start, so a daemon restart does not re-import the folder.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.prime(ctx); err != nil {
		return err
	}
	w.logger.Info("watch folder active", "dir", w.dir, "project_id", w.projectID, "poll_interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch folder stopping")
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) prime(ctx context.Context) error {
	assets, err := w.repo.ListMediaAssets(ctx, w.projectID, catalog.AllAssets)
	if err != nil {
		return fmt.Errorf("list project assets: %w", err)
	}
	for _, a := range assets {
		w.seen[a.Path] = true
	}
	return nil
}

func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("watch dir unreadable", "dir", w.dir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !catalog.IsVideoFile(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if w.seen[path] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		size := info.Size()
		if last, tracked := w.pending[path]; !tracked || last != size || size == 0 {
			w.pending[path] = size
			continue
		}

		if err := w.enqueueImport(ctx, path); err != nil {
			w.logger.Warn("failed to queue watched file", "path", path, "error", err)
			continue
		}
		w.seen[path] = true
		delete(w.pending, path)
	}
}

func (w *Watcher) enqueueImport(ctx context.Context, path string) error {
	job := &catalog.Job{
		Type: catalog.JobTypeImportRaw,
		Payload: &catalog.JobPayload{
			ProjectID: w.projectID,
			MediaPath: path,
		},
	}
	if err := w.repo.CreateJob(ctx, job); err != nil {
		return err
	}
	w.logger.Info("watched file queued for import", "path", path, "job_id", job.ID)
	return nil
}
