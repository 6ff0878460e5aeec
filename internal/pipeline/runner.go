// Package pipeline runs the analysis job queue: a poll loop that gates
// Pending jobs on asset readiness, claims them atomically, and hands
// them to type-specific handlers on worker goroutines. Cancellation is
// cooperative; a handler already inside an Analysis Service call
// finishes that call and stops at its next checkpoint.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ldang04/vibecut/internal/catalog"
)

// ErrCancelled is returned from handle checkpoints once cancellation
// has been requested for the running job.
var ErrCancelled = errors.New("job cancelled")

var ErrJobNotFound = errors.New("job not found")

// prerequisites maps gated job types to the asset readiness fields that
// must be stamped before dispatch. Types absent from the map run as
// soon as a worker slot is free.
var prerequisites = map[string][]string{
	catalog.JobTypeEnrichSegmentsFromTranscript: {catalog.ReadySegmentsBuilt, catalog.ReadyTranscript},
	catalog.JobTypeEnrichSegmentsFromVision:     {catalog.ReadySegmentsBuilt, catalog.ReadyVision},
	catalog.JobTypeComputeSegmentMetadata:       {catalog.ReadySegmentsBuilt},
	catalog.JobTypeEmbedSegments:                {catalog.ReadyMetadata},
}

// Handle is the per-job cancellation token handed to handlers. It is
// deliberately not a context: requesting cancellation must not abort an
// in-flight Analysis Service call, only stop the handler at the next
// checkpoint.
type Handle struct {
	jobID     int64
	cancelled atomic.Bool
}

func (h *Handle) RequestCancel() {
	h.cancelled.Store(true)
}

// Checkpoint returns ErrCancelled once cancellation has been requested.
// Handlers call it between side effects, in particular right after a
// network call returns and before anything is written.
func (h *Handle) Checkpoint() error {
	if h.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

type Runner struct {
	repo         catalog.Repository
	handlers     *Handlers
	logger       *slog.Logger
	pollInterval time.Duration
	workerCount  int

	running atomic.Bool
	paused  atomic.Bool

	mu     sync.Mutex
	active map[int64]*Handle
	wg     sync.WaitGroup
}

func NewRunner(repo catalog.Repository, handlers *Handlers, workerCount int, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if workerCount < 1 {
		workerCount = 1
	}
	if pollInterval <= 0 {
		pollInterval = 1500 * time.Millisecond
	}
	return &Runner{
		repo:         repo,
		handlers:     handlers,
		logger:       logger,
		pollInterval: pollInterval,
		workerCount:  workerCount,
		active:       make(map[int64]*Handle),
	}
}

// Start blocks until ctx is cancelled, dispatching ready jobs on every
// tick. Jobs still running when ctx ends are waited for before Start
// returns; their final status writes may fail and are re-marked Failed
// on the next daemon start.
func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started", "poll_interval", r.pollInterval, "workers", r.workerCount)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.wg.Wait()
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.dispatchReady(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveJobs reports how many handlers are currently executing.
func (r *Runner) ActiveJobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// dispatchReady scans Pending jobs oldest-first and launches every one
// whose prerequisites are met, up to the free worker slots. Unready
// jobs stay Pending and are re-checked next tick.
func (r *Runner) dispatchReady(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if r.ActiveJobs() >= r.workerCount {
			return
		}

		ready, err := r.prerequisitesMet(ctx, job)
		if err != nil {
			r.logger.Debug("prerequisite check failed", "job_id", job.ID, "type", job.Type, "error", err)
			continue
		}
		if !ready {
			continue
		}

		claimed, err := r.repo.ClaimJob(ctx, job.ID)
		if err != nil {
			r.logger.Error("failed to claim job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		r.launch(ctx, job)
	}
}

func (r *Runner) prerequisitesMet(ctx context.Context, job *catalog.Job) (bool, error) {
	required, gated := prerequisites[job.Type]
	if !gated {
		return true, nil
	}
	// A gated job with no target asset can never become ready; it is
	// left Pending rather than failed, matching the poll contract.
	if job.Payload == nil || job.Payload.AssetID == 0 {
		return false, nil
	}
	return r.repo.AssetReady(ctx, job.Payload.AssetID, required...)
}

// launch runs the handler on its own goroutine so a slow Analysis
// Service call never blocks the poll loop.
func (r *Runner) launch(ctx context.Context, job *catalog.Job) {
	handle := &Handle{jobID: job.ID}

	r.mu.Lock()
	r.active[job.ID] = handle
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, job.ID)
			r.mu.Unlock()
		}()
		r.runJob(ctx, job, handle)
	}()
}

func (r *Runner) runJob(ctx context.Context, job *catalog.Job, handle *Handle) {
	log := r.logger.With("job_id", job.ID, "type", job.Type)
	log.Info("job started")

	start := time.Now()
	err := r.handlers.Handle(ctx, job, handle)

	switch {
	case errors.Is(err, ErrCancelled):
		if uerr := r.repo.UpdateJobStatus(ctx, job.ID, catalog.JobStatusCancelled, ""); uerr != nil {
			log.Error("failed to mark job cancelled", "error", uerr)
		}
		log.Info("job cancelled", "elapsed", time.Since(start))
	case err != nil:
		if uerr := r.repo.UpdateJobStatus(ctx, job.ID, catalog.JobStatusFailed, err.Error()); uerr != nil {
			log.Error("failed to mark job failed", "error", uerr)
		}
		log.Error("job failed", "error", err, "elapsed", time.Since(start))
	default:
		if uerr := r.repo.UpdateJobProgress(ctx, job.ID, 1.0); uerr != nil {
			log.Error("failed to update job progress", "error", uerr)
		}
		if uerr := r.repo.UpdateJobStatus(ctx, job.ID, catalog.JobStatusCompleted, ""); uerr != nil {
			log.Error("failed to mark job completed", "error", uerr)
		}
		log.Info("job completed", "elapsed", time.Since(start))
	}
}

// Cancel stops a job without ever moving it backwards: a Pending job
// flips straight to Cancelled, a Running job is flagged and stops at
// its next handler checkpoint, and a terminal job is left alone. The
// returned status is the job's state as of this call.
func (r *Runner) Cancel(ctx context.Context, jobID int64) (string, error) {
	cancelled, err := r.repo.CancelPendingJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if cancelled {
		r.logger.Info("job cancelled before dispatch", "job_id", jobID)
		return catalog.JobStatusCancelled, nil
	}

	r.mu.Lock()
	handle, isActive := r.active[jobID]
	r.mu.Unlock()
	if isActive {
		handle.RequestCancel()
		r.logger.Info("job cancellation requested", "job_id", jobID)
		return catalog.JobStatusRunning, nil
	}

	job, err := r.repo.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", ErrJobNotFound
	}
	return job.Status, nil
}
