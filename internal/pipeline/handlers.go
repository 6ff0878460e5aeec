package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/media"
	"github.com/ldang04/vibecut/internal/search"
)

// Proxy renditions are capped at 1080p; smaller sources keep their
// native dimensions.
const (
	maxProxyWidth  = 1920
	maxProxyHeight = 1080
)

// Handlers holds the dependencies the job handlers share. The keyword
// index may be nil, in which case metadata lands without being indexed.
type Handlers struct {
	repo     catalog.Repository
	analysis analysis.Service
	ffmpeg   media.FFmpeg
	index    *search.Index
	cacheDir string
	logger   *slog.Logger
}

func NewHandlers(repo catalog.Repository, svc analysis.Service, ffmpeg media.FFmpeg, index *search.Index, cacheDir string, logger *slog.Logger) *Handlers {
	return &Handlers{
		repo:     repo,
		analysis: svc,
		ffmpeg:   ffmpeg,
		index:    index,
		cacheDir: cacheDir,
		logger:   logger,
	}
}

// Handle runs the handler for the job's type. A nil error means the
// job's work is done and the runner may mark it Completed; readiness
// stamping and follow-up enqueues happen inside the handler.
func (h *Handlers) Handle(ctx context.Context, job *catalog.Job, handle *Handle) error {
	switch job.Type {
	case catalog.JobTypeImportRaw:
		return h.handleImportRaw(ctx, job, handle)
	case catalog.JobTypeGenerateProxy:
		return h.handleGenerateProxy(ctx, job, handle)
	case catalog.JobTypeTranscribeAsset:
		return h.handleTranscribe(ctx, job, handle)
	case catalog.JobTypeAnalyzeVisionAsset:
		return h.handleAnalyzeVision(ctx, job, handle)
	case catalog.JobTypeBuildSegments:
		return h.handleBuildSegments(ctx, job)
	case catalog.JobTypeEnrichSegmentsFromTranscript:
		return h.handleEnrichFromTranscript(ctx, job)
	case catalog.JobTypeEnrichSegmentsFromVision:
		return h.handleEnrichFromVision(ctx, job)
	case catalog.JobTypeComputeSegmentMetadata:
		return h.handleComputeMetadata(ctx, job)
	case catalog.JobTypeEmbedSegments:
		return h.handleEmbedSegments(ctx, job, handle)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// handleImportRaw registers every video named by the payload (a single
// media_path or a non-recursive folder scan) and fans out the per-asset
// analysis jobs.
func (h *Handlers) handleImportRaw(ctx context.Context, job *catalog.Job, handle *Handle) error {
	p := job.Payload
	if p == nil || p.ProjectID == 0 {
		return fmt.Errorf("import job missing project_id")
	}

	var files []string
	switch {
	case p.FolderPath != "":
		scanned, err := media.ScanFolder(p.FolderPath)
		if err != nil {
			return fmt.Errorf("scan folder %s: %w", p.FolderPath, err)
		}
		files = scanned
	case p.MediaPath != "":
		files = []string{p.MediaPath}
	default:
		return fmt.Errorf("import job missing folder_path or media_path")
	}

	for i, path := range files {
		if err := handle.Checkpoint(); err != nil {
			return err
		}
		if err := h.importOne(ctx, p.ProjectID, path, p.IsReference); err != nil {
			return fmt.Errorf("import %s: %w", filepath.Base(path), err)
		}
		h.repo.UpdateJobProgress(ctx, job.ID, float64(i+1)/float64(len(files)))
	}

	h.logger.Info("import finished", "job_id", job.ID, "project_id", p.ProjectID, "files", len(files), "reference", p.IsReference)
	return nil
}

// importOne probes and registers one video file, then enqueues the
// four root jobs for it. Checksum failures are tolerated; the asset is
// registered without one.
func (h *Handlers) importOne(ctx context.Context, projectID int64, path string, isReference bool) error {
	checksum, err := media.ComputeChecksum(path)
	if err != nil {
		h.logger.Warn("checksum failed", "path", path, "error", err)
		checksum = ""
	}

	info, err := h.ffmpeg.Probe(ctx, path)
	if err != nil {
		return err
	}

	asset := &catalog.MediaAsset{
		ProjectID:     projectID,
		Path:          path,
		Checksum:      checksum,
		DurationTicks: info.DurationTicks,
		FPSNum:        info.FPSNum,
		FPSDen:        info.FPSDen,
		Width:         info.Width,
		Height:        info.Height,
		HasAudio:      info.HasAudio,
		IsReference:   isReference,
	}
	if err := h.repo.UpsertMediaAsset(ctx, asset); err != nil {
		return fmt.Errorf("register asset: %w", err)
	}

	followUps := []struct {
		jobType string
		payload catalog.JobPayload
	}{
		{catalog.JobTypeGenerateProxy, catalog.JobPayload{AssetID: asset.ID, MediaPath: path}},
		{catalog.JobTypeBuildSegments, catalog.JobPayload{AssetID: asset.ID}},
		{catalog.JobTypeTranscribeAsset, catalog.JobPayload{AssetID: asset.ID, MediaPath: path}},
		{catalog.JobTypeAnalyzeVisionAsset, catalog.JobPayload{AssetID: asset.ID, MediaPath: path}},
	}
	for _, f := range followUps {
		if err := h.enqueue(ctx, f.jobType, f.payload); err != nil {
			return err
		}
	}
	return nil
}

// handleGenerateProxy transcodes a playback proxy and extracts one
// thumbnail per second of footage.
func (h *Handlers) handleGenerateProxy(ctx context.Context, job *catalog.Job, handle *Handle) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	width, height := proxyDimensions(asset.Width, asset.Height)
	proxyPath := filepath.Join(h.cacheDir, "proxies", fmt.Sprintf("proxy_%d.mp4", asset.ID))

	h.repo.UpdateJobProgress(ctx, job.ID, 0.3)
	if err := h.ffmpeg.GenerateProxy(ctx, asset.Path, proxyPath, width, height); err != nil {
		return err
	}
	if err := h.repo.CreateProxy(ctx, &catalog.Proxy{
		MediaAssetID: asset.ID,
		Path:         proxyPath,
		Codec:        "libx264",
		Width:        width,
		Height:       height,
	}); err != nil {
		return fmt.Errorf("store proxy: %w", err)
	}

	if err := handle.Checkpoint(); err != nil {
		return err
	}

	h.repo.UpdateJobProgress(ctx, job.ID, 0.7)
	thumbsDir := filepath.Join(h.cacheDir, "thumbs", fmt.Sprintf("asset_%d", asset.ID))
	dir, err := h.ffmpeg.ExtractThumbnails(ctx, asset.Path, thumbsDir)
	if err != nil {
		return err
	}
	if err := h.repo.SetThumbnailDir(ctx, asset.ID, dir); err != nil {
		return fmt.Errorf("store thumbnail dir: %w", err)
	}
	return nil
}

func proxyDimensions(width, height int) (int, int) {
	if width > maxProxyWidth {
		width = maxProxyWidth
	}
	if height > maxProxyHeight {
		height = maxProxyHeight
	}
	return width, height
}

func (h *Handlers) targetAsset(ctx context.Context, job *catalog.Job) (*catalog.MediaAsset, error) {
	if job.Payload == nil || job.Payload.AssetID == 0 {
		return nil, fmt.Errorf("%s job missing asset_id", job.Type)
	}
	asset, err := h.repo.GetMediaAsset(ctx, job.Payload.AssetID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("media asset %d not found", job.Payload.AssetID)
	}
	return asset, nil
}

func (h *Handlers) enqueue(ctx context.Context, jobType string, payload catalog.JobPayload) error {
	job := &catalog.Job{Type: jobType, Payload: &payload}
	if err := h.repo.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	h.logger.Debug("follow-up job enqueued", "type", jobType, "job_id", job.ID, "asset_id", payload.AssetID)
	return nil
}
