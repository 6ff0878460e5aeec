// Package orchestrator turns a user's edit intent into candidate
// segments and edit plans. Every request recomputes the project's
// readiness from the catalog and answers through a fixed response
// envelope; the conversational copy is owned here, never by a model.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/embedding"
)

// ProjectState is a point-in-time readiness snapshot. It is rebuilt
// from the store on every orchestrator request rather than carried
// between calls, so the decision logic can stay a pure function.
type ProjectState struct {
	MediaAssets    int     `json:"media_assets_count"`
	Segments       int     `json:"segments_count"`
	TextEmbedded   int     `json:"segments_with_text_embeddings"`
	VisionEmbedded int     `json:"segments_with_vision_embeddings"`
	Coverage       float64 `json:"embedding_coverage"`
	JobsRunning    int     `json:"jobs_running_count"`
	JobsFailed     int     `json:"jobs_failed_count"`
}

// Snapshot gathers the current ProjectState. Coverage is measured
// against the canonical text model only and is 0 for a project with
// no segments. Job counts consider analysis jobs whose payload targets
// one of the project's assets; queued work counts the same as running
// work.
func Snapshot(ctx context.Context, repo catalog.Repository, projectID int64) (*ProjectState, error) {
	assets, err := repo.CountProjectAssets(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	segments, err := repo.CountProjectSegments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("count segments: %w", err)
	}
	textEmbedded, err := repo.CountEmbeddedSegments(ctx, projectID, embedding.TypeText, embedding.TextModel)
	if err != nil {
		return nil, fmt.Errorf("count text embeddings: %w", err)
	}
	visionEmbedded, err := repo.CountEmbeddedSegments(ctx, projectID, embedding.TypeVision, embedding.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("count vision embeddings: %w", err)
	}

	var coverage float64
	if segments > 0 {
		coverage = float64(textEmbedded) / float64(segments)
	}

	running, failed, err := countProjectJobs(ctx, repo, projectID)
	if err != nil {
		return nil, err
	}

	return &ProjectState{
		MediaAssets:    assets,
		Segments:       segments,
		TextEmbedded:   textEmbedded,
		VisionEmbedded: visionEmbedded,
		Coverage:       coverage,
		JobsRunning:    running,
		JobsFailed:     failed,
	}, nil
}

func countProjectJobs(ctx context.Context, repo catalog.Repository, projectID int64) (running, failed int, err error) {
	assetIDs, err := repo.ListProjectAssetIDs(ctx, projectID)
	if err != nil {
		return 0, 0, fmt.Errorf("list project assets: %w", err)
	}
	if len(assetIDs) == 0 {
		return 0, 0, nil
	}
	owned := make(map[int64]bool, len(assetIDs))
	for _, id := range assetIDs {
		owned[id] = true
	}

	active, err := repo.ListJobsByStatus(ctx, catalog.JobStatusPending, catalog.JobStatusRunning)
	if err != nil {
		return 0, 0, fmt.Errorf("list active jobs: %w", err)
	}
	for _, j := range active {
		if j.Payload == nil || !owned[j.Payload.AssetID] {
			continue
		}
		if !catalog.AnalysisJobTypes[j.Type] {
			continue
		}
		running++
	}

	failedJobs, err := repo.ListJobsByStatus(ctx, catalog.JobStatusFailed)
	if err != nil {
		return 0, 0, fmt.Errorf("list failed jobs: %w", err)
	}
	for _, j := range failedJobs {
		if j.Payload != nil && owned[j.Payload.AssetID] {
			failed++
		}
	}
	return running, failed, nil
}
