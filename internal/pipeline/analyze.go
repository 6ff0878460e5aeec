package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/embedding"
)

const (
	// Segments are fixed five-second windows of source time.
	segmentDurationTicks = 5 * catalog.TicksPerSecond

	// Motion scores above this classify an untranscripted segment as
	// action rather than broll.
	motionHighThreshold = 50.0

	summaryMaxLen = 50
)

// handleTranscribe sends the asset to the transcription endpoint and
// stores the reply verbatim. Enrichment parses it later, so a format
// change in the sidecar never corrupts already-stored assets.
func (h *Handlers) handleTranscribe(ctx context.Context, job *catalog.Job, handle *Handle) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}
	mediaPath := job.Payload.MediaPath
	if mediaPath == "" {
		mediaPath = asset.Path
	}

	raw, err := h.analysis.Transcribe(ctx, mediaPath)
	if err != nil {
		return fmt.Errorf("transcribe asset %d: %w", asset.ID, err)
	}
	if err := handle.Checkpoint(); err != nil {
		return err
	}

	if err := h.repo.SetAssetTranscript(ctx, asset.ID, string(raw)); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	if err := h.repo.MarkAssetReady(ctx, asset.ID, catalog.ReadyTranscript); err != nil {
		return err
	}
	return h.enqueue(ctx, catalog.JobTypeEnrichSegmentsFromTranscript, catalog.JobPayload{AssetID: asset.ID})
}

// handleAnalyzeVision mirrors handleTranscribe for the vision model.
func (h *Handlers) handleAnalyzeVision(ctx context.Context, job *catalog.Job, handle *Handle) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}
	mediaPath := job.Payload.MediaPath
	if mediaPath == "" {
		mediaPath = asset.Path
	}

	raw, err := h.analysis.AnalyzeVision(ctx, mediaPath)
	if err != nil {
		return fmt.Errorf("vision analysis for asset %d: %w", asset.ID, err)
	}
	if err := handle.Checkpoint(); err != nil {
		return err
	}

	if err := h.repo.SetAssetVision(ctx, asset.ID, string(raw)); err != nil {
		return fmt.Errorf("store vision analysis: %w", err)
	}
	if err := h.repo.MarkAssetReady(ctx, asset.ID, catalog.ReadyVision); err != nil {
		return err
	}
	return h.enqueue(ctx, catalog.JobTypeEnrichSegmentsFromVision, catalog.JobPayload{AssetID: asset.ID})
}

// handleBuildSegments chunks the asset into fixed windows. Source
// bounds are written once here and never move afterwards; every later
// stage only fills enrichment fields.
func (h *Handlers) handleBuildSegments(ctx context.Context, job *catalog.Job) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	durationTicks := asset.DurationTicks
	if durationTicks <= 0 {
		info, err := h.ffmpeg.Probe(ctx, asset.Path)
		if err != nil {
			return fmt.Errorf("probe asset %d: %w", asset.ID, err)
		}
		durationTicks = info.DurationTicks
	}

	created := 0
	for cur := int64(0); cur < durationTicks; {
		end := cur + segmentDurationTicks
		if end > durationTicks {
			end = durationTicks
		}

		seg := &catalog.Segment{
			MediaAssetID: asset.ID,
			ProjectID:    asset.ProjectID,
			StartTicks:   cur,
			EndTicks:     end,
			SrcInTicks:   cur,
			SrcOutTicks:  end,
		}
		if err := h.repo.CreateSegment(ctx, seg); err != nil {
			return fmt.Errorf("create segment at %d: %w", cur, err)
		}

		created++
		cur = end
		h.repo.UpdateJobProgress(ctx, job.ID, float64(cur)/float64(durationTicks))
	}

	if err := h.repo.MarkAssetReady(ctx, asset.ID, catalog.ReadySegmentsBuilt); err != nil {
		return err
	}
	h.logger.Info("segments built", "asset_id", asset.ID, "segments", created)
	return nil
}

// handleEnrichFromTranscript copies transcript text onto every segment
// it overlaps in source time.
func (h *Handlers) handleEnrichFromTranscript(ctx context.Context, job *catalog.Job) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	raw, err := h.repo.GetAssetTranscript(ctx, asset.ID)
	if err != nil {
		return err
	}
	if raw == "" {
		return fmt.Errorf("transcript not found for asset %d", asset.ID)
	}
	doc, err := analysis.ParseTranscript(raw)
	if err != nil {
		return fmt.Errorf("parse transcript for asset %d: %w", asset.ID, err)
	}

	segments, err := h.repo.ListSegmentsByAsset(ctx, asset.ID)
	if err != nil {
		return err
	}

	for i, seg := range segments {
		var texts []string
		for _, ts := range doc.Segments {
			start := catalog.SecondsToTicks(ts.Start)
			end := catalog.SecondsToTicks(ts.End)
			if start < seg.SrcOutTicks && end > seg.SrcInTicks && ts.Text != "" {
				texts = append(texts, ts.Text)
			}
		}
		if len(texts) > 0 {
			if err := h.repo.UpdateSegmentTranscript(ctx, seg.ID, strings.Join(texts, " ")); err != nil {
				return err
			}
		}
		h.repo.UpdateJobProgress(ctx, job.ID, float64(i+1)/float64(len(segments)))
	}

	return h.enqueue(ctx, catalog.JobTypeComputeSegmentMetadata, catalog.JobPayload{AssetID: asset.ID})
}

// handleEnrichFromVision aggregates the vision windows overlapping each
// segment: mean quality scores, a deduplicated tag union, and face
// presence with the last seen bounding box.
func (h *Handlers) handleEnrichFromVision(ctx context.Context, job *catalog.Job) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	raw, err := h.repo.GetAssetVision(ctx, asset.ID)
	if err != nil {
		return err
	}
	if raw == "" {
		return fmt.Errorf("vision analysis not found for asset %d", asset.ID)
	}
	doc, err := analysis.ParseVision(raw)
	if err != nil {
		return fmt.Errorf("parse vision analysis for asset %d: %w", asset.ID, err)
	}

	segments, err := h.repo.ListSegmentsByAsset(ctx, asset.ID)
	if err != nil {
		return err
	}

	for i, seg := range segments {
		quality, scene := aggregateVision(doc.Segments, seg.SrcInTicks, seg.SrcOutTicks)
		if err := h.repo.UpdateSegmentVision(ctx, seg.ID, quality, scene); err != nil {
			return err
		}
		h.repo.UpdateJobProgress(ctx, job.ID, float64(i+1)/float64(len(segments)))
	}

	return h.enqueue(ctx, catalog.JobTypeComputeSegmentMetadata, catalog.JobPayload{AssetID: asset.ID})
}

func aggregateVision(windows []analysis.VisionWindow, segStart, segEnd int64) (*catalog.QualityInfo, *catalog.SceneInfo) {
	var blurSum, motionSum float64
	var blurN, motionN int
	var tags []string
	seen := map[string]bool{}
	scene := &catalog.SceneInfo{}

	for _, w := range windows {
		start := catalog.SecondsToTicks(w.Start)
		end := catalog.SecondsToTicks(w.End)
		if start >= segEnd || end <= segStart {
			continue
		}

		blurSum += w.BlurScore
		blurN++
		motionSum += w.MotionScore
		motionN++

		for _, tag := range w.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
		if w.HasFace {
			scene.HasFace = true
			if len(w.FaceBBox) > 0 {
				scene.FaceBBox = w.FaceBBox
			}
		}
	}

	quality := &catalog.QualityInfo{}
	if blurN > 0 {
		quality.BlurScore = blurSum / float64(blurN)
	}
	if motionN > 0 {
		quality.MotionScore = motionSum / float64(motionN)
	}
	scene.Tags = tags
	return quality, scene
}

// handleComputeMetadata derives the searchable fields for every segment
// of the asset, deterministically from whatever enrichment has landed.
// Running it again after later enrichment simply overwrites.
func (h *Handlers) handleComputeMetadata(ctx context.Context, job *catalog.Job) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	segments, err := h.repo.ListSegmentsByAsset(ctx, asset.ID)
	if err != nil {
		return err
	}

	for i, seg := range segments {
		summary := summarizeSegment(seg)
		keywords := segmentKeywords(seg.Transcript)
		subject := segmentSubject(seg.Scene)
		kind := classifySegment(seg)

		if err := h.repo.UpdateSegmentMetadata(ctx, seg.ID, summary, keywords, subject, kind); err != nil {
			return err
		}
		h.repo.UpdateJobProgress(ctx, job.ID, float64(i+1)/float64(len(segments)))
	}

	if err := h.repo.MarkAssetReady(ctx, asset.ID, catalog.ReadyMetadata); err != nil {
		return err
	}

	if h.index != nil {
		updated, err := h.repo.ListSegmentsByAsset(ctx, asset.ID)
		if err != nil {
			return err
		}
		if err := h.index.IndexSegments(updated); err != nil {
			return fmt.Errorf("index segments for asset %d: %w", asset.ID, err)
		}
	}

	return h.enqueue(ctx, catalog.JobTypeEmbedSegments, catalog.JobPayload{AssetID: asset.ID})
}

// summarizeSegment prefers the first transcript clause, then the scene
// tags, then a generic placeholder.
func summarizeSegment(seg *catalog.Segment) string {
	if seg.Transcript != "" {
		clause := seg.Transcript
		if i := strings.IndexByte(clause, '.'); i >= 0 {
			clause = clause[:i]
		}
		if len(clause) > summaryMaxLen {
			return clause[:summaryMaxLen] + "..."
		}
		return clause
	}
	if seg.Scene != nil && len(seg.Scene.Tags) > 0 {
		return strings.Join(seg.Scene.Tags, " ")
	}
	return "video segment"
}

func segmentKeywords(transcript string) []string {
	words := strings.Fields(transcript)
	if len(words) > 5 {
		words = words[:5]
	}
	return words
}

func segmentSubject(scene *catalog.SceneInfo) *catalog.SubjectInfo {
	subject := &catalog.SubjectInfo{}
	if scene != nil {
		subject.HasFace = scene.HasFace
		subject.FaceBBox = scene.FaceBBox
		subject.SubjectPresent = scene.HasFace
	}
	return subject
}

// classifySegment buckets a segment by what the footage contains.
// Speech without a visible face is left unclassified.
func classifySegment(seg *catalog.Segment) string {
	hasTranscript := seg.Transcript != ""
	hasFace := seg.Scene != nil && seg.Scene.HasFace
	motionHigh := seg.Quality != nil && seg.Quality.MotionScore > motionHighThreshold

	switch {
	case hasTranscript && hasFace:
		return "talking_head"
	case !hasTranscript && motionHigh:
		return "action"
	case !hasTranscript:
		return "broll"
	default:
		return ""
	}
}

// handleEmbedSegments computes the text, vision, and fusion vectors for
// every segment of the asset. Each kind is skipped when a row already
// exists, so a re-run after partial failure only fills the gaps.
func (h *Handlers) handleEmbedSegments(ctx context.Context, job *catalog.Job, handle *Handle) error {
	asset, err := h.targetAsset(ctx, job)
	if err != nil {
		return err
	}

	segments, err := h.repo.ListSegmentsByAsset(ctx, asset.ID)
	if err != nil {
		return err
	}

	for i, seg := range segments {
		if err := h.embedSegment(ctx, handle, asset.Path, seg); err != nil {
			return err
		}
		h.repo.UpdateJobProgress(ctx, job.ID, float64(i+1)/float64(len(segments)))
	}

	return h.repo.MarkAssetReady(ctx, asset.ID, catalog.ReadyEmbeddings)
}

// embedSegment checkpoints after every Analysis Service call so a
// cancelled job stops before writing, while the call itself is never
// interrupted.
func (h *Handlers) embedSegment(ctx context.Context, handle *Handle, mediaPath string, seg *catalog.Segment) error {
	hasText, err := h.repo.HasEmbedding(ctx, seg.ID, embedding.TypeText, embedding.TextModel)
	if err != nil {
		return err
	}
	if !hasText {
		text := embedding.CanonicalText(seg.Transcript, seg.SummaryText, seg.Keywords)
		vec, err := h.analysis.EmbedText(ctx, text)
		if err != nil {
			return fmt.Errorf("text embedding for segment %d: %w", seg.ID, err)
		}
		if err := handle.Checkpoint(); err != nil {
			return err
		}
		if err := h.repo.UpsertEmbedding(ctx, &catalog.Embedding{
			SegmentID:    seg.ID,
			Type:         embedding.TypeText,
			ModelName:    embedding.TextModel,
			ModelVersion: "1",
			Vector:       embedding.Normalize(vec),
			SemanticText: text,
		}); err != nil {
			return err
		}
	}

	hasVision, err := h.repo.HasEmbedding(ctx, seg.ID, embedding.TypeVision, embedding.VisionModel)
	if err != nil {
		return err
	}
	if !hasVision {
		vec, err := h.analysis.EmbedVision(ctx, mediaPath,
			catalog.TicksToSeconds(seg.SrcInTicks), catalog.TicksToSeconds(seg.SrcOutTicks))
		if err != nil {
			return fmt.Errorf("vision embedding for segment %d: %w", seg.ID, err)
		}
		if err := handle.Checkpoint(); err != nil {
			return err
		}
		if err := h.repo.UpsertEmbedding(ctx, &catalog.Embedding{
			SegmentID:    seg.ID,
			Type:         embedding.TypeVision,
			ModelName:    embedding.VisionModel,
			ModelVersion: "1",
			Vector:       embedding.Normalize(vec),
		}); err != nil {
			return err
		}
	}

	hasFusion, err := h.repo.HasEmbedding(ctx, seg.ID, embedding.TypeFusion, embedding.FusionModel)
	if err != nil {
		return err
	}
	if !hasFusion {
		text, err := h.repo.GetEmbedding(ctx, seg.ID, embedding.TypeText, embedding.TextModel)
		if err != nil {
			return err
		}
		vision, err := h.repo.GetEmbedding(ctx, seg.ID, embedding.TypeVision, embedding.VisionModel)
		if err != nil {
			return err
		}
		if text == nil || vision == nil {
			h.logger.Debug("fusion skipped, missing component embedding", "segment_id", seg.ID)
			return nil
		}

		fused := embedding.Fuse(text.Vector, vision.Vector, embedding.TextWeight, embedding.VisionWeight)
		if err := h.repo.UpsertEmbedding(ctx, &catalog.Embedding{
			SegmentID:    seg.ID,
			Type:         embedding.TypeFusion,
			ModelName:    embedding.FusionModel,
			ModelVersion: "1",
			Vector:       fused,
		}); err != nil {
			return err
		}
	}
	return nil
}
