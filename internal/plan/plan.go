// Package plan turns LLM-shaped edit plans into timeline clips.
// Application is all-or-nothing: every step is resolved against the
// catalog before the first clip is placed, and the stored timeline is
// swapped in one write, so readers never observe a half-applied plan.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/timeline"
)

var (
	ErrEmptyPlan       = errors.New("edit plan has no primary segments")
	ErrSegmentNotFound = errors.New("plan references a segment that does not exist")
	ErrAssetNotFound   = errors.New("plan references an asset that does not exist")
)

// How an apply treats a timeline that already has content.
const (
	ActionOverwrite  = "overwrite"
	ActionNewVersion = "new_version"

	confirmAction = "apply_plan"
)

// Step is one ordered entry of an EditPlan's primary_segments array.
// Trim offsets narrow the segment's immutable source range from each
// end; the target duration is a hint from the planner, not a command.
type Step struct {
	Operation         string
	SegmentID         int64
	TrimInTicks       int64
	TrimOutTicks      int64
	TargetDurationSec float64
}

// ParseSteps extracts the primary segment steps from an EditPlan blob.
// Unknown fields are ignored; the plan comes from a model and only the
// fields the applier acts on are validated.
func ParseSteps(editPlan []byte) ([]Step, error) {
	arr := gjson.GetBytes(editPlan, "primary_segments")
	if !arr.Exists() || !arr.IsArray() {
		return nil, ErrEmptyPlan
	}

	var steps []Step
	var parseErr error
	arr.ForEach(func(_, v gjson.Result) bool {
		id := v.Get("segment_id").Int()
		if id == 0 {
			parseErr = fmt.Errorf("plan step %d: missing segment_id", len(steps))
			return false
		}
		steps = append(steps, Step{
			Operation:         v.Get("operation").String(),
			SegmentID:         id,
			TrimInTicks:       v.Get("trim_in_offset_ticks").Int(),
			TrimOutTicks:      v.Get("trim_out_offset_ticks").Int(),
			TargetDurationSec: v.Get("target_duration_sec").Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(steps) == 0 {
		return nil, ErrEmptyPlan
	}
	return steps, nil
}

// clampRange resolves a step's final source window. Negative trims
// count as zero, and a trim pair that would cross leaves the segment
// untrimmed, so the result always satisfies srcIn <= in < out <= srcOut.
func clampRange(srcIn, srcOut, trimIn, trimOut int64) (in, out int64) {
	if trimIn < 0 {
		trimIn = 0
	}
	if trimOut < 0 {
		trimOut = 0
	}
	in = srcIn + trimIn
	out = srcOut - trimOut
	if in >= out {
		return srcIn, srcOut
	}
	return in, out
}

// Result reports what an Apply call did. When NeedsConfirm is set
// nothing was mutated and Token authorizes exactly one retry.
type Result struct {
	NeedsConfirm  bool
	Token         string
	Timeline      json.RawMessage
	ClipsAdded    int
	DurationTicks int64
}

// Applier realizes edit plans onto the project timeline.
type Applier struct {
	repo   catalog.Repository
	logger *slog.Logger
}

func NewApplier(repo catalog.Repository, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{repo: repo, logger: logger.With("component", "plan")}
}

// Apply places the plan's clips on the project timeline. A timeline
// that already has clips is destructive territory: without a valid
// confirm token the call issues a fresh one-time token and leaves the
// timeline untouched. The action chooses between replacing the primary
// track ("overwrite", the default) and appending after the current end
// ("new_version").
func (a *Applier) Apply(ctx context.Context, projectID int64, editPlan json.RawMessage, confirmToken, action string) (*Result, error) {
	steps, err := ParseSteps(editPlan)
	if err != nil {
		return nil, err
	}

	stored, err := a.repo.GetTimeline(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	var raw string
	if stored != nil {
		raw = stored.JSONBlob
	}
	tl := timeline.Parse(raw)

	if tl.HasClips() {
		confirmed := false
		if confirmToken != "" {
			confirmed, err = a.repo.ConsumeConfirmToken(ctx, confirmToken, projectID)
			if err != nil {
				return nil, fmt.Errorf("consume confirm token: %w", err)
			}
		}
		if !confirmed {
			token, err := a.issueToken(ctx, projectID)
			if err != nil {
				return nil, err
			}
			return &Result{NeedsConfirm: true, Token: token}, nil
		}
	}

	resolved, err := a.resolveSteps(ctx, steps)
	if err != nil {
		return nil, err
	}

	primary := tl.PrimaryTrack()
	var cursor int64
	if action == ActionNewVersion {
		cursor = tl.EndTicks()
	} else {
		primary.Clips = primary.Clips[:0]
	}
	start := cursor

	for _, rc := range resolved {
		primary.Clips = append(primary.Clips, timeline.Clip{
			AssetID:            rc.assetID,
			AssetPath:          rc.assetPath,
			SegmentID:          rc.segmentID,
			InTicks:            rc.in,
			OutTicks:           rc.out,
			TimelineStartTicks: cursor,
		})
		cursor += rc.out - rc.in
	}

	blob, err := tl.MergeInto(raw)
	if err != nil {
		return nil, fmt.Errorf("render timeline: %w", err)
	}
	if err := a.repo.UpsertTimeline(ctx, projectID, blob); err != nil {
		return nil, fmt.Errorf("store timeline: %w", err)
	}

	record := &catalog.ApplyRecord{ProjectID: projectID, EditPlanJSON: string(editPlan)}
	if err := a.repo.CreateApplyRecord(ctx, record); err != nil {
		a.logger.Warn("apply record failed", "project_id", projectID, "error", err)
	}

	return &Result{
		Timeline:      json.RawMessage(blob),
		ClipsAdded:    len(resolved),
		DurationTicks: cursor - start,
	}, nil
}

type resolvedClip struct {
	segmentID int64
	assetID   int64
	assetPath string
	in, out   int64
}

func (a *Applier) resolveSteps(ctx context.Context, steps []Step) ([]resolvedClip, error) {
	resolved := make([]resolvedClip, 0, len(steps))
	for i, step := range steps {
		seg, err := a.repo.GetSegment(ctx, step.SegmentID)
		if err != nil {
			return nil, fmt.Errorf("plan step %d: load segment %d: %w", i, step.SegmentID, err)
		}
		if seg == nil {
			return nil, fmt.Errorf("plan step %d: segment %d: %w", i, step.SegmentID, ErrSegmentNotFound)
		}
		asset, err := a.repo.GetMediaAsset(ctx, seg.MediaAssetID)
		if err != nil {
			return nil, fmt.Errorf("plan step %d: load asset %d: %w", i, seg.MediaAssetID, err)
		}
		if asset == nil {
			return nil, fmt.Errorf("plan step %d: asset %d: %w", i, seg.MediaAssetID, ErrAssetNotFound)
		}

		in, out := clampRange(seg.SrcInTicks, seg.SrcOutTicks, step.TrimInTicks, step.TrimOutTicks)
		resolved = append(resolved, resolvedClip{
			segmentID: seg.ID,
			assetID:   asset.ID,
			assetPath: asset.Path,
			in:        in,
			out:       out,
		})
	}
	return resolved, nil
}

func (a *Applier) issueToken(ctx context.Context, projectID int64) (string, error) {
	token := uuid.NewString()
	t := &catalog.ConfirmToken{Token: token, ProjectID: projectID, Action: confirmAction}
	if err := a.repo.CreateConfirmToken(ctx, t); err != nil {
		return "", fmt.Errorf("issue confirm token: %w", err)
	}
	a.logger.Info("destructive apply held for confirmation", "project_id", projectID)
	return token, nil
}
