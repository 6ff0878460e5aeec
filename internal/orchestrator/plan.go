package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ldang04/vibecut/internal/analysis"
)

type Beat struct {
	BeatID     string  `json:"beat_id"`
	SegmentIDs []int64 `json:"segment_ids"`
	TargetSec  float64 `json:"target_sec,omitempty"`
}

type EditConstraints struct {
	TargetLength int64  `json:"target_length,omitempty"`
	Vibe         string `json:"vibe,omitempty"`
	CaptionsOn   bool   `json:"captions_on"`
	MusicOn      bool   `json:"music_on"`
}

type PlanRequest struct {
	NarrativeStructure string          `json:"narrative_structure"`
	Beats              []Beat          `json:"beats"`
	Constraints        EditConstraints `json:"constraints"`
	StyleProfileID     int64           `json:"style_profile_id,omitempty"`
}

type PlanData struct {
	EditPlan json.RawMessage `json:"edit_plan"`
}

// Plan asks the Analysis Service for an EditPlan over the chosen
// beats. A project without segments, or a request without beats, gets
// the analyze guidance instead of a plan.
func (o *Orchestrator) Plan(ctx context.Context, projectID int64, req PlanRequest) (*Response, error) {
	state, err := Snapshot(ctx, o.repo, projectID)
	if err != nil {
		return nil, fmt.Errorf("project snapshot: %w", err)
	}

	if state.Segments == 0 || len(req.Beats) == 0 {
		resp := buildResponse(ModeTalkAnalyze, state, 0, nil)
		o.record(ctx, projectID, roleAssistant, resp.Message)
		return resp, nil
	}

	beats, err := json.Marshal(req.Beats)
	if err != nil {
		return nil, fmt.Errorf("encode beats: %w", err)
	}
	constraints, err := json.Marshal(req.Constraints)
	if err != nil {
		return nil, fmt.Errorf("encode constraints: %w", err)
	}

	editPlan, err := o.analysis.GeneratePlan(ctx, analysis.GeneratePlanRequest{
		NarrativeStructure: req.NarrativeStructure,
		Beats:              beats,
		Constraints:        constraints,
		StyleProfileID:     req.StyleProfileID,
	})
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}

	resp := &Response{
		Mode:        ModeAct.Surface(),
		Message:     "I've generated an edit plan based on your segments. Ready to apply it to your timeline?",
		Suggestions: []string{"Apply Plan"},
		Questions:   []string{},
		Data:        &PlanData{EditPlan: editPlan},
	}
	o.record(ctx, projectID, roleAssistant, resp.Message)
	return resp, nil
}
