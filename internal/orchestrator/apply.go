package orchestrator

import (
	"context"
	"encoding/json"
)

type ApplyRequest struct {
	EditPlan     json.RawMessage `json:"edit_plan"`
	ConfirmToken string          `json:"confirm_token,omitempty"`
	Action       string          `json:"action,omitempty"`
}

type ApplyData struct {
	Timeline     json.RawMessage `json:"timeline,omitempty"`
	ConfirmToken string          `json:"confirm_token,omitempty"`
}

// Apply realizes an EditPlan onto the project timeline. When the
// timeline already has clips and the request carries no valid confirm
// token, nothing is mutated: the reply is the confirmation prompt with
// a fresh one-time token for the retry.
func (o *Orchestrator) Apply(ctx context.Context, projectID int64, req ApplyRequest) (*Response, error) {
	result, err := o.applier.Apply(ctx, projectID, req.EditPlan, req.ConfirmToken, req.Action)
	if err != nil {
		return nil, err
	}

	if result.NeedsConfirm {
		resp := buildResponse(ModeTalkConfirm, nil, 0, &ApplyData{ConfirmToken: result.Token})
		o.record(ctx, projectID, roleAssistant, resp.Message)
		return resp, nil
	}

	o.logger.Info("edit plan applied", "project_id", projectID,
		"clips_added", result.ClipsAdded, "duration_ticks", result.DurationTicks)

	resp := &Response{
		Mode:        ModeAct.Surface(),
		Message:     "Done! I've applied the edit to your timeline.",
		Suggestions: []string{},
		Questions:   []string{},
		Data:        &ApplyData{Timeline: result.Timeline},
	}
	o.record(ctx, projectID, roleAssistant, resp.Message)
	return resp, nil
}
