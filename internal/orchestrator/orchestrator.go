package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/llm"
	"github.com/ldang04/vibecut/internal/plan"
	"github.com/ldang04/vibecut/internal/search"
)

const (
	// searchCandidateLimit is how many segments similarity search
	// returns before filters; reasonSegmentLimit is how many of those
	// go to the narrative reasoner.
	searchCandidateLimit = 50
	reasonSegmentLimit   = 20

	roleUser      = "user"
	roleAssistant = "assistant"
)

type Orchestrator struct {
	repo     catalog.Repository
	analysis analysis.Service
	semantic *search.Semantic
	applier  *plan.Applier
	composer llm.Composer
	logger   *slog.Logger
}

func New(repo catalog.Repository, svc analysis.Service, composer llm.Composer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:     repo,
		analysis: svc,
		semantic: search.NewSemantic(repo),
		applier:  plan.NewApplier(repo, logger),
		composer: composer,
		logger:   logger.With("component", "orchestrator"),
	}
}

type ProposeRequest struct {
	UserIntent string            `json:"user_intent"`
	Filters    *RetrievalFilters `json:"filters,omitempty"`
	Context    json.RawMessage   `json:"context,omitempty"`
}

// RetrievalFilters narrow the candidate pool after similarity search.
type RetrievalFilters struct {
	SegmentKind string `json:"segment_kind,omitempty"`
}

// Candidate is one retrieved segment offered to the user.
type Candidate struct {
	SegmentID   int64   `json:"segment_id"`
	SummaryText string  `json:"summary_text,omitempty"`
	CaptureTime string  `json:"capture_time,omitempty"`
	DurationSec float64 `json:"duration_sec"`
	Similarity  float64 `json:"similarity_score"`
}

type ProposeData struct {
	CandidateSegments  []Candidate `json:"candidate_segments"`
	NarrativeStructure string      `json:"narrative_structure,omitempty"`
	Explanation        string      `json:"explanation,omitempty"`
}

// Propose runs retrieval plus narrative reasoning for a user intent.
// Any mode other than Act short-circuits with guidance; a successful
// Act stores the proposal and answers with ranked candidates.
func (o *Orchestrator) Propose(ctx context.Context, projectID int64, req ProposeRequest) (*Response, error) {
	state, err := Snapshot(ctx, o.repo, projectID)
	if err != nil {
		return nil, fmt.Errorf("project snapshot: %w", err)
	}

	mode := Decide(req.UserIntent, state, false, false)
	o.logger.Debug("propose mode decided", "project_id", projectID, "mode", mode.String(),
		"assets", state.MediaAssets, "segments", state.Segments, "coverage", state.Coverage)

	if mode != ModeAct {
		resp := buildResponse(mode, state, 0, nil)
		o.record(ctx, projectID, roleUser, req.UserIntent)
		o.record(ctx, projectID, roleAssistant, resp.Message)
		return resp, nil
	}

	queryVec, err := o.analysis.EmbedText(ctx, req.UserIntent)
	if err != nil {
		return nil, fmt.Errorf("embed intent: %w", err)
	}

	matches, model, err := o.semantic.SearchFusionFirst(ctx, projectID, queryVec, catalog.RawOnly, searchCandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	o.logger.Debug("retrieval complete", "project_id", projectID, "model", model, "matches", len(matches))

	candidates, err := o.collectCandidates(ctx, matches, req.Filters)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		// Act copy for the empty result, but surfaced as talk: there
		// is nothing actionable to hand back.
		resp := buildResponse(ModeAct, state, 0, nil)
		resp.Mode = "talk"
		o.record(ctx, projectID, roleUser, req.UserIntent)
		o.record(ctx, projectID, roleAssistant, resp.Message)
		return resp, nil
	}

	top := candidates
	if len(top) > reasonSegmentLimit {
		top = top[:reasonSegmentLimit]
	}
	summaries := make([]analysis.SegmentSummary, len(top))
	for i, c := range top {
		summaries[i] = analysis.SegmentSummary{
			SegmentID:   c.SegmentID,
			SummaryText: c.SummaryText,
			CaptureTime: c.CaptureTime,
			DurationSec: c.DurationSec,
		}
	}

	styleProfile, err := o.loadStyleProfile(ctx, projectID)
	if err != nil {
		return nil, err
	}

	proposal, err := o.analysis.Reason(ctx, analysis.ReasonRequest{
		Segments:        summaries,
		StyleProfile:    styleProfile,
		TimelineContext: req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("narrative reasoning: %w", err)
	}
	narrative := gjson.GetBytes(proposal, "narrative_structure").String()

	explanation := o.explain(ctx, req.UserIntent, narrative, candidates)
	o.storeProposal(ctx, projectID, proposal, explanation)

	resp := buildResponse(ModeAct, state, len(candidates), &ProposeData{
		CandidateSegments:  candidates,
		NarrativeStructure: narrative,
		Explanation:        explanation,
	})
	o.record(ctx, projectID, roleUser, req.UserIntent)
	o.record(ctx, projectID, roleAssistant, resp.Message)
	return resp, nil
}

func (o *Orchestrator) collectCandidates(ctx context.Context, matches []search.Match, filters *RetrievalFilters) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		seg, err := o.repo.GetSegment(ctx, m.SegmentID)
		if err != nil {
			return nil, fmt.Errorf("load segment %d: %w", m.SegmentID, err)
		}
		if seg == nil {
			continue
		}
		if filters != nil && filters.SegmentKind != "" && seg.SegmentKind != filters.SegmentKind {
			continue
		}
		candidates = append(candidates, Candidate{
			SegmentID:   seg.ID,
			SummaryText: seg.SummaryText,
			CaptureTime: seg.CaptureTime,
			DurationSec: catalog.TicksToSeconds(seg.SrcOutTicks - seg.SrcInTicks),
			Similarity:  m.Score,
		})
	}
	return candidates, nil
}

func (o *Orchestrator) loadStyleProfile(ctx context.Context, projectID int64) (json.RawMessage, error) {
	project, err := o.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil || project.StyleProfileID == 0 {
		return nil, nil
	}
	sp, err := o.repo.GetStyleProfile(ctx, project.StyleProfileID)
	if err != nil {
		return nil, fmt.Errorf("load style profile: %w", err)
	}
	if sp == nil || sp.JSONBlob == "" {
		return nil, nil
	}
	return json.RawMessage(sp.JSONBlob), nil
}

// explain composes the free-form proposal explanation. Provider
// failures degrade to the deterministic template; this never blocks a
// proposal.
func (o *Orchestrator) explain(ctx context.Context, intent, narrative string, candidates []Candidate) string {
	req := llm.ExplainRequest{
		UserIntent:         intent,
		NarrativeStructure: narrative,
		CandidateCount:     len(candidates),
	}
	for _, c := range candidates {
		req.TotalDurationSec += c.DurationSec
		if c.SummaryText != "" && len(req.Summaries) < 5 {
			req.Summaries = append(req.Summaries, c.SummaryText)
		}
	}

	text, err := o.composer.ExplainProposal(ctx, req)
	if err != nil {
		o.logger.Warn("explanation provider failed, using template", "error", err)
		text, _ = (&llm.TemplateComposer{}).ExplainProposal(ctx, req)
	}
	return text
}

// storeProposal appends the proposal to the project's history with
// the explanation folded into the blob. History writes never fail the
// request.
func (o *Orchestrator) storeProposal(ctx context.Context, projectID int64, proposal json.RawMessage, explanation string) {
	stored := []byte(proposal)
	if explanation != "" {
		if b, err := sjson.SetBytes(stored, "assistant_explanation", explanation); err == nil {
			stored = b
		}
	}
	p := &catalog.Proposal{ProjectID: projectID, ProposalJSON: string(stored)}
	if err := o.repo.CreateProposal(ctx, p); err != nil {
		o.logger.Warn("proposal store failed", "project_id", projectID, "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, projectID int64, role, content string) {
	if content == "" {
		return
	}
	m := &catalog.ConversationMessage{ProjectID: projectID, Role: role, Content: content}
	if err := o.repo.CreateMessage(ctx, m); err != nil {
		o.logger.Warn("conversation record failed", "project_id", projectID, "role", role, "error", err)
	}
}
