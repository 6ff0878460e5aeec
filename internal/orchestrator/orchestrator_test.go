package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/db"
	"github.com/ldang04/vibecut/internal/embedding"
	"github.com/ldang04/vibecut/internal/llm"
	"github.com/ldang04/vibecut/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupRepo(t *testing.T) catalog.Repository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return catalog.NewRepository(database.Conn())
}

type fakeAnalysis struct {
	embedTextFn    func(ctx context.Context, text string) ([]float32, error)
	reasonFn       func(ctx context.Context, req analysis.ReasonRequest) (json.RawMessage, error)
	generatePlanFn func(ctx context.Context, req analysis.GeneratePlanRequest) (json.RawMessage, error)

	embedTextCalls atomic.Int32
	reasonCalls    atomic.Int32
	planCalls      atomic.Int32
}

func (f *fakeAnalysis) Transcribe(ctx context.Context, mediaPath string) (json.RawMessage, error) {
	return json.RawMessage(`{"segments":[]}`), nil
}

func (f *fakeAnalysis) AnalyzeVision(ctx context.Context, mediaPath string) (json.RawMessage, error) {
	return json.RawMessage(`{"segments":[]}`), nil
}

func (f *fakeAnalysis) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.embedTextCalls.Add(1)
	if f.embedTextFn != nil {
		return f.embedTextFn(ctx, text)
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeAnalysis) EmbedVision(ctx context.Context, mediaPath string, startSec, endSec float64) ([]float32, error) {
	return []float32{0, 1, 0, 0}, nil
}

func (f *fakeAnalysis) Reason(ctx context.Context, req analysis.ReasonRequest) (json.RawMessage, error) {
	f.reasonCalls.Add(1)
	if f.reasonFn != nil {
		return f.reasonFn(ctx, req)
	}
	return json.RawMessage(`{"narrative_structure":"hook_body_outro"}`), nil
}

func (f *fakeAnalysis) GeneratePlan(ctx context.Context, req analysis.GeneratePlanRequest) (json.RawMessage, error) {
	f.planCalls.Add(1)
	if f.generatePlanFn != nil {
		return f.generatePlanFn(ctx, req)
	}
	return json.RawMessage(`{"primary_segments":[]}`), nil
}

type fakeComposer struct {
	text string
	err  error
}

func (f *fakeComposer) ExplainProposal(ctx context.Context, req llm.ExplainRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func seedProject(t *testing.T, repo catalog.Repository) int64 {
	t.Helper()
	p := &catalog.Project{Name: "Test Project"}
	if err := repo.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p.ID
}

func seedAsset(t *testing.T, repo catalog.Repository, projectID int64, path string, isReference bool) *catalog.MediaAsset {
	t.Helper()
	a := &catalog.MediaAsset{
		ProjectID:     projectID,
		Path:          path,
		DurationTicks: 60 * catalog.TicksPerSecond,
		FPSNum:        30,
		FPSDen:        1,
		Width:         1920,
		Height:        1080,
		IsReference:   isReference,
	}
	if err := repo.UpsertMediaAsset(context.Background(), a); err != nil {
		t.Fatalf("upsert asset: %v", err)
	}
	return a
}

func seedSegment(t *testing.T, repo catalog.Repository, projectID, assetID, srcIn, srcOut int64, kind, summary string) *catalog.Segment {
	t.Helper()
	ctx := context.Background()
	s := &catalog.Segment{
		MediaAssetID: assetID,
		ProjectID:    projectID,
		StartTicks:   srcIn,
		EndTicks:     srcOut,
		SrcInTicks:   srcIn,
		SrcOutTicks:  srcOut,
	}
	if err := repo.CreateSegment(ctx, s); err != nil {
		t.Fatalf("create segment: %v", err)
	}
	if kind != "" || summary != "" {
		if err := repo.UpdateSegmentMetadata(ctx, s.ID, summary, nil, nil, kind); err != nil {
			t.Fatalf("update segment metadata: %v", err)
		}
		s.SegmentKind = kind
		s.SummaryText = summary
	}
	return s
}

func seedTextEmbedding(t *testing.T, repo catalog.Repository, segmentID int64, vec []float32) {
	t.Helper()
	e := &catalog.Embedding{
		SegmentID: segmentID,
		Type:      embedding.TypeText,
		ModelName: embedding.TextModel,
		Vector:    vec,
	}
	if err := repo.UpsertEmbedding(context.Background(), e); err != nil {
		t.Fatalf("upsert embedding: %v", err)
	}
}

func seedJob(t *testing.T, repo catalog.Repository, jobType, status string, assetID int64) {
	t.Helper()
	j := &catalog.Job{
		Type:    jobType,
		Status:  status,
		Payload: &catalog.JobPayload{AssetID: assetID},
	}
	if err := repo.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
}

func newTestOrchestrator(repo catalog.Repository, svc analysis.Service, composer llm.Composer) *Orchestrator {
	if composer == nil {
		composer = &fakeComposer{text: "A tight cut from your best takes."}
	}
	return New(repo, svc, composer, testLogger())
}

func TestSnapshot_CountsAndCoverage(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID := seedProject(t, repo)
	raw := seedAsset(t, repo, projectID, "/clips/a.mp4", false)
	seedAsset(t, repo, projectID, "/refs/style.mp4", true)

	otherProject := seedProject(t, repo)
	otherAsset := seedAsset(t, repo, otherProject, "/clips/other.mp4", false)

	tick := catalog.TicksPerSecond
	var segments []*catalog.Segment
	for i := int64(0); i < 10; i++ {
		segments = append(segments, seedSegment(t, repo, projectID, raw.ID, i*5*tick, (i+1)*5*tick, "", ""))
	}
	for i := 0; i < 8; i++ {
		seedTextEmbedding(t, repo, segments[i].ID, []float32{1, 0, 0, 0})
	}
	for i := 0; i < 5; i++ {
		e := &catalog.Embedding{
			SegmentID: segments[i].ID,
			Type:      embedding.TypeVision,
			ModelName: embedding.VisionModel,
			Vector:    []float32{0, 1, 0, 0},
		}
		if err := repo.UpsertEmbedding(ctx, e); err != nil {
			t.Fatalf("upsert vision embedding: %v", err)
		}
	}

	seedJob(t, repo, catalog.JobTypeTranscribeAsset, catalog.JobStatusPending, raw.ID)
	seedJob(t, repo, catalog.JobTypeEmbedSegments, catalog.JobStatusRunning, raw.ID)
	// Proxy transcodes are not analysis work and must not hold the
	// orchestrator busy.
	seedJob(t, repo, catalog.JobTypeGenerateProxy, catalog.JobStatusPending, raw.ID)
	seedJob(t, repo, catalog.JobTypeTranscribeAsset, catalog.JobStatusPending, otherAsset.ID)
	seedJob(t, repo, catalog.JobTypeComputeSegmentMetadata, catalog.JobStatusFailed, raw.ID)

	state, err := Snapshot(ctx, repo, projectID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.MediaAssets != 1 {
		t.Errorf("reference assets should not count, got %d", state.MediaAssets)
	}
	if state.Segments != 10 || state.TextEmbedded != 8 || state.VisionEmbedded != 5 {
		t.Errorf("unexpected counts: %+v", state)
	}
	if math.Abs(state.Coverage-0.8) > 1e-9 {
		t.Errorf("expected coverage 0.8, got %v", state.Coverage)
	}
	if state.JobsRunning != 2 {
		t.Errorf("expected 2 running analysis jobs, got %d", state.JobsRunning)
	}
	if state.JobsFailed != 1 {
		t.Errorf("expected 1 failed job, got %d", state.JobsFailed)
	}
}

func TestSnapshot_EmptyProject(t *testing.T) {
	repo := setupRepo(t)
	projectID := seedProject(t, repo)

	state, err := Snapshot(context.Background(), repo, projectID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.MediaAssets != 0 || state.Segments != 0 || state.Coverage != 0 {
		t.Errorf("expected zero state, got %+v", state)
	}
}

func TestPropose_EmptyLibraryShortCircuits(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID := seedProject(t, repo)
	svc := &fakeAnalysis{}

	o := newTestOrchestrator(repo, svc, nil)
	resp, err := o.Propose(ctx, projectID, ProposeRequest{UserIntent: "make me a highlight reel"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if resp.Mode != "talk" {
		t.Errorf("expected talk mode, got %q", resp.Mode)
	}
	if !strings.HasPrefix(resp.Message, "Hey! Your library is empty right now.") {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0] != "Import clips" {
		t.Errorf("unexpected suggestions: %v", resp.Suggestions)
	}
	if resp.Data != nil {
		t.Errorf("short-circuit should carry no data, got %v", resp.Data)
	}
	if got := svc.embedTextCalls.Load(); got != 0 {
		t.Errorf("no retrieval should run, embed calls = %d", got)
	}

	messages, err := repo.ListMessages(ctx, projectID, 10)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 || messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Fatalf("expected recorded user+assistant turn, got %d messages", len(messages))
	}
	if messages[0].Content != "make me a highlight reel" {
		t.Errorf("user message content = %q", messages[0].Content)
	}
}

func TestPropose_IncompleteCoverageReportsBusy(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID := seedProject(t, repo)
	asset := seedAsset(t, repo, projectID, "/clips/a.mp4", false)
	seedSegment(t, repo, projectID, asset.ID, 0, 240000, "", "")

	o := newTestOrchestrator(repo, &fakeAnalysis{}, nil)
	resp, err := o.Propose(ctx, projectID, ProposeRequest{UserIntent: "cut a vlog"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if resp.Mode != "busy" {
		t.Errorf("expected busy mode, got %q", resp.Mode)
	}
	if !strings.Contains(resp.Message, "still analyzing your footage") {
		t.Errorf("unexpected message: %q", resp.Message)
	}
}

func TestPropose_AmbiguousIntentAsksToClarify(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID := seedProject(t, repo)
	asset := seedAsset(t, repo, projectID, "/clips/a.mp4", false)
	seg := seedSegment(t, repo, projectID, asset.ID, 0, 240000, "talking_head", "Intro piece")
	seedTextEmbedding(t, repo, seg.ID, []float32{1, 0, 0, 0})

	o := newTestOrchestrator(repo, &fakeAnalysis{}, nil)
	resp, err := o.Propose(ctx, projectID, ProposeRequest{UserIntent: "just do your thing"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if resp.Mode != "talk" {
		t.Errorf("expected talk mode, got %q", resp.Mode)
	}
	if len(resp.Questions) != 2 {
		t.Errorf("clarify should ask two questions, got %v", resp.Questions)
	}
}

func setupReadyProject(t *testing.T, repo catalog.Repository) (projectID int64, segs []*catalog.Segment) {
	t.Helper()
	projectID = seedProject(t, repo)
	asset := seedAsset(t, repo, projectID, "/clips/a.mp4", false)

	seg1 := seedSegment(t, repo, projectID, asset.ID, 0, 240000, "talking_head", "Sunset on the beach")
	seg2 := seedSegment(t, repo, projectID, asset.ID, 240000, 480000, "broll", "Crowded market")
	seg3 := seedSegment(t, repo, projectID, asset.ID, 480000, 720000, "talking_head", "Morning hike")

	seedTextEmbedding(t, repo, seg1.ID, []float32{1, 0, 0, 0})
	seedTextEmbedding(t, repo, seg2.ID, []float32{0, 1, 0, 0})
	seedTextEmbedding(t, repo, seg3.ID, []float32{0.8, 0.6, 0, 0})
	return projectID, []*catalog.Segment{seg1, seg2, seg3}
}

func TestPropose_RanksFiltersAndStoresProposal(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, segs := setupReadyProject(t, repo)

	var captured analysis.ReasonRequest
	svc := &fakeAnalysis{
		reasonFn: func(ctx context.Context, req analysis.ReasonRequest) (json.RawMessage, error) {
			captured = req
			return json.RawMessage(`{"narrative_structure":"hook_body_outro","beats":[{"beat_id":"hook"}]}`), nil
		},
	}

	o := newTestOrchestrator(repo, svc, &fakeComposer{text: "A tight highlight reel."})
	resp, err := o.Propose(ctx, projectID, ProposeRequest{
		UserIntent: "find the best beach moments",
		Filters:    &RetrievalFilters{SegmentKind: "talking_head"},
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if resp.Mode != "act" {
		t.Fatalf("expected act mode, got %q", resp.Mode)
	}
	want := "I found 2 good moments based on speech and visual interest. I'll start with a short hook, then build the main section around these scenes."
	if resp.Message != want {
		t.Errorf("message = %q, want %q", resp.Message, want)
	}

	data, ok := resp.Data.(*ProposeData)
	if !ok {
		t.Fatalf("unexpected data type %T", resp.Data)
	}
	if len(data.CandidateSegments) != 2 {
		t.Fatalf("expected 2 candidates after kind filter, got %d", len(data.CandidateSegments))
	}
	first := data.CandidateSegments[0]
	if first.SegmentID != segs[0].ID || math.Abs(first.Similarity-1.0) > 1e-6 {
		t.Errorf("best candidate should be the exact match: %+v", first)
	}
	if math.Abs(first.DurationSec-5.0) > 1e-9 {
		t.Errorf("duration_sec = %v, want 5.0", first.DurationSec)
	}
	if data.CandidateSegments[1].SegmentID != segs[2].ID {
		t.Errorf("second candidate should be the partial match: %+v", data.CandidateSegments[1])
	}
	if data.NarrativeStructure != "hook_body_outro" {
		t.Errorf("narrative structure = %q", data.NarrativeStructure)
	}
	if data.Explanation != "A tight highlight reel." {
		t.Errorf("explanation = %q", data.Explanation)
	}

	if len(captured.Segments) != 2 || captured.Segments[0].SegmentID != segs[0].ID {
		t.Errorf("reasoner received wrong segments: %+v", captured.Segments)
	}

	prop, err := repo.GetLatestProposal(ctx, projectID)
	if err != nil {
		t.Fatalf("get latest proposal: %v", err)
	}
	if prop == nil {
		t.Fatal("proposal should be stored")
	}
	if gjson.Get(prop.ProposalJSON, "assistant_explanation").String() != "A tight highlight reel." {
		t.Errorf("stored proposal missing explanation: %s", prop.ProposalJSON)
	}
	if gjson.Get(prop.ProposalJSON, "narrative_structure").String() != "hook_body_outro" {
		t.Errorf("stored proposal lost reasoner fields: %s", prop.ProposalJSON)
	}
}

func TestPropose_NoMatchingCandidatesTalks(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, _ := setupReadyProject(t, repo)

	svc := &fakeAnalysis{}
	o := newTestOrchestrator(repo, svc, nil)
	resp, err := o.Propose(ctx, projectID, ProposeRequest{
		UserIntent: "find action shots",
		Filters:    &RetrievalFilters{SegmentKind: "action"},
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if resp.Mode != "talk" {
		t.Errorf("expected talk mode for empty retrieval, got %q", resp.Mode)
	}
	if !strings.HasPrefix(resp.Message, "I couldn't find moments that match that request yet.") {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.Data != nil {
		t.Errorf("no data expected, got %v", resp.Data)
	}
	if got := svc.reasonCalls.Load(); got != 0 {
		t.Errorf("reasoner should not run without candidates, calls = %d", got)
	}
}

func TestPropose_ComposerFailureFallsBackToTemplate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, _ := setupReadyProject(t, repo)

	o := newTestOrchestrator(repo, &fakeAnalysis{}, &fakeComposer{err: errors.New("provider down")})
	resp, err := o.Propose(ctx, projectID, ProposeRequest{UserIntent: "find the best beach moments"})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	data, ok := resp.Data.(*ProposeData)
	if !ok {
		t.Fatalf("unexpected data type %T", resp.Data)
	}
	if !strings.Contains(data.Explanation, "3 moments") {
		t.Errorf("template fallback should describe the candidates, got %q", data.Explanation)
	}
}

func TestPlan_WithoutBeatsTalksAnalyze(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, _ := setupReadyProject(t, repo)

	svc := &fakeAnalysis{}
	o := newTestOrchestrator(repo, svc, nil)
	resp, err := o.Plan(ctx, projectID, PlanRequest{NarrativeStructure: "hook_body_outro"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if resp.Mode != "talk" {
		t.Errorf("expected talk mode, got %q", resp.Mode)
	}
	if !strings.HasPrefix(resp.Message, "Nice — I see your clips.") {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := svc.planCalls.Load(); got != 0 {
		t.Errorf("plan generation should not run, calls = %d", got)
	}
}

func TestPlan_GeneratesEditPlan(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, segs := setupReadyProject(t, repo)

	planJSON := fmt.Sprintf(`{"primary_segments":[{"operation":"insert","segment_id":%d,"trim_in_offset_ticks":0,"trim_out_offset_ticks":0}]}`, segs[0].ID)
	var captured analysis.GeneratePlanRequest
	svc := &fakeAnalysis{
		generatePlanFn: func(ctx context.Context, req analysis.GeneratePlanRequest) (json.RawMessage, error) {
			captured = req
			return json.RawMessage(planJSON), nil
		},
	}

	o := newTestOrchestrator(repo, svc, nil)
	resp, err := o.Plan(ctx, projectID, PlanRequest{
		NarrativeStructure: "hook_body_outro",
		Beats: []Beat{
			{BeatID: "hook", SegmentIDs: []int64{segs[0].ID}, TargetSec: 5},
		},
		Constraints: EditConstraints{Vibe: "cozy", CaptionsOn: true},
	})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if resp.Mode != "act" {
		t.Errorf("expected act mode, got %q", resp.Mode)
	}
	if resp.Message != "I've generated an edit plan based on your segments. Ready to apply it to your timeline?" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if len(resp.Suggestions) != 1 || resp.Suggestions[0] != "Apply Plan" {
		t.Errorf("unexpected suggestions: %v", resp.Suggestions)
	}

	data, ok := resp.Data.(*PlanData)
	if !ok {
		t.Fatalf("unexpected data type %T", resp.Data)
	}
	if string(data.EditPlan) != planJSON {
		t.Errorf("edit plan should pass through unchanged: %s", data.EditPlan)
	}

	if captured.NarrativeStructure != "hook_body_outro" {
		t.Errorf("narrative structure not forwarded: %+v", captured)
	}
	if gjson.GetBytes(captured.Beats, "0.beat_id").String() != "hook" {
		t.Errorf("beats not forwarded: %s", captured.Beats)
	}
	if gjson.GetBytes(captured.Constraints, "vibe").String() != "cozy" {
		t.Errorf("constraints not forwarded: %s", captured.Constraints)
	}
}

func TestApply_ConfirmRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	projectID, segs := setupReadyProject(t, repo)

	// An existing cut makes the next apply destructive.
	tl := timeline.New()
	primary := tl.PrimaryTrack()
	primary.Clips = append(primary.Clips, timeline.Clip{AssetID: 1, InTicks: 0, OutTicks: 96000})
	blob, err := tl.Render()
	if err != nil {
		t.Fatalf("render timeline: %v", err)
	}
	if err := repo.UpsertTimeline(ctx, projectID, blob); err != nil {
		t.Fatalf("store timeline: %v", err)
	}

	editPlan := json.RawMessage(fmt.Sprintf(
		`{"primary_segments":[{"operation":"insert","segment_id":%d,"trim_in_offset_ticks":24000,"trim_out_offset_ticks":24000}]}`, segs[0].ID))

	o := newTestOrchestrator(repo, &fakeAnalysis{}, nil)
	held, err := o.Apply(ctx, projectID, ApplyRequest{EditPlan: editPlan})
	if err != nil {
		t.Fatalf("Apply without token: %v", err)
	}
	if held.Mode != "talk" {
		t.Errorf("expected talk mode, got %q", held.Mode)
	}
	if held.Message != "This will replace your current timeline. Do you want to overwrite it, or create a new version?" {
		t.Errorf("unexpected message: %q", held.Message)
	}
	heldData, ok := held.Data.(*ApplyData)
	if !ok || heldData.ConfirmToken == "" {
		t.Fatalf("expected confirm token in data, got %v", held.Data)
	}

	applied, err := o.Apply(ctx, projectID, ApplyRequest{
		EditPlan:     editPlan,
		ConfirmToken: heldData.ConfirmToken,
		Action:       "overwrite",
	})
	if err != nil {
		t.Fatalf("Apply with token: %v", err)
	}
	if applied.Mode != "act" {
		t.Errorf("expected act mode, got %q", applied.Mode)
	}
	if applied.Message != "Done! I've applied the edit to your timeline." {
		t.Errorf("unexpected message: %q", applied.Message)
	}
	appliedData, ok := applied.Data.(*ApplyData)
	if !ok || len(appliedData.Timeline) == 0 {
		t.Fatalf("expected timeline in data, got %v", applied.Data)
	}

	clips := gjson.GetBytes(appliedData.Timeline, "tracks.0.clips")
	if len(clips.Array()) != 1 {
		t.Errorf("overwrite should leave exactly the plan's clip: %s", clips.Raw)
	}
	if got := clips.Get("0.in_ticks").Int(); got != 24000 {
		t.Errorf("clip in_ticks = %d, want 24000", got)
	}
}
