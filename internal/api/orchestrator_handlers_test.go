package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/llm"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/timeline"
)

func withOrchestrator(cfg ServerConfig, repo catalog.Repository, fake *fakeAnalysis) ServerConfig {
	cfg.Analysis = fake
	cfg.Orchestrator = orchestrator.New(repo, fake, llm.TemplateComposer{}, testLogger())
	return cfg
}

// readyProject seeds a project that passes every readiness gate: one
// asset, transcribed segments, full text-embedding coverage, no jobs.
func readyProject(t *testing.T, repo catalog.Repository) (*catalog.Project, []*catalog.Segment) {
	t.Helper()
	p := seedProject(t, repo, "Ready")
	a := seedAsset(t, repo, p.ID, "/footage/day.mp4", false)
	s1 := seedSegment(t, repo, p.ID, a.ID, 0, 5*catalog.TicksPerSecond, "walking through the market")
	s2 := seedSegment(t, repo, p.ID, a.ID, 5*catalog.TicksPerSecond, 10*catalog.TicksPerSecond, "sunset from the rooftop")
	seedTextEmbedding(t, repo, s1.ID, []float32{1, 0, 0})
	seedTextEmbedding(t, repo, s2.ID, []float32{1, 1, 0})
	return p, []*catalog.Segment{s1, s2}
}

func decodeTimeline(t *testing.T, resp *http.Response) *timeline.Timeline {
	t.Helper()
	defer resp.Body.Close()
	var out TimelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return timeline.Parse(string(out.Timeline))
}

func TestGetTimelineDefault(t *testing.T) {
	cfg, repo := testConfig(t)
	srv := startServer(t, cfg)

	seedProject(t, repo, "Fresh")

	resp := doJSON(t, http.MethodGet, srv.URL+"/projects/1/timeline", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	tl := decodeTimeline(t, resp)
	if tl.Settings.TicksPerSecond != catalog.TicksPerSecond {
		t.Errorf("ticks_per_second = %d, want %d", tl.Settings.TicksPerSecond, catalog.TicksPerSecond)
	}
	if tl.Settings.FPS != 30 {
		t.Errorf("fps = %v, want 30", tl.Settings.FPS)
	}
	if tl.HasClips() {
		t.Error("fresh project timeline should have no clips")
	}
}

func TestApplyTimelineOperations(t *testing.T) {
	cfg, repo := testConfig(t)
	srv := startServer(t, cfg)
	ctx := context.Background()

	p := seedProject(t, repo, "Editing")
	a := seedAsset(t, repo, p.ID, "/footage/day.mp4", false)
	seedTimeline(t, repo, p.ID,
		timeline.Clip{AssetID: a.ID, InTicks: 0, OutTicks: 5 * catalog.TicksPerSecond},
		timeline.Clip{AssetID: a.ID, InTicks: 5 * catalog.TicksPerSecond, OutTicks: 10 * catalog.TicksPerSecond,
			TimelineStartTicks: 5 * catalog.TicksPerSecond},
	)

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/timeline/apply",
		map[string]any{"operations": []map[string]any{{"op": "ripple_delete", "clip_id": 0}}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	tl := decodeTimeline(t, resp)
	clips := tl.PrimaryTrack().Clips
	if len(clips) != 1 {
		t.Fatalf("got %d clips after delete, want 1", len(clips))
	}
	if clips[0].TimelineStartTicks != 0 || clips[0].InTicks != 5*catalog.TicksPerSecond {
		t.Errorf("survivor = %+v, want the second clip re-packed to 0", clips[0])
	}

	stored, err := repo.GetTimeline(ctx, p.ID)
	if err != nil || stored == nil {
		t.Fatalf("timeline not stored: %v", err)
	}
	if got := timeline.Parse(stored.JSONBlob).PrimaryTrack().Clips; len(got) != 1 {
		t.Errorf("stored timeline has %d clips, want 1", len(got))
	}

	t.Run("invalid operation", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/timeline/apply",
			map[string]any{"operations": []map[string]any{{"op": "reverse_clip", "clip_id": 0}}})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("empty operations", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/timeline/apply",
			map[string]any{"operations": []map[string]any{}})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("failed operation leaves timeline alone", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/timeline/apply",
			map[string]any{"operations": []map[string]any{{"op": "ripple_delete", "clip_id": 7}}})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
		stored, err := repo.GetTimeline(ctx, p.ID)
		if err != nil || stored == nil {
			t.Fatalf("timeline missing: %v", err)
		}
		if got := timeline.Parse(stored.JSONBlob).PrimaryTrack().Clips; len(got) != 1 {
			t.Errorf("stored timeline changed to %d clips", len(got))
		}
	})
}

func TestConsolidateTimeline(t *testing.T) {
	cfg, repo := testConfig(t)
	srv := startServer(t, cfg)

	p := seedProject(t, repo, "Gappy")
	a := seedAsset(t, repo, p.ID, "/footage/day.mp4", false)
	seedTimeline(t, repo, p.ID,
		timeline.Clip{AssetID: a.ID, InTicks: 0, OutTicks: 5 * catalog.TicksPerSecond,
			TimelineStartTicks: 2 * catalog.TicksPerSecond},
		timeline.Clip{AssetID: a.ID, InTicks: 5 * catalog.TicksPerSecond, OutTicks: 10 * catalog.TicksPerSecond,
			TimelineStartTicks: 20 * catalog.TicksPerSecond},
	)

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/timeline/consolidate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	clips := decodeTimeline(t, resp).PrimaryTrack().Clips
	if len(clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(clips))
	}
	if clips[0].TimelineStartTicks != 0 {
		t.Errorf("first clip at %d, want 0", clips[0].TimelineStartTicks)
	}
	if clips[1].TimelineStartTicks != 5*catalog.TicksPerSecond {
		t.Errorf("second clip at %d, want %d", clips[1].TimelineStartTicks, 5*catalog.TicksPerSecond)
	}
}

func TestProposeGuidesEmptyProject(t *testing.T) {
	cfg, repo := testConfig(t)
	cfg = withOrchestrator(cfg, repo, &fakeAnalysis{})
	srv := startServer(t, cfg)

	seedProject(t, repo, "Empty")

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/propose",
		map[string]any{"user_intent": "make a highlight reel"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeResp(t, resp)
	if body["mode"] != "talk" {
		t.Errorf("mode = %v, want talk", body["mode"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Import") {
		t.Errorf("message = %q, want import guidance", msg)
	}

	t.Run("blank intent", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/propose",
			map[string]any{"user_intent": "   "})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})
}

func TestProposeReturnsCandidates(t *testing.T) {
	cfg, repo := testConfig(t)
	fake := &fakeAnalysis{}
	cfg = withOrchestrator(cfg, repo, fake)
	srv := startServer(t, cfg)

	_, segs := readyProject(t, repo)

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/propose",
		map[string]any{"user_intent": "find the best market moments"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeResp(t, resp)
	if body["mode"] != "act" {
		t.Fatalf("mode = %v, want act (body: %v)", body["mode"], body)
	}

	data := body["data"].(map[string]interface{})
	if data["narrative_structure"] != "hook_body_outro" {
		t.Errorf("narrative_structure = %v", data["narrative_structure"])
	}
	if expl, _ := data["explanation"].(string); expl == "" {
		t.Error("explanation missing")
	}
	candidates := data["candidate_segments"].([]interface{})
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	first := candidates[0].(map[string]interface{})
	if first["segment_id"] != float64(segs[0].ID) {
		t.Errorf("top candidate = %v, want segment %d", first["segment_id"], segs[0].ID)
	}
	if first["duration_sec"] != float64(5) {
		t.Errorf("duration_sec = %v, want 5", first["duration_sec"])
	}
}

func TestProposeAnalysisDown(t *testing.T) {
	cfg, repo := testConfig(t)
	fake := &fakeAnalysis{
		embedTextFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, &analysis.ServiceError{StatusCode: http.StatusBadGateway, Body: "model not loaded"}
		},
	}
	cfg = withOrchestrator(cfg, repo, fake)
	srv := startServer(t, cfg)

	readyProject(t, repo)

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/propose",
		map[string]any{"user_intent": "find the best market moments"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusBadGateway)
	}
	body := decodeResp(t, resp)
	if body["code"] != "ANALYSIS_ERROR" {
		t.Errorf("code = %v, want ANALYSIS_ERROR", body["code"])
	}
}

func TestPlanEndpoint(t *testing.T) {
	cfg, repo := testConfig(t)
	fake := &fakeAnalysis{
		generatePlanFn: func(ctx context.Context, req analysis.GeneratePlanRequest) (json.RawMessage, error) {
			return json.RawMessage(`{"primary_segments":[{"segment_id":1}]}`), nil
		},
	}
	cfg = withOrchestrator(cfg, repo, fake)
	srv := startServer(t, cfg)

	readyProject(t, repo)

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/plan", map[string]any{
		"narrative_structure": "hook_body_outro",
		"beats":               []map[string]any{{"beat_id": "hook", "segment_ids": []int64{1}, "target_sec": 5}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeResp(t, resp)
	if body["mode"] != "act" {
		t.Fatalf("mode = %v, want act", body["mode"])
	}
	data := body["data"].(map[string]interface{})
	planBlob := data["edit_plan"].(map[string]interface{})
	if steps := planBlob["primary_segments"].([]interface{}); len(steps) != 1 {
		t.Errorf("edit_plan primary_segments = %v", planBlob["primary_segments"])
	}

	t.Run("no beats", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/plan",
			map[string]any{"narrative_structure": "hook_body_outro"})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var out orchestrator.Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if out.Mode != "talk" {
			t.Errorf("mode = %q, want talk guidance when no beats are chosen", out.Mode)
		}
	})
}

func TestApplyPlanEndpoint(t *testing.T) {
	cfg, repo := testConfig(t)
	cfg = withOrchestrator(cfg, repo, &fakeAnalysis{})
	srv := startServer(t, cfg)
	ctx := context.Background()

	p, segs := readyProject(t, repo)
	editPlan := map[string]any{
		"primary_segments": []map[string]any{{"segment_id": segs[0].ID}},
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply",
		map[string]any{"edit_plan": editPlan})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeResp(t, resp)
	if body["mode"] != "act" {
		t.Fatalf("mode = %v, want act", body["mode"])
	}
	stored, err := repo.GetTimeline(ctx, p.ID)
	if err != nil || stored == nil {
		t.Fatalf("timeline not stored: %v", err)
	}
	if !timeline.Parse(stored.JSONBlob).HasClips() {
		t.Error("applied plan produced no clips")
	}

	// The timeline now has clips, so a bare re-apply must ask first.
	resp = doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply",
		map[string]any{"edit_plan": editPlan})
	body = decodeResp(t, resp)
	if body["mode"] != "talk" {
		t.Fatalf("mode = %v, want talk confirmation", body["mode"])
	}
	token := body["data"].(map[string]interface{})["confirm_token"].(string)
	if token == "" {
		t.Fatal("confirm_token missing")
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply",
		map[string]any{"edit_plan": editPlan, "confirm_token": token, "action": "new_version"})
	body = decodeResp(t, resp)
	if body["mode"] != "act" {
		t.Fatalf("confirmed apply: mode = %v, want act", body["mode"])
	}
	stored, _ = repo.GetTimeline(ctx, p.ID)
	clips := timeline.Parse(stored.JSONBlob).PrimaryTrack().Clips
	if len(clips) != 2 {
		t.Errorf("got %d clips after new_version apply, want 2", len(clips))
	}

	t.Run("missing plan", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply", map[string]any{})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("empty plan", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply",
			map[string]any{"edit_plan": map[string]any{"primary_segments": []any{}}})
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("unknown segment", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/projects/1/orchestrator/apply",
			map[string]any{"edit_plan": map[string]any{
				"primary_segments": []map[string]any{{"segment_id": 999}},
			}})
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("status code = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
		}
		body := decodeResp(t, resp)
		if body["code"] != "UNRESOLVABLE_PLAN" {
			t.Errorf("code = %v, want UNRESOLVABLE_PLAN", body["code"])
		}
	})
}
