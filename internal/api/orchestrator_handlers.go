package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ldang04/vibecut/internal/analysis"
	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/plan"
	"github.com/ldang04/vibecut/internal/timeline"
)

// writeOrchestratorError keeps model and store failures out of the
// conversational surface: callers get a structured code, the detail
// goes to the log.
func writeOrchestratorError(cfg ServerConfig, w http.ResponseWriter, projectID int64, op string, err error) {
	var se *analysis.ServiceError
	switch {
	case errors.As(err, &se):
		cfg.Logger.Error(op+" failed", "project_id", projectID, "status", se.StatusCode, "error", err)
		WriteError(w, http.StatusBadGateway, "analysis service error", "ANALYSIS_ERROR")
	case errors.Is(err, plan.ErrEmptyPlan):
		WriteError(w, http.StatusBadRequest, "edit plan has no primary segments", "BAD_REQUEST")
	case errors.Is(err, plan.ErrSegmentNotFound), errors.Is(err, plan.ErrAssetNotFound):
		WriteError(w, http.StatusUnprocessableEntity, "plan references media that no longer exists", "UNRESOLVABLE_PLAN")
	default:
		cfg.Logger.Error(op+" failed", "project_id", projectID, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

func proposeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req orchestrator.ProposeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.UserIntent) == "" {
			WriteError(w, http.StatusBadRequest, "user_intent is required", "BAD_REQUEST")
			return
		}

		resp, err := cfg.Orchestrator.Propose(r.Context(), project.ID, req)
		if err != nil {
			writeOrchestratorError(cfg, w, project.ID, "propose", err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func planHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req orchestrator.PlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		resp, err := cfg.Orchestrator.Plan(r.Context(), project.ID, req)
		if err != nil {
			writeOrchestratorError(cfg, w, project.ID, "plan", err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func applyPlanHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req orchestrator.ApplyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.EditPlan) == 0 {
			WriteError(w, http.StatusBadRequest, "edit_plan is required", "BAD_REQUEST")
			return
		}

		resp, err := cfg.Orchestrator.Apply(r.Context(), project.ID, req)
		if err != nil {
			writeOrchestratorError(cfg, w, project.ID, "apply", err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// loadTimelineBlob fetches the project's stored timeline JSON, or the
// empty default when nothing has been stored yet.
func loadTimelineBlob(cfg ServerConfig, r *http.Request, projectID int64) (string, error) {
	stored, err := cfg.Repository.GetTimeline(r.Context(), projectID)
	if err != nil {
		return "", err
	}
	if stored != nil && stored.JSONBlob != "" {
		return stored.JSONBlob, nil
	}
	return timeline.New().MergeInto("")
}

func getTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		blob, err := loadTimelineBlob(cfg, r, project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load timeline", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, TimelineResponse{Timeline: json.RawMessage(blob)})
	}
}

func applyOperationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req ApplyOperationsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.Operations) == 0 {
			WriteError(w, http.StatusBadRequest, "operations must not be empty", "BAD_REQUEST")
			return
		}

		stored, err := cfg.Repository.GetTimeline(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load timeline", "INTERNAL_ERROR")
			return
		}
		var raw string
		if stored != nil {
			raw = stored.JSONBlob
		}

		tl := timeline.Parse(raw)
		if err := tl.ApplyAll(req.Operations); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		blob, err := tl.MergeInto(raw)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to render timeline", "INTERNAL_ERROR")
			return
		}
		if err := cfg.Repository.UpsertTimeline(r.Context(), project.ID, blob); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to store timeline", "INTERNAL_ERROR")
			return
		}

		diff, _ := json.Marshal(req.Operations)
		if err := cfg.Repository.CreateEditLog(r.Context(), &catalog.EditLog{
			ProjectID: project.ID,
			DiffJSON:  string(diff),
		}); err != nil {
			cfg.Logger.Warn("edit log write failed", "project_id", project.ID, "error", err)
		}

		WriteJSON(w, http.StatusOK, TimelineResponse{Timeline: json.RawMessage(blob)})
	}
}

func consolidateTimelineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		stored, err := cfg.Repository.GetTimeline(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load timeline", "INTERNAL_ERROR")
			return
		}
		var raw string
		if stored != nil {
			raw = stored.JSONBlob
		}

		tl := timeline.Parse(raw)
		tl.Consolidate()

		blob, err := tl.MergeInto(raw)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to render timeline", "INTERNAL_ERROR")
			return
		}
		if err := cfg.Repository.UpsertTimeline(r.Context(), project.ID, blob); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to store timeline", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, TimelineResponse{Timeline: json.RawMessage(blob)})
	}
}
