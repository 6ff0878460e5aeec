package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/planner"
	"github.com/ldang04/vibecut/internal/profile"
)

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if strings.TrimSpace(req.Name) == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}

		project := &catalog.Project{Name: req.Name, CacheDir: req.CacheDir}
		if err := cfg.Repository.CreateProject(r.Context(), project); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to create project", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, CreateProjectResponse{ID: project.ID})
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.Repository.ListProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		resp := ProjectToResponse(project)
		state, err := orchestrator.Snapshot(r.Context(), cfg.Repository, project.ID)
		if err != nil {
			cfg.Logger.Warn("project state snapshot failed", "project_id", project.ID, "error", err)
		} else {
			resp.State = state
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		if err := cfg.Repository.DeleteProject(r.Context(), project.ID); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to delete project", "INTERNAL_ERROR")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// importHandler enqueues import jobs for raw footage or reference
// footage; the flag rides along in the job payload. A folder import is
// one job, explicit file paths become one job each.
func importHandler(cfg ServerConfig, isReference bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req ImportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.FolderPath == "" && len(req.FilePaths) == 0 {
			WriteError(w, http.StatusBadRequest, "folder_path or file_paths is required", "BAD_REQUEST")
			return
		}

		var jobIDs []int64
		enqueue := func(payload catalog.JobPayload) bool {
			job := &catalog.Job{Type: catalog.JobTypeImportRaw, Payload: &payload}
			if err := cfg.Repository.CreateJob(r.Context(), job); err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to enqueue import", "INTERNAL_ERROR")
				return false
			}
			jobIDs = append(jobIDs, job.ID)
			return true
		}

		if len(req.FilePaths) > 0 {
			for _, path := range req.FilePaths {
				if !enqueue(catalog.JobPayload{
					ProjectID:   project.ID,
					MediaPath:   path,
					IsReference: isReference,
				}) {
					return
				}
			}
		} else {
			if !enqueue(catalog.JobPayload{
				ProjectID:   project.ID,
				FolderPath:  req.FolderPath,
				IsReference: isReference,
			}) {
				return
			}
		}

		resp := ImportResponse{JobID: jobIDs[0]}
		if len(req.FilePaths) > 0 {
			resp.JobIDs = jobIDs
		}
		WriteJSON(w, http.StatusAccepted, resp)
	}
}

func listMediaHandler(cfg ServerConfig, filter catalog.AssetFilter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		assets, err := cfg.Repository.ListMediaAssets(r.Context(), project.ID, filter)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list media", "INTERNAL_ERROR")
			return
		}

		resp := MediaAssetsResponse{Assets: make([]MediaAssetResponse, len(assets))}
		for i, a := range assets {
			resp.Assets[i] = AssetToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}
		assetID, err := urlID(r, "assetID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid asset id", "BAD_REQUEST")
			return
		}

		asset, err := cfg.Repository.GetMediaAsset(r.Context(), assetID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load asset", "INTERNAL_ERROR")
			return
		}
		if asset == nil || asset.ProjectID != project.ID {
			WriteError(w, http.StatusNotFound, "asset not found", "NOT_FOUND")
			return
		}

		// Collect segment ids before the cascade removes the rows.
		segments, err := cfg.Repository.ListSegmentsByAsset(r.Context(), assetID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load segments", "INTERNAL_ERROR")
			return
		}

		if err := cfg.Repository.DeleteMediaAsset(r.Context(), assetID); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to delete asset", "INTERNAL_ERROR")
			return
		}

		if cfg.Keyword != nil && len(segments) > 0 {
			ids := make([]int64, len(segments))
			for i, s := range segments {
				ids[i] = s.ID
			}
			if err := cfg.Keyword.DeleteSegments(ids); err != nil {
				cfg.Logger.Warn("failed to drop segments from keyword index",
					"asset_id", assetID, "error", err)
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// profileFromReferencesHandler computes a style profile from reference
// footage. With no explicit ids the project's entire reference pool is
// measured.
func profileFromReferencesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req ProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if len(req.ReferenceAssetIDs) == 0 {
			refs, err := cfg.Repository.ListMediaAssets(r.Context(), project.ID, catalog.ReferencesOnly)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to list references", "INTERNAL_ERROR")
				return
			}
			for _, a := range refs {
				req.ReferenceAssetIDs = append(req.ReferenceAssetIDs, a.ID)
			}
		}
		if len(req.ReferenceAssetIDs) == 0 {
			WriteError(w, http.StatusBadRequest, "project has no reference footage", "BAD_REQUEST")
			return
		}

		sp, doc, err := cfg.Profiles.BuildFromReferences(r.Context(), project.ID, req.ReferenceAssetIDs)
		if errors.Is(err, profile.ErrNoSegments) {
			WriteError(w, http.StatusBadRequest, "reference assets have no segments yet", "BAD_REQUEST")
			return
		}
		if err != nil {
			cfg.Logger.Error("profile build failed", "project_id", project.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to build style profile", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, StyleProfileResponse{
			ID:               sp.ID,
			Pacing:           doc.PacingStats,
			CaptionTemplates: profile.DefaultCaptionTemplates(),
			Music:            profile.DefaultMusic(),
			Structure:        profile.DefaultStructure(),
		})
	}
}

// generateHandler produces a rough cut with the local planner and
// applies it. Overwriting a non-empty timeline still goes through the
// confirm-token gate.
func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project := requireProject(cfg, w, r)
		if project == nil {
			return
		}

		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		segments, err := cfg.Repository.ListSegmentsByProject(r.Context(), project.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load segments", "INTERNAL_ERROR")
			return
		}
		if len(segments) == 0 {
			WriteError(w, http.StatusBadRequest, "project has no segments yet", "BAD_REQUEST")
			return
		}

		constraints := planner.Constraints{
			TargetLengthTicks: req.TargetLengthTicks,
			Vibe:              req.Vibe,
			CaptionsOn:        true,
			MusicOn:           true,
		}
		if req.CaptionsOn != nil {
			constraints.CaptionsOn = *req.CaptionsOn
		}
		if req.MusicOn != nil {
			constraints.MusicOn = *req.MusicOn
		}

		editPlan, err := planner.Generate(segments, constraints)
		if errors.Is(err, planner.ErrNoCandidates) {
			WriteError(w, http.StatusBadRequest, "no transcribed segments to plan from", "BAD_REQUEST")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to generate plan", "INTERNAL_ERROR")
			return
		}

		result, err := cfg.Applier.Apply(r.Context(), project.ID, editPlan, req.ConfirmToken, "")
		if err != nil {
			cfg.Logger.Error("generate apply failed", "project_id", project.ID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to apply generated plan", "INTERNAL_ERROR")
			return
		}

		if result.NeedsConfirm {
			WriteJSON(w, http.StatusOK, GenerateResponse{
				Status:       "confirm_required",
				ConfirmToken: result.Token,
			})
			return
		}

		WriteJSON(w, http.StatusOK, GenerateResponse{
			Status:     "ok",
			ClipsAdded: result.ClipsAdded,
			Timeline:   result.Timeline,
		})
	}
}
