package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/pipeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", listProjectsHandler(cfg))
			r.Post("/", createProjectHandler(cfg))

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", getProjectHandler(cfg))
				r.Delete("/", deleteProjectHandler(cfg))

				r.Post("/import_raw", importHandler(cfg, false))
				r.Post("/import_reference", importHandler(cfg, true))
				r.Post("/profile_from_references", profileFromReferencesHandler(cfg))
				r.Post("/generate", generateHandler(cfg))

				r.Get("/media", listMediaHandler(cfg, catalog.RawOnly))
				r.Get("/references", listMediaHandler(cfg, catalog.ReferencesOnly))
				r.Delete("/media/{assetID}", deleteMediaHandler(cfg))
				r.Route("/media/{assetID}/file", func(r chi.Router) {
					r.Use(LoopbackGuard())
					r.Get("/", playbackFileHandler(cfg))
					r.Head("/", playbackFileHandler(cfg))
				})

				r.Get("/timeline", getTimelineHandler(cfg))
				r.Post("/timeline/apply", applyOperationsHandler(cfg))
				r.Post("/timeline/consolidate", consolidateTimelineHandler(cfg))

				r.Post("/search", searchHandler(cfg))
				r.Get("/search/keyword", keywordSearchHandler(cfg))

				r.Post("/export", exportHandler(cfg))

				r.Route("/orchestrator", func(r chi.Router) {
					r.Post("/propose", proposeHandler(cfg))
					r.Post("/plan", planHandler(cfg))
					r.Post("/apply", applyPlanHandler(cfg))
				})
			})
		})

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{jobID}", getJobHandler(cfg))
		r.Post("/jobs/{jobID}/cancel", cancelJobHandler(cfg))
	})

	return r
}

// urlID parses a numeric chi route parameter.
func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// requireProject loads the project addressed by the route or writes the
// error response and returns nil.
func requireProject(cfg ServerConfig, w http.ResponseWriter, r *http.Request) *catalog.Project {
	id, err := urlID(r, "projectID")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid project id", "BAD_REQUEST")
		return nil
	}

	project, err := cfg.Repository.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load project", "INTERNAL_ERROR")
		return nil
	}
	if project == nil {
		WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
		return nil
	}
	return project
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "0.1.0"
		}
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Repository.ListProjects(ctx)
		assetsCount := 0
		for _, p := range projects {
			n, _ := cfg.Repository.CountProjectAssets(ctx, p.ID)
			assetsCount += n
		}
		jobs, _ := cfg.Repository.ListJobs(ctx, 10)

		state := "idle"
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range jobs {
			if j.Status == catalog.JobStatusRunning {
				if state != "paused" {
					state = "analyzing"
				}
				resp := JobToResponse(j)
				activeJob = &resp
				jobsRunning++
			}
			if j.Status == catalog.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:         state,
			LastError:     lastError,
			ProjectsCount: len(projects),
			AssetsCount:   assetsCount,
			JobsRunning:   jobsRunning,
			ActiveJob:     activeJob,
		})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "jobID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid job id", "BAD_REQUEST")
			return
		}

		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load job", "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func cancelJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r, "jobID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid job id", "BAD_REQUEST")
			return
		}

		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "job runner not available", "UNAVAILABLE")
			return
		}

		status, err := cfg.Runner.Cancel(r.Context(), id)
		if errors.Is(err, pipeline.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to cancel job", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, CancelJobResponse{ID: id, Status: status})
	}
}

func playbackFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r, "projectID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid project id", "BAD_REQUEST")
			return
		}
		assetID, err := urlID(r, "assetID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid asset id", "BAD_REQUEST")
			return
		}

		if err := cfg.Playback.ServeAsset(w, r, projectID, assetID); err != nil {
			cfg.Logger.Error("playback error", "error", err, "asset_id", assetID)
			WriteError(w, http.StatusInternalServerError, "failed to serve media", "INTERNAL_ERROR")
		}
	}
}
