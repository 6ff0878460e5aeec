package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ldang04/vibecut/internal/export"
)

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := urlID(r, "projectID")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid project id", "BAD_REQUEST")
			return
		}

		var req export.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if strings.ToLower(req.Format) != "edl" {
			WriteError(w, http.StatusBadRequest, "format must be edl", "BAD_REQUEST")
			return
		}

		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		resp, err := cfg.Exporter.Export(r.Context(), projectID, req)
		switch {
		case errors.Is(err, export.ErrProjectNotFound):
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
		case errors.Is(err, export.ErrEmptyTimeline):
			WriteError(w, http.StatusBadRequest, "timeline has no clips to export", "BAD_REQUEST")
		case errors.Is(err, export.ErrNoClipsResolved):
			WriteError(w, http.StatusUnprocessableEntity, "no clips could be resolved", "UNRESOLVABLE_CLIPS")
		case err != nil:
			cfg.Logger.Error("export failed", "project_id", projectID, "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to export timeline", "INTERNAL_ERROR")
		default:
			WriteJSON(w, http.StatusOK, resp)
		}
	}
}
