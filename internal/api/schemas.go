package api

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/ldang04/vibecut/internal/catalog"
	"github.com/ldang04/vibecut/internal/orchestrator"
	"github.com/ldang04/vibecut/internal/profile"
	"github.com/ldang04/vibecut/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string       `json:"state"`
	LastError     string       `json:"last_error,omitempty"`
	ProjectsCount int          `json:"projects_count"`
	AssetsCount   int          `json:"assets_count"`
	JobsRunning   int          `json:"jobs_running"`
	ActiveJob     *JobResponse `json:"active_job,omitempty"`
}

type CreateProjectRequest struct {
	Name     string `json:"name"`
	CacheDir string `json:"cache_dir,omitempty"`
}

type CreateProjectResponse struct {
	ID int64 `json:"id"`
}

type ProjectResponse struct {
	ID             int64                      `json:"id"`
	Name           string                     `json:"name"`
	CacheDir       string                     `json:"cache_dir,omitempty"`
	StyleProfileID int64                      `json:"style_profile_id,omitempty"`
	CreatedAt      string                     `json:"created_at"`
	State          *orchestrator.ProjectState `json:"state,omitempty"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type ImportRequest struct {
	FolderPath string   `json:"folder_path,omitempty"`
	FilePaths  []string `json:"file_paths,omitempty"`
}

type ImportResponse struct {
	JobID  int64   `json:"job_id"`
	JobIDs []int64 `json:"job_ids,omitempty"`
}

type MediaAssetResponse struct {
	ID            int64  `json:"id"`
	Path          string `json:"path"`
	Filename      string `json:"filename"`
	DurationTicks int64  `json:"duration_ticks"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	HasAudio      bool   `json:"has_audio"`
	IsReference   bool   `json:"is_reference"`
	Ready         bool   `json:"ready"`
}

type MediaAssetsResponse struct {
	Assets []MediaAssetResponse `json:"assets"`
}

type ProfileRequest struct {
	ReferenceAssetIDs []int64 `json:"reference_asset_ids"`
}

type StyleProfileResponse struct {
	ID               int64                     `json:"id"`
	Pacing           profile.Pacing            `json:"pacing"`
	CaptionTemplates []profile.CaptionTemplate `json:"caption_templates"`
	Music            profile.Music             `json:"music"`
	Structure        profile.Structure         `json:"structure"`
}

// GenerateRequest drives the local planner. CaptionsOn and MusicOn
// default to true when omitted, so they are pointers.
type GenerateRequest struct {
	TargetLengthTicks int64  `json:"target_length,omitempty"`
	Vibe              string `json:"vibe,omitempty"`
	CaptionsOn        *bool  `json:"captions_on,omitempty"`
	MusicOn           *bool  `json:"music_on,omitempty"`
	ConfirmToken      string `json:"confirm_token,omitempty"`
}

type GenerateResponse struct {
	Status       string          `json:"status"`
	ClipsAdded   int             `json:"clips_added,omitempty"`
	Timeline     json.RawMessage `json:"timeline,omitempty"`
	ConfirmToken string          `json:"confirm_token,omitempty"`
}

type TimelineResponse struct {
	Timeline json.RawMessage `json:"timeline"`
}

type ApplyOperationsRequest struct {
	Operations []timeline.Operation `json:"operations"`
}

type SearchRequest struct {
	Query       string `json:"query"`
	SegmentKind string `json:"segment_kind,omitempty"`
	Assets      string `json:"assets,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type SearchResult struct {
	SegmentID   int64   `json:"segment_id"`
	Score       float64 `json:"score"`
	AssetID     int64   `json:"asset_id"`
	SummaryText string  `json:"summary_text,omitempty"`
	SegmentKind string  `json:"segment_kind,omitempty"`
	Transcript  string  `json:"transcript,omitempty"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Model   string         `json:"model,omitempty"`
}

type KeywordSearchResult struct {
	SearchResult
	Fragments map[string][]string `json:"fragments,omitempty"`
}

type KeywordSearchResponse struct {
	Results []KeywordSearchResult `json:"results"`
}

type JobResponse struct {
	ID        int64               `json:"id"`
	Type      string              `json:"type"`
	Status    string              `json:"status"`
	Progress  float64             `json:"progress"`
	Payload   *catalog.JobPayload `json:"payload,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type CancelJobResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *catalog.Project) ProjectResponse {
	return ProjectResponse{
		ID:             p.ID,
		Name:           p.Name,
		CacheDir:       p.CacheDir,
		StyleProfileID: p.StyleProfileID,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

func AssetToResponse(a *catalog.MediaAsset) MediaAssetResponse {
	return MediaAssetResponse{
		ID:            a.ID,
		Path:          a.Path,
		Filename:      filepath.Base(a.Path),
		DurationTicks: a.DurationTicks,
		Width:         a.Width,
		Height:        a.Height,
		HasAudio:      a.HasAudio,
		IsReference:   a.IsReference,
		Ready:         a.EmbeddingsReadyAt != nil,
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		Progress:  j.Progress,
		Payload:   j.Payload,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}
