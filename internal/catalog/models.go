package catalog

import (
	"encoding/json"
	"time"
)

// TicksPerSecond is the fixed timebase every segment and timeline
// position is expressed in. 48000 divides evenly by common video and
// audio rates, so frame boundaries land on whole ticks.
const TicksPerSecond int64 = 48000

func TicksToSeconds(ticks int64) float64 {
	return float64(ticks) / float64(TicksPerSecond)
}

func SecondsToTicks(seconds float64) int64 {
	return int64(seconds * float64(TicksPerSecond))
}

type Project struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	CacheDir       string    `json:"cache_dir"`
	StyleProfileID int64     `json:"style_profile_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type MediaAsset struct {
	ID            int64  `json:"id"`
	ProjectID     int64  `json:"project_id"`
	Path          string `json:"path"`
	Checksum      string `json:"checksum,omitempty"`
	DurationTicks int64  `json:"duration_ticks"`
	FPSNum        int    `json:"fps_num"`
	FPSDen        int    `json:"fps_den"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	HasAudio      bool   `json:"has_audio"`
	IsReference   bool   `json:"is_reference"`
	ThumbnailDir  string `json:"thumbnail_dir,omitempty"`

	SegmentsBuiltAt   *time.Time `json:"segments_built_at,omitempty"`
	TranscriptReadyAt *time.Time `json:"transcript_ready_at,omitempty"`
	VisionReadyAt     *time.Time `json:"vision_ready_at,omitempty"`
	MetadataReadyAt   *time.Time `json:"metadata_ready_at,omitempty"`
	EmbeddingsReadyAt *time.Time `json:"embeddings_ready_at,omitempty"`
}

// Readiness field names used for job gating and asset state updates.
const (
	ReadySegmentsBuilt = "segments_built"
	ReadyTranscript    = "transcript_ready"
	ReadyVision        = "vision_ready"
	ReadyMetadata      = "metadata_ready"
	ReadyEmbeddings    = "embeddings_ready"
)

// Proxy is a scaled-down transcode of a media asset used for playback.
type Proxy struct {
	ID           int64  `json:"id"`
	MediaAssetID int64  `json:"media_asset_id"`
	Path         string `json:"path"`
	Codec        string `json:"codec"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type QualityInfo struct {
	BlurScore   float64 `json:"blur_score"`
	MotionScore float64 `json:"motion_score"`
}

type SceneInfo struct {
	Tags     []string        `json:"tags"`
	HasFace  bool            `json:"has_face"`
	FaceBBox json.RawMessage `json:"face_bbox,omitempty"`
}

type SubjectInfo struct {
	HasFace        bool            `json:"has_face"`
	FaceBBox       json.RawMessage `json:"face_bbox,omitempty"`
	SubjectPresent bool            `json:"subject_present"`
}

// Segment is a fixed window of a media asset. SrcInTicks and SrcOutTicks
// are set once when segments are built and never move afterwards; edits
// reference them through trim offsets.
type Segment struct {
	ID           int64        `json:"id"`
	MediaAssetID int64        `json:"media_asset_id"`
	ProjectID    int64        `json:"project_id"`
	StartTicks   int64        `json:"start_ticks"`
	EndTicks     int64        `json:"end_ticks"`
	SrcInTicks   int64        `json:"src_in_ticks"`
	SrcOutTicks  int64        `json:"src_out_ticks"`
	SegmentKind  string       `json:"segment_kind,omitempty"`
	SummaryText  string       `json:"summary_text,omitempty"`
	Keywords     []string     `json:"keywords,omitempty"`
	Quality      *QualityInfo `json:"quality,omitempty"`
	Subject      *SubjectInfo `json:"subject,omitempty"`
	Scene        *SceneInfo   `json:"scene,omitempty"`
	CaptureTime  string       `json:"capture_time,omitempty"`
	Transcript   string       `json:"transcript,omitempty"`
	Speaker      string       `json:"speaker,omitempty"`
}

func (s *Segment) DurationTicks() int64 {
	return s.SrcOutTicks - s.SrcInTicks
}

type Embedding struct {
	ID           int64     `json:"id"`
	SegmentID    int64     `json:"segment_id"`
	Type         string    `json:"embedding_type"`
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version,omitempty"`
	Vector       []float32 `json:"-"`
	SemanticText string    `json:"semantic_text,omitempty"`
}

const (
	JobTypeImportRaw                    = "ImportRaw"
	JobTypeGenerateProxy                = "GenerateProxy"
	JobTypeTranscribeAsset              = "TranscribeAsset"
	JobTypeAnalyzeVisionAsset           = "AnalyzeVisionAsset"
	JobTypeBuildSegments                = "BuildSegments"
	JobTypeEnrichSegmentsFromTranscript = "EnrichSegmentsFromTranscript"
	JobTypeEnrichSegmentsFromVision     = "EnrichSegmentsFromVision"
	JobTypeComputeSegmentMetadata       = "ComputeSegmentMetadata"
	JobTypeEmbedSegments                = "EmbedSegments"

	JobStatusPending   = "Pending"
	JobStatusRunning   = "Running"
	JobStatusCompleted = "Completed"
	JobStatusFailed    = "Failed"
	JobStatusCancelled = "Cancelled"
)

// AnalysisJobTypes is the set of job kinds that operate on an already
// imported asset. Used when counting in-flight work for a project.
var AnalysisJobTypes = map[string]bool{
	JobTypeTranscribeAsset:              true,
	JobTypeAnalyzeVisionAsset:           true,
	JobTypeBuildSegments:                true,
	JobTypeEnrichSegmentsFromTranscript: true,
	JobTypeEnrichSegmentsFromVision:     true,
	JobTypeComputeSegmentMetadata:       true,
	JobTypeEmbedSegments:                true,
}

type JobPayload struct {
	ProjectID   int64  `json:"project_id,omitempty"`
	AssetID     int64  `json:"asset_id,omitempty"`
	MediaPath   string `json:"media_path,omitempty"`
	FolderPath  string `json:"folder_path,omitempty"`
	IsReference bool   `json:"is_reference,omitempty"`
}

// Job is a unit of background work. Progress runs from 0 to 1. Status
// transitions are Pending -> Running -> Completed/Failed, or Pending ->
// Cancelled; Failed and Cancelled are terminal.
type Job struct {
	ID        int64       `json:"id"`
	Type      string      `json:"type"`
	Status    string      `json:"status"`
	Progress  float64     `json:"progress"`
	Payload   *JobPayload `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Timeline struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	JSONBlob  string    `json:"json_blob"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StyleProfile struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	ProjectID         int64     `json:"project_id,omitempty"`
	ReferenceAssetIDs []int64   `json:"reference_asset_ids,omitempty"`
	JSONBlob          string    `json:"json_blob"`
	CreatedAt         time.Time `json:"created_at"`
}

type ConversationMessage struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Proposal struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	ProposalJSON string    `json:"proposal_json"`
	CreatedAt    time.Time `json:"created_at"`
}

type ApplyRecord struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	EditPlanJSON string    `json:"edit_plan_json"`
	CreatedAt    time.Time `json:"created_at"`
}

type EditLog struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	DiffJSON  string    `json:"diff_json"`
	CreatedAt time.Time `json:"created_at"`
}

// ConfirmToken is a one-shot grant for a destructive action. Issued when
// a guarded operation is first attempted, consumed when the caller
// retries with it.
type ConfirmToken struct {
	Token      string     `json:"token"`
	ProjectID  int64      `json:"project_id"`
	Action     string     `json:"action"`
	CreatedAt  time.Time  `json:"created_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".m4v":  true,
	".webm": true,
}

func IsVideoFile(filename string) bool {
	ext := ""
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			ext = filename[i:]
			break
		}
	}
	if ext == "" {
		return false
	}
	lower := make([]byte, len(ext))
	for i, c := range ext {
		if c >= 'A' && c <= 'Z' {
			lower[i] = byte(c + 32)
		} else {
			lower[i] = byte(c)
		}
	}
	return VideoExtensions[string(lower)]
}
