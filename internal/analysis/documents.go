package analysis

import (
	"encoding/json"
	"fmt"
)

// TranscriptDocument is the stored /transcribe result. Times are in
// seconds relative to the start of the asset.
type TranscriptDocument struct {
	Segments []TranscriptSegment `json:"segments"`
}

type TranscriptSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// VisionDocument is the stored /vision/analyze result.
type VisionDocument struct {
	Segments []VisionWindow `json:"segments"`
}

type VisionWindow struct {
	Start       float64         `json:"start"`
	End         float64         `json:"end"`
	BlurScore   float64         `json:"blur_score"`
	MotionScore float64         `json:"motion_score"`
	Tags        []string        `json:"tags,omitempty"`
	HasFace     bool            `json:"has_face,omitempty"`
	FaceBBox    json.RawMessage `json:"face_bbox,omitempty"`
}

func ParseTranscript(raw string) (*TranscriptDocument, error) {
	var doc TranscriptDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid transcript document: %w", err)
	}
	return &doc, nil
}

func ParseVision(raw string) (*VisionDocument, error) {
	var doc VisionDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid vision document: %w", err)
	}
	return &doc, nil
}
