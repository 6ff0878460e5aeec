// Package profile derives editing-style statistics from reference
// footage. The numbers describe how the reference material is paced:
// how long its shots run, how densely it cuts, and how much of it is
// spoken. Plan generation reads them to imitate that rhythm.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ldang04/vibecut/internal/catalog"
)

// ErrNoSegments is returned when none of the reference assets have
// been segmented yet, so there is nothing to measure.
var ErrNoSegments = errors.New("reference assets have no segments")

// Pacing holds shot-length statistics in seconds.
type Pacing struct {
	MedianClipLength float64 `json:"median_clip_length"`
	Variance         float64 `json:"variance"`
}

// Document is the stored style-profile body. Caption, music, and
// overlay analysis are not extracted from references yet; those fields
// keep neutral defaults.
type Document struct {
	PacingStats              Pacing  `json:"pacing_stats"`
	MontageDensity           float64 `json:"montage_density"`
	SilenceCutAggressiveness float64 `json:"silence_cut_aggressiveness"`
	CaptionFrequency         float64 `json:"caption_frequency"`
	MusicPresenceRatio       float64 `json:"music_presence_ratio"`
	TypicalOverlayUsage      float64 `json:"typical_overlay_usage"`
}

// Compute measures the given segments. MontageDensity is segments per
// minute of footage, CaptionFrequency the share of segments with
// spoken content. Variance is population variance and stays zero for a
// single segment.
func Compute(segments []*catalog.Segment) *Document {
	doc := &Document{SilenceCutAggressiveness: 0.5}
	if len(segments) == 0 {
		return doc
	}

	durations := make([]float64, 0, len(segments))
	var total float64
	spoken := 0
	for _, s := range segments {
		d := catalog.TicksToSeconds(s.DurationTicks())
		durations = append(durations, d)
		total += d
		if strings.TrimSpace(s.Transcript) != "" {
			spoken++
		}
	}

	sort.Float64s(durations)
	doc.PacingStats.MedianClipLength = durations[len(durations)/2]

	if len(durations) > 1 {
		var mean float64
		for _, d := range durations {
			mean += d
		}
		mean /= float64(len(durations))
		var sq float64
		for _, d := range durations {
			sq += (d - mean) * (d - mean)
		}
		doc.PacingStats.Variance = sq / float64(len(durations))
	}

	if total > 0 {
		doc.MontageDensity = float64(len(segments)) / total * 60
	}
	doc.CaptionFrequency = float64(spoken) / float64(len(segments))
	return doc
}

// Builder computes profiles from catalog data and stores them.
type Builder struct {
	repo   catalog.Repository
	logger *slog.Logger
}

func NewBuilder(repo catalog.Repository, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{repo: repo, logger: logger.With("component", "profile")}
}

// BuildFromReferences measures the segments of the given reference
// assets, stores the result as a style profile, and makes it the
// project's active profile.
func (b *Builder) BuildFromReferences(ctx context.Context, projectID int64, assetIDs []int64) (*catalog.StyleProfile, *Document, error) {
	var segments []*catalog.Segment
	for _, assetID := range assetIDs {
		segs, err := b.repo.ListSegmentsByAsset(ctx, assetID)
		if err != nil {
			return nil, nil, fmt.Errorf("list segments for asset %d: %w", assetID, err)
		}
		segments = append(segments, segs...)
	}
	if len(segments) == 0 {
		return nil, nil, ErrNoSegments
	}

	doc := Compute(segments)
	blob, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode profile: %w", err)
	}

	sp := &catalog.StyleProfile{
		Name:              "Reference Profile " + time.Now().UTC().Format(time.RFC3339),
		ProjectID:         projectID,
		ReferenceAssetIDs: assetIDs,
		JSONBlob:          string(blob),
	}
	if err := b.repo.CreateStyleProfile(ctx, sp); err != nil {
		return nil, nil, fmt.Errorf("store style profile: %w", err)
	}
	if err := b.repo.UpdateProjectStyleProfile(ctx, projectID, sp.ID); err != nil {
		return nil, nil, fmt.Errorf("link style profile: %w", err)
	}

	b.logger.Info("style profile computed",
		"project_id", projectID,
		"profile_id", sp.ID,
		"segments", len(segments),
		"median_clip_sec", doc.PacingStats.MedianClipLength)
	return sp, doc, nil
}

type CaptionPlacement struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	SafeArea bool    `json:"safe_area"`
}

type CaptionTemplate struct {
	Placement  CaptionPlacement `json:"placement"`
	FontFamily string           `json:"font_family"`
	FontWeight string           `json:"font_weight"`
	FontSize   int              `json:"font_size"`
	Stroke     bool             `json:"stroke"`
	Shadow     bool             `json:"shadow"`
}

type DuckingProfile struct {
	DuckAmount float64 `json:"duck_amount"`
	FadeIn     float64 `json:"fade_in"`
	FadeOut    float64 `json:"fade_out"`
}

type Music struct {
	Ducking       DuckingProfile `json:"ducking_profile"`
	LoudnessCurve []float64      `json:"loudness_curve"`
	BPMTendencies []float64      `json:"bpm_tendencies"`
}

type Structure struct {
	ARollBRollRatio     float64 `json:"a_roll_b_roll_ratio"`
	IntroDurationTarget float64 `json:"intro_duration_target"`
	OutroDurationTarget float64 `json:"outro_duration_target"`
}

// DefaultCaptionTemplates, DefaultMusic, and DefaultStructure fill the
// parts of a profile no analysis pass produces yet, so callers always
// receive a complete document.
func DefaultCaptionTemplates() []CaptionTemplate {
	return []CaptionTemplate{{
		Placement:  CaptionPlacement{X: 0.5, Y: 0.9, SafeArea: true},
		FontFamily: "Arial",
		FontWeight: "bold",
		FontSize:   48,
		Stroke:     true,
		Shadow:     true,
	}}
}

func DefaultMusic() Music {
	return Music{
		Ducking:       DuckingProfile{DuckAmount: 0.5, FadeIn: 0.2, FadeOut: 0.2},
		LoudnessCurve: []float64{},
		BPMTendencies: []float64{},
	}
}

func DefaultStructure() Structure {
	return Structure{
		ARollBRollRatio:     0.6,
		IntroDurationTarget: 10.0,
		OutroDurationTarget: 5.0,
	}
}
