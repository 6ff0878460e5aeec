// Package timeline models the project timeline document: an ordered
// set of tracks holding clip instances, plus captions, music, and
// markers. The document is stored as one JSON blob per project and
// every mutation goes through this package so readers never observe a
// half-applied edit.
package timeline

import (
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/ldang04/vibecut/internal/catalog"
)

const (
	TrackVideo   = "video"
	TrackAudio   = "audio"
	TrackCaption = "caption"
)

type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Settings struct {
	FPS            float64    `json:"fps"`
	Resolution     Resolution `json:"resolution"`
	SampleRate     int        `json:"sample_rate"`
	TicksPerSecond int64      `json:"ticks_per_second"`
}

// Clip is one placed piece of source media. InTicks/OutTicks address
// the source asset; TimelineStartTicks places the clip on the record
// side. SegmentID is kept for traceability back to the catalog.
type Clip struct {
	AssetID            int64   `json:"asset_id"`
	AssetPath          string  `json:"asset_path,omitempty"`
	SegmentID          int64   `json:"segment_id,omitempty"`
	InTicks            int64   `json:"in_ticks"`
	OutTicks           int64   `json:"out_ticks"`
	TimelineStartTicks int64   `json:"timeline_start_ticks"`
	Speed              float64 `json:"speed,omitempty"`
}

// DurationTicks is the clip's record-side length.
func (c Clip) DurationTicks() int64 {
	return c.OutTicks - c.InTicks
}

func (c Clip) EndTicks() int64 {
	return c.TimelineStartTicks + c.DurationTicks()
}

type Track struct {
	ID    int64  `json:"id"`
	Kind  string `json:"kind"`
	Clips []Clip `json:"clips"`
}

type CaptionEvent struct {
	StartTicks int64  `json:"start_ticks"`
	EndTicks   int64  `json:"end_ticks"`
	Text       string `json:"text"`
	TemplateID int64  `json:"template_id,omitempty"`
}

type MusicEvent struct {
	StartTicks int64  `json:"start_ticks"`
	EndTicks   int64  `json:"end_ticks"`
	TrackPath  string `json:"track_path"`
}

type Marker struct {
	PositionTicks int64  `json:"position_ticks"`
	Label         string `json:"label,omitempty"`
}

type Timeline struct {
	Settings Settings       `json:"settings"`
	Tracks   []Track        `json:"tracks"`
	Captions []CaptionEvent `json:"captions"`
	Music    []MusicEvent   `json:"music"`
	Markers  []Marker       `json:"markers"`
}

// New returns an empty timeline with the default project settings.
func New() *Timeline {
	return &Timeline{
		Settings: Settings{
			FPS:            30.0,
			Resolution:     Resolution{Width: 1920, Height: 1080},
			SampleRate:     48000,
			TicksPerSecond: catalog.TicksPerSecond,
		},
		Tracks:   []Track{},
		Captions: []CaptionEvent{},
		Music:    []MusicEvent{},
		Markers:  []Marker{},
	}
}

// Parse loads a stored timeline blob. A blank or unreadable blob
// yields a fresh empty timeline rather than an error; the stored
// document is replaceable state, not a source of truth worth failing
// a request over.
func Parse(raw string) *Timeline {
	if raw == "" {
		return New()
	}
	var t Timeline
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return New()
	}
	if t.Settings.TicksPerSecond == 0 {
		t.Settings = New().Settings
	}
	return &t
}

// HasClips reports whether any track carries at least one clip. The
// plan applier treats a non-empty timeline as destructive territory.
func (t *Timeline) HasClips() bool {
	for _, track := range t.Tracks {
		if len(track.Clips) > 0 {
			return true
		}
	}
	return false
}

// EndTicks returns the record-side end of the last clip across all
// tracks, 0 for an empty timeline.
func (t *Timeline) EndTicks() int64 {
	var end int64
	for _, track := range t.Tracks {
		for _, clip := range track.Clips {
			if e := clip.EndTicks(); e > end {
				end = e
			}
		}
	}
	return end
}

// PrimaryTrack returns the first video track, creating it when the
// timeline has none.
func (t *Timeline) PrimaryTrack() *Track {
	for i := range t.Tracks {
		if t.Tracks[i].Kind == TrackVideo {
			return &t.Tracks[i]
		}
	}
	t.Tracks = append(t.Tracks, Track{ID: 1, Kind: TrackVideo, Clips: []Clip{}})
	return &t.Tracks[len(t.Tracks)-1]
}

// Render serializes the timeline to its storage form.
func (t *Timeline) Render() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// MergeInto writes the timeline's modeled fields over the previously
// stored blob, leaving top-level keys this package does not model
// (anything the desktop app stashed alongside) untouched.
func (t *Timeline) MergeInto(raw string) (string, error) {
	if raw == "" {
		raw = "{}"
	}
	fields := []struct {
		path  string
		value any
	}{
		{"settings", t.Settings},
		{"tracks", t.Tracks},
		{"captions", t.Captions},
		{"music", t.Music},
		{"markers", t.Markers},
	}
	out := raw
	for _, f := range fields {
		b, err := json.Marshal(f.value)
		if err != nil {
			return "", err
		}
		out, err = sjson.SetRaw(out, f.path, string(b))
		if err != nil {
			return "", err
		}
	}
	return out, nil
}
