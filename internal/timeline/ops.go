package timeline

import (
	"errors"
	"fmt"
	"sort"
)

// Editing operation names accepted by Apply.
const (
	OpSplitClip    = "split_clip"
	OpTrimClip     = "trim_clip"
	OpRippleDelete = "ripple_delete"
	OpInsertClip   = "insert_clip"
	OpMoveClip     = "move_clip"
)

var ErrClipNotFound = errors.New("clip not found")

// Operation is one edit request. ClipID addresses clips by index in
// track order: the first track holding at least ClipID+1 clips is the
// one operated on.
type Operation struct {
	Op string `json:"op"`

	ClipID           int   `json:"clip_id,omitempty"`
	PositionTicks    int64 `json:"position_ticks,omitempty"`
	NewInTicks       int64 `json:"new_in_ticks,omitempty"`
	NewOutTicks      int64 `json:"new_out_ticks,omitempty"`
	NewPositionTicks int64 `json:"new_position_ticks,omitempty"`

	AssetID  int64  `json:"asset_id,omitempty"`
	TrackID  int64  `json:"track_id,omitempty"`
	InTicks  int64  `json:"in_ticks,omitempty"`
	OutTicks int64  `json:"out_ticks,omitempty"`
	Path     string `json:"asset_path,omitempty"`
}

// Apply mutates the timeline with a single operation.
func (t *Timeline) Apply(op Operation) error {
	switch op.Op {
	case OpSplitClip:
		return t.splitClip(op.ClipID, op.PositionTicks)
	case OpTrimClip:
		return t.trimClip(op.ClipID, op.NewInTicks, op.NewOutTicks)
	case OpRippleDelete:
		return t.rippleDelete(op.ClipID)
	case OpInsertClip:
		return t.insertClip(op)
	case OpMoveClip:
		return t.moveClip(op.ClipID, op.NewPositionTicks)
	default:
		return fmt.Errorf("unknown timeline operation %q", op.Op)
	}
}

// ApplyAll applies every operation in order and consolidates. The
// receiver is only mutated when all operations succeed.
func (t *Timeline) ApplyAll(ops []Operation) error {
	work := t.clone()
	for i, op := range ops {
		if err := work.Apply(op); err != nil {
			return fmt.Errorf("operation %d (%s): %w", i, op.Op, err)
		}
	}
	work.Consolidate()
	*t = *work
	return nil
}

func (t *Timeline) clone() *Timeline {
	c := *t
	c.Tracks = make([]Track, len(t.Tracks))
	for i, track := range t.Tracks {
		c.Tracks[i] = track
		c.Tracks[i].Clips = append([]Clip(nil), track.Clips...)
	}
	c.Captions = append([]CaptionEvent(nil), t.Captions...)
	c.Music = append([]MusicEvent(nil), t.Music...)
	c.Markers = append([]Marker(nil), t.Markers...)
	return &c
}

func (t *Timeline) findClip(clipID int) (*Track, int, error) {
	if clipID < 0 {
		return nil, 0, ErrClipNotFound
	}
	for i := range t.Tracks {
		if clipID < len(t.Tracks[i].Clips) {
			return &t.Tracks[i], clipID, nil
		}
	}
	return nil, 0, ErrClipNotFound
}

func (t *Timeline) splitClip(clipID int, positionTicks int64) error {
	track, idx, err := t.findClip(clipID)
	if err != nil {
		return err
	}
	clip := &track.Clips[idx]

	if positionTicks <= clip.TimelineStartTicks || positionTicks >= clip.EndTicks() {
		return fmt.Errorf("split position %d outside clip [%d, %d)", positionTicks, clip.TimelineStartTicks, clip.EndTicks())
	}

	relative := positionTicks - clip.TimelineStartTicks
	splitIn := clip.InTicks + relative

	second := Clip{
		AssetID:            clip.AssetID,
		AssetPath:          clip.AssetPath,
		SegmentID:          clip.SegmentID,
		InTicks:            splitIn,
		OutTicks:           clip.OutTicks,
		TimelineStartTicks: positionTicks,
		Speed:              clip.Speed,
	}
	clip.OutTicks = splitIn

	track.Clips = append(track.Clips, Clip{})
	copy(track.Clips[idx+2:], track.Clips[idx+1:])
	track.Clips[idx+1] = second
	return nil
}

func (t *Timeline) trimClip(clipID int, newIn, newOut int64) error {
	track, idx, err := t.findClip(clipID)
	if err != nil {
		return err
	}
	if newIn >= newOut {
		return fmt.Errorf("trim would leave clip empty: in %d >= out %d", newIn, newOut)
	}
	track.Clips[idx].InTicks = newIn
	track.Clips[idx].OutTicks = newOut
	return nil
}

func (t *Timeline) rippleDelete(clipID int) error {
	track, idx, err := t.findClip(clipID)
	if err != nil {
		return err
	}
	track.Clips = append(track.Clips[:idx], track.Clips[idx+1:]...)
	return nil
}

func (t *Timeline) insertClip(op Operation) error {
	if op.OutTicks <= op.InTicks {
		return fmt.Errorf("insert needs a non-empty source range, got [%d, %d)", op.InTicks, op.OutTicks)
	}

	var track *Track
	for i := range t.Tracks {
		if t.Tracks[i].ID == op.TrackID {
			track = &t.Tracks[i]
			break
		}
	}
	if track == nil {
		if op.TrackID == 0 || op.TrackID == 1 {
			track = t.PrimaryTrack()
		} else {
			return fmt.Errorf("track %d not found", op.TrackID)
		}
	}

	track.Clips = append(track.Clips, Clip{
		AssetID:            op.AssetID,
		AssetPath:          op.Path,
		InTicks:            op.InTicks,
		OutTicks:           op.OutTicks,
		TimelineStartTicks: op.PositionTicks,
		Speed:              1.0,
	})
	return nil
}

func (t *Timeline) moveClip(clipID int, newPosition int64) error {
	track, idx, err := t.findClip(clipID)
	if err != nil {
		return err
	}
	track.Clips[idx].TimelineStartTicks = newPosition
	return nil
}

// Consolidate gathers every video clip onto the primary track and
// re-packs them contiguously in timeline order, so splits, deletes,
// and moves leave no gaps or overlaps behind.
func (t *Timeline) Consolidate() {
	var videoClips []Clip
	for i := range t.Tracks {
		if t.Tracks[i].Kind != TrackVideo {
			continue
		}
		videoClips = append(videoClips, t.Tracks[i].Clips...)
		t.Tracks[i].Clips = []Clip{}
	}
	if len(videoClips) == 0 {
		return
	}

	sort.SliceStable(videoClips, func(i, j int) bool {
		return videoClips[i].TimelineStartTicks < videoClips[j].TimelineStartTicks
	})

	var cursor int64
	for i := range videoClips {
		videoClips[i].TimelineStartTicks = cursor
		cursor += videoClips[i].DurationTicks()
	}

	t.PrimaryTrack().Clips = videoClips
}
