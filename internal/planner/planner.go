// Package planner builds a rough cut without the Analysis Service.
// It scores transcribed segments by how much is said and how close the
// clip runs to a comfortable length, then arranges the best of them as
// intro, body, and outro. The output is the same EditPlan shape the
// model-driven orchestrator produces, so one applier realizes both.
package planner

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/ldang04/vibecut/internal/catalog"
)

// ErrNoCandidates is returned when no segment carries a transcript
// inside the usable duration range.
var ErrNoCandidates = errors.New("no transcribed segments to plan from")

const (
	defaultTargetTicks = 60 * catalog.TicksPerSecond
	introTicks         = 10 * catalog.TicksPerSecond
	outroTicks         = 5 * catalog.TicksPerSecond

	minClipSec = 1.0
	maxClipSec = 30.0
)

// Constraints bound the generated plan. A zero TargetLengthTicks means
// one minute.
type Constraints struct {
	TargetLengthTicks int64  `json:"target_length,omitempty"`
	Vibe              string `json:"vibe,omitempty"`
	CaptionsOn        bool   `json:"captions_on"`
	MusicOn           bool   `json:"music_on"`
}

type planStep struct {
	SegmentID          int64 `json:"segment_id"`
	TrimInOffsetTicks  int64 `json:"trim_in_offset_ticks,omitempty"`
	TrimOutOffsetTicks int64 `json:"trim_out_offset_ticks,omitempty"`
}

type editPlan struct {
	NarrativeStructure string      `json:"narrative_structure"`
	PrimarySegments    []planStep  `json:"primary_segments"`
	Constraints        Constraints `json:"constraints"`
}

// Generate selects and orders segments into an EditPlan blob. Selection
// is greedy by clarity score until the body budget is filled; the first
// pick opens the cut trimmed to the intro budget and the last pick's
// tail closes it.
func Generate(segments []*catalog.Segment, c Constraints) (json.RawMessage, error) {
	candidates := filterCandidates(segments)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return clarityScore(candidates[i]) > clarityScore(candidates[j])
	})

	target := c.TargetLengthTicks
	if target <= 0 {
		target = defaultTargetTicks
	}
	bodyBudget := target - introTicks - outroTicks

	var selected []*catalog.Segment
	var bodyTicks int64
	for _, s := range candidates {
		if bodyTicks >= bodyBudget {
			break
		}
		selected = append(selected, s)
		bodyTicks += s.DurationTicks()
	}
	// A target shorter than intro+outro leaves no body budget; a
	// one-clip cut still beats an empty plan.
	if len(selected) == 0 {
		selected = candidates[:1]
	}

	steps := make([]planStep, 0, len(selected)+1)

	first := selected[0]
	steps = append(steps, planStep{
		SegmentID:          first.ID,
		TrimOutOffsetTicks: max(0, first.DurationTicks()-introTicks),
	})
	for _, s := range selected[1:] {
		steps = append(steps, planStep{SegmentID: s.ID})
	}
	last := selected[len(selected)-1]
	steps = append(steps, planStep{
		SegmentID:         last.ID,
		TrimInOffsetTicks: max(0, last.DurationTicks()-outroTicks),
	})

	return json.Marshal(editPlan{
		NarrativeStructure: "intro_body_outro",
		PrimarySegments:    steps,
		Constraints:        c,
	})
}

func filterCandidates(segments []*catalog.Segment) []*catalog.Segment {
	var out []*catalog.Segment
	for _, s := range segments {
		if strings.TrimSpace(s.Transcript) == "" {
			continue
		}
		sec := catalog.TicksToSeconds(s.DurationTicks())
		if sec < minClipSec || sec > maxClipSec {
			continue
		}
		out = append(out, s)
	}
	return out
}

// clarityScore weighs transcript length by how close the clip runs to
// the three-to-ten second sweet spot. Shorter clips are scaled down
// linearly, longer ones inversely.
func clarityScore(s *catalog.Segment) float64 {
	text := float64(len(strings.TrimSpace(s.Transcript)))
	sec := catalog.TicksToSeconds(s.DurationTicks())
	switch {
	case sec < 3:
		return text * sec / 3
	case sec > 10:
		return text * 10 / sec
	default:
		return text
	}
}
