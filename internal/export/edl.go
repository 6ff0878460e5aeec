// Package export renders a project's timeline to interchange formats
// the user can hand to a real editor. CMX3600 EDL is the only format
// so far.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/ldang04/vibecut/internal/catalog"
)

// GenerateEDL renders clips as a CMX3600 edit decision list. Source
// timecodes come from each clip's tick bounds; record timecodes run a
// cursor from zero that advances by clip duration, the same order plan
// application lays clips down.
func GenerateEDL(clips []ResolvedClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}
	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	if dropFrame {
		b.WriteString("FCM: DROP FRAME\n")
	} else {
		b.WriteString("FCM: NON-DROP FRAME\n")
	}
	b.WriteString("\n")

	var cursor int64
	for i, clip := range clips {
		duration := clip.OutTicks - clip.InTicks
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "V",
			ticksToTimecode(clip.InTicks, fps),
			ticksToTimecode(clip.OutTicks, fps),
			ticksToTimecode(cursor, fps),
			ticksToTimecode(cursor+duration, fps))
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", clip.ClipName)
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", clip.MediaPath)
		cursor += duration
	}

	b.WriteString("\n")
	return b.String()
}

func ticksToTimecode(ticks int64, fps int) string {
	totalFrames := int64(math.Round(catalog.TicksToSeconds(ticks) * float64(fps)))
	frames := totalFrames % int64(fps)
	totalSeconds := totalFrames / int64(fps)
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
