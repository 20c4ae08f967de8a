// Package export turns the ledger's Fail entries into a CMX 3600 EDL cut
// list, so the flagged segments can be pulled into an editor for a second
// look. Segment bounds are recovered from the clip filenames the extractor
// produces.
package export

import (
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vidtriage/vidtriage/internal/ledger"
)

// FailClip is one flagged segment with its source video and extracted clip.
type FailClip struct {
	MediaPath string
	ClipPath  string
	StartMs   int64
	EndMs     int64
}

// Clip names look like "drive_cam_fail_12s-47s.mp4", with an optional
// "_N" collision suffix before the extension.
var clipNameRe = regexp.MustCompile(`_fail_(\d+)s-(\d+)s(?:_\d+)?$`)

// CutList extracts the fail segments from ledger entries, in ledger order.
// Entries whose clip names cannot be parsed are skipped.
func CutList(entries []ledger.Entry) []FailClip {
	var clips []FailClip
	for _, e := range entries {
		if e.Label != ledger.LabelFail || e.OutputPath == "" {
			continue
		}
		base := filepath.Base(e.OutputPath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		m := clipNameRe.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		start, err1 := strconv.ParseInt(m[1], 10, 64)
		end, err2 := strconv.ParseInt(m[2], 10, 64)
		if err1 != nil || err2 != nil || end <= start {
			continue
		}
		clips = append(clips, FailClip{
			MediaPath: e.VideoPath,
			ClipPath:  e.OutputPath,
			StartMs:   start * 1000,
			EndMs:     end * 1000,
		})
	}
	return clips
}

// GenerateEDL renders the cut list as a CMX 3600 EDL. Record times run
// back to back so the sequence plays the flagged segments in a row.
func GenerateEDL(clips []FailClip, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	var recordOffsetMs int64
	for i, clip := range clips {
		srcIn := msToTimecode(clip.StartMs, fps)
		srcOut := msToTimecode(clip.EndMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		durationMs := clip.EndMs - clip.StartMs
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", filepath.Base(clip.ClipPath)),
			fmt.Sprintf("* MEDIA PATH:  %s", clip.MediaPath),
		)

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int64, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
