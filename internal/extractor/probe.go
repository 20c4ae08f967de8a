package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"
)

const probeTimeout = 15 * time.Second

// ProbeDurationMs reads the container duration of a video via ffprobe.
// It is a best-effort hint for the review UI; playback itself determines
// the authoritative duration.
func (e *Extractor) ProbeDurationMs(ctx context.Context, path string) (int64, error) {
	bin, err := e.ffprobe()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
	out, err := exec.CommandContext(ctx, bin, args...).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out)
}

// probeResult matches the subset of ffprobe JSON output we need.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeDuration(data []byte) (int64, error) {
	var probe probeResult
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("cannot parse ffprobe output: %w", err)
	}

	secs, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported no duration: %w", err)
	}
	return int64(math.Round(secs * 1000)), nil
}
