package extractor

import (
	"errors"
	"fmt"
	"time"
)

// ErrToolMissing reports that no usable ffmpeg binary could be resolved.
// It is a hard precondition failure for entering segment selection, not a
// retryable extraction error.
var ErrToolMissing = errors.New("ffmpeg not found on PATH")

// TimeoutError reports that an extraction attempt was abandoned after its
// bounded timeout elapsed.
type TimeoutError struct {
	Mode  string // "copy" or "reencode"
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ffmpeg %s extraction timed out after %s", e.Mode, e.After)
}

// ToolError reports a nonzero ffmpeg exit, carrying the stderr tail
// verbatim as the diagnostic.
type ToolError struct {
	Mode     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s extraction exited %d", e.Mode, e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg %s extraction exited %d: %s", e.Mode, e.ExitCode, e.Stderr)
}
