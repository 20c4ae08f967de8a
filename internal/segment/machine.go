// Package segment implements the two-step start/end marking workflow that
// precedes a failure-clip extraction. The machine has two states, Inactive
// and Selecting, with the selection tracked as two independently optional
// endpoint marks; confirm is the only gated transition.
package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// MinDurationMs is the minimum accepted segment length. A confirm with a
// shorter effective range is rejected as a validation failure.
const MinDurationMs = 100

var (
	// ErrNotSelecting reports a selection operation outside segment mode.
	ErrNotSelecting = errors.New("no segment selection in progress")

	// ErrAlreadySelecting reports a Begin while a selection is active.
	ErrAlreadySelecting = errors.New("segment selection already in progress")

	// ErrToolUnavailable blocks entering segment mode when the extraction
	// tool cannot be invoked. The reviewer must remediate externally.
	ErrToolUnavailable = errors.New("clip extraction tool is unavailable")

	// ErrBusy rejects confirm or cancel while an extraction is outstanding.
	ErrBusy = errors.New("an extraction is already in progress")
)

// ValidationError reports an incomplete or too-short segment. It is
// recoverable: the reviewer corrects the marks and retries.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid segment: " + e.Reason
}

// Cutter is the extraction collaborator consumed by the machine.
type Cutter interface {
	Available() bool
	Extract(ctx context.Context, sourcePath, destDir string, startMs, endMs int64) (string, error)
}

// Recorder persists the Fail outcome once a clip has been produced.
type Recorder interface {
	AppendFail(videoPath, clipPath string) error
}

// Snapshot is a read-only view of the machine for presentation.
type Snapshot struct {
	Active   bool
	Busy     bool
	Video    string
	StartMs  int64
	EndMs    int64
	StartSet bool
	EndSet   bool
}

// Machine governs one reviewer's segment selection. Selections are
// transient and in-memory only; nothing here is persisted until a
// confirmed extraction appends its Fail entry through the Recorder.
type Machine struct {
	cutter   Cutter
	recorder Recorder
	destDir  string
	logger   *slog.Logger

	mu        sync.Mutex
	selecting bool
	busy      bool
	video     string
	startMs   int64
	endMs     int64
	startSet  bool
	endSet    bool
}

func NewMachine(cutter Cutter, recorder Recorder, destDir string, logger *slog.Logger) *Machine {
	return &Machine{
		cutter:   cutter,
		recorder: recorder,
		destDir:  destDir,
		logger:   logger,
	}
}

// Begin enters segment mode for videoPath. It fails without a state change
// when a selection is already active or the extraction tool is missing.
func (m *Machine) Begin(videoPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.selecting {
		return ErrAlreadySelecting
	}
	if !m.cutter.Available() {
		return ErrToolUnavailable
	}

	m.selecting = true
	m.video = videoPath
	m.startSet = false
	m.endSet = false

	if m.logger != nil {
		m.logger.Info("segment selection started", "video", videoPath)
	}
	return nil
}

// MarkStart records the start endpoint at t milliseconds. Callable
// repeatedly; the last call wins.
func (m *Machine) MarkStart(t int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.selecting {
		return ErrNotSelecting
	}
	m.startMs = t
	m.startSet = true
	return nil
}

// MarkEnd records the end endpoint at t milliseconds, last call wins.
func (m *Machine) MarkEnd(t int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.selecting {
		return ErrNotSelecting
	}
	m.endMs = t
	m.endSet = true
	return nil
}

// Confirm validates the selection, runs the extraction synchronously and
// records the Fail outcome. On success the machine returns to Inactive and
// the produced clip path is returned. On validation, extraction or record
// failure the selection is preserved so the reviewer can retry or cancel.
// Concurrent confirms are rejected with ErrBusy.
func (m *Machine) Confirm(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.selecting {
		m.mu.Unlock()
		return "", ErrNotSelecting
	}
	if m.busy {
		m.mu.Unlock()
		return "", ErrBusy
	}
	if !m.startSet || !m.endSet {
		m.mu.Unlock()
		return "", &ValidationError{Reason: "both start and end must be set"}
	}

	// Marks may be set in either order.
	lo, hi := m.startMs, m.endMs
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi-lo < MinDurationMs {
		m.mu.Unlock()
		return "", &ValidationError{Reason: fmt.Sprintf("segment shorter than %dms", MinDurationMs)}
	}

	m.busy = true
	video := m.video
	m.mu.Unlock()

	clipPath, err := m.cutter.Extract(ctx, video, m.destDir, lo, hi)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false

	if err != nil {
		if m.logger != nil {
			m.logger.Warn("clip extraction failed, selection preserved", "video", video, "error", err)
		}
		return "", err
	}

	if err := m.recorder.AppendFail(video, clipPath); err != nil {
		if m.logger != nil {
			m.logger.Error("failed to record fail label, selection preserved", "video", video, "error", err)
		}
		return "", fmt.Errorf("recording fail label: %w", err)
	}

	m.selecting = false
	m.startSet = false
	m.endSet = false
	m.video = ""

	if m.logger != nil {
		m.logger.Info("segment confirmed", "video", video, "clip", clipPath, "start_ms", lo, "end_ms", hi)
	}
	return clipPath, nil
}

// Cancel discards the selection without extracting or writing anything.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.selecting {
		return ErrNotSelecting
	}
	if m.busy {
		return ErrBusy
	}

	m.selecting = false
	m.startSet = false
	m.endSet = false
	m.video = ""

	if m.logger != nil {
		m.logger.Info("segment selection cancelled")
	}
	return nil
}

// Active reports whether a selection is in progress.
func (m *Machine) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selecting
}

// Snapshot returns a copy of the current selection state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Active:   m.selecting,
		Busy:     m.busy,
		Video:    m.video,
		StartMs:  m.startMs,
		EndMs:    m.endMs,
		StartSet: m.startSet,
		EndSet:   m.endSet,
	}
}
