// Package session sequences videos from the catalog through playback and
// labeling. The queue is computed once at session start as the sorted scan
// minus the ledger's labeled set; the cursor into that queue is the only
// resume state and is never persisted — a new process recomputes the queue
// from the ledger.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/vidtriage/vidtriage/internal/ledger"
	"github.com/vidtriage/vidtriage/internal/segment"
)

var (
	// ErrNoCurrent reports an action with no video under review
	// (empty queue or all videos labeled).
	ErrNoCurrent = errors.New("no video under review")

	// ErrSegmentActive rejects labeling actions while segment mode is on.
	ErrSegmentActive = errors.New("segment selection in progress")

	// ErrAtFirst rejects Previous at the head of the queue.
	ErrAtFirst = errors.New("already at the first video")
)

// Scanner lists the playable videos under the root.
type Scanner interface {
	Scan(root string) ([]string, error)
}

// Config wires the controller's collaborators.
type Config struct {
	Root    string
	Scanner Scanner
	Ledger  *ledger.Ledger
	Machine *segment.Machine
	Logger  *slog.Logger
}

// Controller owns the review session state: the queue, the cursor, and the
// segment machine for the current video. All exported methods are safe for
// concurrent use, though the review flow is logically single-threaded.
type Controller struct {
	id      string
	cfg     Config
	logger  *slog.Logger
	machine *segment.Machine

	mu       sync.Mutex
	queue    []string
	cursor   int
	started  bool
	catalog  int // total videos found at scan time, labeled or not
	arrivals int // files noticed by the watcher after queue materialization
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		id:      uuid.NewString(),
		cfg:     cfg,
		machine: cfg.Machine,
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With("session_id", c.id)
	}
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Start scans the root and materializes the video queue. It runs the scan
// to completion before any queue state is exposed; a partial queue is
// never observable. Ledger read failures degrade to an empty labeled set.
func (c *Controller) Start(ctx context.Context) error {
	videos, err := c.cfg.Scanner.Scan(c.cfg.Root)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", c.cfg.Root, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	labeled := c.cfg.Ledger.LabeledSet()

	queue := make([]string, 0, len(videos))
	for _, v := range videos {
		if !labeled[filepath.Clean(v)] {
			queue = append(queue, v)
		}
	}

	c.mu.Lock()
	c.queue = queue
	c.cursor = 0
	c.catalog = len(videos)
	c.started = true
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("session started",
			"root", c.cfg.Root,
			"catalog", len(videos),
			"pending", len(queue),
			"labeled", len(labeled),
		)
	}
	return nil
}

// Current returns the video under review, or ok=false when the queue is
// exhausted or empty.
func (c *Controller) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

func (c *Controller) currentLocked() (string, bool) {
	if !c.started || c.cursor >= len(c.queue) {
		return "", false
	}
	return c.queue[c.cursor], true
}

// Position returns the cursor and queue length.
func (c *Controller) Position() (index, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, len(c.queue)
}

// CatalogSize returns the number of videos found at scan time.
func (c *Controller) CatalogSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog
}

// Done reports whether every queued video has been labeled.
func (c *Controller) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && c.cursor >= len(c.queue)
}

// Pass labels the current video Pass and advances the queue.
func (c *Controller) Pass() error {
	return c.label(func(video string) error {
		return c.cfg.Ledger.AppendPass(video)
	})
}

// Uncertain labels the current video Uncertain with an optional note and
// advances the queue.
func (c *Controller) Uncertain(note string) error {
	return c.label(func(video string) error {
		return c.cfg.Ledger.AppendUncertain(video, note)
	})
}

func (c *Controller) label(record func(video string) error) error {
	if c.machine.Active() {
		return ErrSegmentActive
	}

	c.mu.Lock()
	video, ok := c.currentLocked()
	c.mu.Unlock()
	if !ok {
		return ErrNoCurrent
	}

	// A write failure leaves the cursor untouched so the action can be
	// retried; the label is not considered applied.
	if err := record(video); err != nil {
		return err
	}

	c.mu.Lock()
	c.cursor++
	c.mu.Unlock()
	return nil
}

// FailBegin enters segment selection for the current video. The extractor
// availability precondition is enforced by the machine.
func (c *Controller) FailBegin() error {
	c.mu.Lock()
	video, ok := c.currentLocked()
	c.mu.Unlock()
	if !ok {
		return ErrNoCurrent
	}
	return c.machine.Begin(video)
}

// MarkStart forwards the client-reported playhead as the segment start.
func (c *Controller) MarkStart(positionMs int64) error {
	return c.machine.MarkStart(positionMs)
}

// MarkEnd forwards the client-reported playhead as the segment end.
func (c *Controller) MarkEnd(positionMs int64) error {
	return c.machine.MarkEnd(positionMs)
}

// ConfirmSegment blocks on the extraction; on success the Fail entry has
// been recorded and the queue advances. Failures leave the selection and
// the cursor unchanged.
func (c *Controller) ConfirmSegment(ctx context.Context) (string, error) {
	clip, err := c.machine.Confirm(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cursor++
	c.mu.Unlock()
	return clip, nil
}

// CancelSegment leaves segment mode without extracting or labeling.
func (c *Controller) CancelSegment() error {
	return c.machine.Cancel()
}

// Previous undoes the most recent label and steps the cursor back one, so
// the prior video is loaded for re-labeling. The queue itself is not
// recomputed; by construction the ledger's last entry is the label the
// reviewer just applied in this session.
func (c *Controller) Previous() (*ledger.Entry, error) {
	if c.machine.Active() {
		return nil, ErrSegmentActive
	}

	c.mu.Lock()
	atFirst := c.cursor <= 0
	c.mu.Unlock()
	if atFirst {
		return nil, ErrAtFirst
	}

	removed, err := c.cfg.Ledger.RemoveLast()
	if err != nil {
		return nil, err
	}
	if removed == nil {
		return nil, ErrAtFirst
	}

	c.mu.Lock()
	c.cursor--
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("stepped back for re-labeling",
			"video", removed.VideoPath,
			"undone_label", removed.Label.String(),
		)
	}
	return removed, nil
}

// Stats recomputes the ledger's aggregate counts.
func (c *Controller) Stats() ledger.Stats {
	return c.cfg.Ledger.Stats()
}

// Segment returns the current selection snapshot.
func (c *Controller) Segment() segment.Snapshot {
	return c.machine.Snapshot()
}

// NoteArrival records a video file that appeared under the root after the
// queue was materialized. Arrivals are surfaced as a counter only; the
// live queue is never re-evaluated mid-session.
func (c *Controller) NoteArrival(path string) {
	c.mu.Lock()
	c.arrivals++
	n := c.arrivals
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Info("new video arrived after session start",
			"path", path,
			"arrivals", n,
		)
	}
}

// Arrivals returns the number of files noticed since the queue was built.
func (c *Controller) Arrivals() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arrivals
}
