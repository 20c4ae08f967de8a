// Package ledger persists per-video labeling outcomes as an append-only
// CSV file, one record per line. The ledger is the durable source of truth
// for resume (skip already-labeled videos), undo (remove the last entry)
// and aggregate stats.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Label is the persisted outcome code for a reviewed video.
// The integer values are the wire format and must not change.
type Label int

const (
	LabelFail      Label = 0
	LabelPass      Label = 1
	LabelUncertain Label = 2
)

func (l Label) String() string {
	switch l {
	case LabelPass:
		return "pass"
	case LabelFail:
		return "fail"
	case LabelUncertain:
		return "uncertain"
	default:
		return fmt.Sprintf("label(%d)", int(l))
	}
}

// Entry is one immutable ledger record. OutputPath is set only for Fail
// entries (the extracted clip); Note is set only for Uncertain entries.
type Entry struct {
	VideoPath  string
	Label      Label
	OutputPath string
	Note       string
}

// Stats holds aggregate label counts, recomputed from the entries on
// every call rather than cached.
type Stats struct {
	Total     int
	Passed    int
	Failed    int
	Uncertain int
}

// Ledger reads and writes the labeling CSV. Reads degrade to an empty
// ledger on I/O failure; writes propagate failure to the caller.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// Open ensures the backing CSV exists (creating parent directories and an
// empty file as needed) and returns a Ledger over it.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cannot create ledger directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("cannot open ledger: %w", err)
	}

	return &Ledger{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (l *Ledger) Path() string {
	return l.path
}

// Entries returns all ledger entries in append order. Read failures are
// treated as an empty ledger and malformed rows are skipped, so a corrupt
// file degrades to "start over" instead of blocking the session.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readAll()
}

// LabeledSet returns the set of distinct video paths with at least one
// entry, cleaned for comparison. Consumers checking "already labeled"
// must test membership, not count entries: undo-then-relabel can leave
// more than one row per video.
func (l *Ledger) LabeledSet() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	set := make(map[string]bool)
	for _, e := range l.readAll() {
		set[filepath.Clean(e.VideoPath)] = true
	}
	return set
}

// Stats recomputes aggregate label counts by scanning all entries.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s Stats
	for _, e := range l.readAll() {
		s.Total++
		switch e.Label {
		case LabelPass:
			s.Passed++
		case LabelFail:
			s.Failed++
		case LabelUncertain:
			s.Uncertain++
		}
	}
	return s
}

// AppendPass records a Pass outcome for a video.
func (l *Ledger) AppendPass(videoPath string) error {
	return l.append(Entry{VideoPath: videoPath, Label: LabelPass})
}

// AppendFail records a Fail outcome together with the extracted clip path.
func (l *Ledger) AppendFail(videoPath, clipPath string) error {
	return l.append(Entry{VideoPath: videoPath, Label: LabelFail, OutputPath: clipPath})
}

// AppendUncertain records an Uncertain outcome with an optional reviewer note.
func (l *Ledger) AppendUncertain(videoPath, note string) error {
	return l.append(Entry{VideoPath: videoPath, Label: LabelUncertain, Note: note})
}

// RemoveLast pops the most recently appended entry and rewrites the file
// without it, returning the removed entry or nil when the ledger is empty.
// The rewrite goes through a temp file in the same directory followed by a
// rename, so a crash mid-undo leaves the previous file intact.
func (l *Ledger) RemoveLast() (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.readAll()
	if len(entries) == 0 {
		return nil, nil
	}

	removed := entries[len(entries)-1]
	if err := l.rewrite(entries[:len(entries)-1]); err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Info("ledger entry removed",
			"video", removed.VideoPath,
			"label", removed.Label.String(),
		)
	}
	return &removed, nil
}

func (l *Ledger) append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("cannot open ledger for append: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(record(e)); err != nil {
		f.Close()
		return fmt.Errorf("cannot append ledger entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("cannot append ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("cannot sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cannot close ledger: %w", err)
	}

	if l.logger != nil {
		l.logger.Info("ledger entry appended",
			"video", e.VideoPath,
			"label", e.Label.String(),
		)
	}
	return nil
}

func (l *Ledger) rewrite(entries []Entry) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".labels-*.csv")
	if err != nil {
		return fmt.Errorf("cannot create ledger temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	for _, e := range entries {
		if err := w.Write(record(e)); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("cannot rewrite ledger: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot rewrite ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cannot sync ledger temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot close ledger temp file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cannot replace ledger: %w", err)
	}
	return nil
}

// readAll is the single read path. Callers hold l.mu.
func (l *Ledger) readAll() []Entry {
	f, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) && l.logger != nil {
			l.logger.Warn("ledger unreadable, treating as empty", "error", err)
		}
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows may carry 2..4 fields across versions

	var entries []Entry
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if l.logger != nil {
				l.logger.Warn("skipping malformed ledger row", "error", err)
			}
			continue
		}

		e, ok := parseRow(row)
		if !ok {
			if l.logger != nil {
				l.logger.Warn("skipping malformed ledger row", "fields", len(row))
			}
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func record(e Entry) []string {
	return []string{e.VideoPath, strconv.Itoa(int(e.Label)), e.OutputPath, e.Note}
}

func parseRow(row []string) (Entry, bool) {
	if len(row) < 2 || row[0] == "" {
		return Entry{}, false
	}

	code, err := strconv.Atoi(row[1])
	if err != nil {
		return Entry{}, false
	}
	switch Label(code) {
	case LabelPass, LabelFail, LabelUncertain:
	default:
		return Entry{}, false
	}

	e := Entry{VideoPath: row[0], Label: Label(code)}
	if len(row) > 2 {
		e.OutputPath = row[2]
	}
	if len(row) > 3 {
		e.Note = row[3]
	}
	return e, true
}
