package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vidtriage/vidtriage/internal/ledger"
	"github.com/vidtriage/vidtriage/internal/segment"
)

type fakeScanner struct {
	videos []string
	err    error
}

func (f *fakeScanner) Scan(root string) ([]string, error) {
	return f.videos, f.err
}

type fakeCutter struct {
	available bool
	clip      string
	err       error
}

func (f *fakeCutter) Available() bool { return f.available }

func (f *fakeCutter) Extract(ctx context.Context, source, destDir string, startMs, endMs int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.clip, nil
}

func newTestController(t *testing.T, videos []string, cutter *fakeCutter) (*Controller, *ledger.Ledger) {
	t.Helper()

	led, err := ledger.Open(filepath.Join(t.TempDir(), "labels.csv"), nil)
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	machine := segment.NewMachine(cutter, led, t.TempDir(), nil)
	c := NewController(Config{
		Root:    "/videos",
		Scanner: &fakeScanner{videos: videos},
		Ledger:  led,
		Machine: machine,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c, led
}

func TestStart_QueueExcludesLabeled(t *testing.T) {
	dir := t.TempDir()
	led, err := ledger.Open(filepath.Join(dir, "labels.csv"), nil)
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	if err := led.AppendPass("/videos/b.mp4"); err != nil {
		t.Fatalf("AppendPass() error = %v", err)
	}

	machine := segment.NewMachine(&fakeCutter{available: true}, led, dir, nil)
	c := NewController(Config{
		Root:    "/videos",
		Scanner: &fakeScanner{videos: []string{"/videos/a.mp4", "/videos/b.mp4", "/videos/c.mp4"}},
		Ledger:  led,
		Machine: machine,
	})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := c.CatalogSize(); got != 3 {
		t.Errorf("CatalogSize() = %d, want 3", got)
	}
	if _, total := c.Position(); total != 2 {
		t.Errorf("queue length = %d, want 2", total)
	}
	if cur, ok := c.Current(); !ok || cur != "/videos/a.mp4" {
		t.Errorf("Current() = %q, %v; want /videos/a.mp4", cur, ok)
	}
}

func TestStart_ScanError(t *testing.T) {
	led, err := ledger.Open(filepath.Join(t.TempDir(), "labels.csv"), nil)
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	c := NewController(Config{
		Root:    "/missing",
		Scanner: &fakeScanner{err: errors.New("no such directory")},
		Ledger:  led,
		Machine: segment.NewMachine(&fakeCutter{}, led, t.TempDir(), nil),
	})
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start() should propagate scan errors")
	}
	if _, ok := c.Current(); ok {
		t.Error("Current() should report no video before a successful Start")
	}
}

func TestPass_AdvancesAndRecords(t *testing.T) {
	c, led := newTestController(t, []string{"/videos/a.mp4", "/videos/b.mp4"}, &fakeCutter{available: true})

	if err := c.Pass(); err != nil {
		t.Fatalf("Pass() error = %v", err)
	}
	if cur, _ := c.Current(); cur != "/videos/b.mp4" {
		t.Errorf("Current() = %q after Pass, want /videos/b.mp4", cur)
	}
	entries := led.Entries()
	if len(entries) != 1 || entries[0].Label != ledger.LabelPass {
		t.Fatalf("ledger entries = %+v, want one Pass", entries)
	}
}

func TestUncertain_RecordsNote(t *testing.T) {
	c, led := newTestController(t, []string{"/videos/a.mp4"}, &fakeCutter{available: true})

	if err := c.Uncertain("lens flare, hard to tell"); err != nil {
		t.Fatalf("Uncertain() error = %v", err)
	}
	entries := led.Entries()
	if len(entries) != 1 || entries[0].Label != ledger.LabelUncertain {
		t.Fatalf("ledger entries = %+v, want one Uncertain", entries)
	}
	if entries[0].Note != "lens flare, hard to tell" {
		t.Errorf("note = %q", entries[0].Note)
	}
	if !c.Done() {
		t.Error("Done() = false after labeling the only video")
	}
}

func TestLabel_ExhaustedQueue(t *testing.T) {
	c, _ := newTestController(t, nil, &fakeCutter{available: true})

	if !c.Done() {
		t.Error("Done() = false for an empty queue")
	}
	if err := c.Pass(); !errors.Is(err, ErrNoCurrent) {
		t.Errorf("Pass() error = %v, want ErrNoCurrent", err)
	}
	if err := c.FailBegin(); !errors.Is(err, ErrNoCurrent) {
		t.Errorf("FailBegin() error = %v, want ErrNoCurrent", err)
	}
}

func TestLabel_RejectedDuringSegmentSelection(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4"}, &fakeCutter{available: true})

	if err := c.FailBegin(); err != nil {
		t.Fatalf("FailBegin() error = %v", err)
	}
	if err := c.Pass(); !errors.Is(err, ErrSegmentActive) {
		t.Errorf("Pass() error = %v, want ErrSegmentActive", err)
	}
	if err := c.Uncertain(""); !errors.Is(err, ErrSegmentActive) {
		t.Errorf("Uncertain() error = %v, want ErrSegmentActive", err)
	}
	if _, err := c.Previous(); !errors.Is(err, ErrSegmentActive) {
		t.Errorf("Previous() error = %v, want ErrSegmentActive", err)
	}
}

func TestConfirmSegment_RecordsFailAndAdvances(t *testing.T) {
	clip := filepath.Join(t.TempDir(), "a_fail_1s-3s.mp4")
	if err := os.WriteFile(clip, []byte("clip"), 0644); err != nil {
		t.Fatal(err)
	}
	c, led := newTestController(t, []string{"/videos/a.mp4", "/videos/b.mp4"},
		&fakeCutter{available: true, clip: clip})

	if err := c.FailBegin(); err != nil {
		t.Fatalf("FailBegin() error = %v", err)
	}
	if err := c.MarkStart(1000); err != nil {
		t.Fatalf("MarkStart() error = %v", err)
	}
	if err := c.MarkEnd(3000); err != nil {
		t.Fatalf("MarkEnd() error = %v", err)
	}
	got, err := c.ConfirmSegment(context.Background())
	if err != nil {
		t.Fatalf("ConfirmSegment() error = %v", err)
	}
	if got != clip {
		t.Errorf("clip path = %q, want %q", got, clip)
	}
	if cur, _ := c.Current(); cur != "/videos/b.mp4" {
		t.Errorf("Current() = %q after confirm, want /videos/b.mp4", cur)
	}

	entries := led.Entries()
	if len(entries) != 1 || entries[0].Label != ledger.LabelFail || entries[0].OutputPath != clip {
		t.Fatalf("ledger entries = %+v, want one Fail with clip path", entries)
	}
}

func TestConfirmSegment_FailureKeepsCursor(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4"},
		&fakeCutter{available: true, err: errors.New("ffmpeg exploded")})

	if err := c.FailBegin(); err != nil {
		t.Fatalf("FailBegin() error = %v", err)
	}
	if err := c.MarkStart(0); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkEnd(500); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ConfirmSegment(context.Background()); err == nil {
		t.Fatal("ConfirmSegment() should propagate extraction failure")
	}
	if cur, ok := c.Current(); !ok || cur != "/videos/a.mp4" {
		t.Errorf("Current() = %q, %v; cursor must not advance on failure", cur, ok)
	}
	if !c.Segment().Active {
		t.Error("selection should survive a failed confirm")
	}
}

func TestCancelSegment_LeavesSelectionMode(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4"}, &fakeCutter{available: true})

	if err := c.FailBegin(); err != nil {
		t.Fatalf("FailBegin() error = %v", err)
	}
	if err := c.CancelSegment(); err != nil {
		t.Fatalf("CancelSegment() error = %v", err)
	}
	if c.Segment().Active {
		t.Error("selection still active after cancel")
	}
	if err := c.Pass(); err != nil {
		t.Errorf("Pass() after cancel error = %v", err)
	}
}

func TestPrevious_UndoesLastLabel(t *testing.T) {
	c, led := newTestController(t, []string{"/videos/a.mp4", "/videos/b.mp4"}, &fakeCutter{available: true})

	if err := c.Pass(); err != nil {
		t.Fatal(err)
	}
	removed, err := c.Previous()
	if err != nil {
		t.Fatalf("Previous() error = %v", err)
	}
	if removed.VideoPath != "/videos/a.mp4" || removed.Label != ledger.LabelPass {
		t.Errorf("removed entry = %+v", removed)
	}
	if cur, _ := c.Current(); cur != "/videos/a.mp4" {
		t.Errorf("Current() = %q after Previous, want /videos/a.mp4", cur)
	}
	entries := led.Entries()
	if len(entries) != 0 {
		t.Errorf("ledger should be empty after undo, got %+v", entries)
	}
}

func TestPrevious_AtFirstVideo(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4"}, &fakeCutter{available: true})

	if _, err := c.Previous(); !errors.Is(err, ErrAtFirst) {
		t.Errorf("Previous() error = %v, want ErrAtFirst", err)
	}
}

func TestArrivals_CountOnly(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4"}, &fakeCutter{available: true})

	c.NoteArrival("/videos/late.mp4")
	c.NoteArrival("/videos/later.mp4")

	if got := c.Arrivals(); got != 2 {
		t.Errorf("Arrivals() = %d, want 2", got)
	}
	// The queue must not pick up mid-session files.
	if _, total := c.Position(); total != 1 {
		t.Errorf("queue length = %d, want 1", total)
	}
}

func TestStats_ReflectLedger(t *testing.T) {
	c, _ := newTestController(t, []string{"/videos/a.mp4", "/videos/b.mp4"}, &fakeCutter{available: true})

	if err := c.Pass(); err != nil {
		t.Fatal(err)
	}
	if err := c.Uncertain("maybe"); err != nil {
		t.Fatal(err)
	}
	stats := c.Stats()
	if stats.Total != 2 || stats.Passed != 1 || stats.Uncertain != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}
