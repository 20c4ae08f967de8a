package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type extMatcher struct{}

func (extMatcher) IsVideoFile(name string) bool {
	return filepath.Ext(name) == ".mp4"
}

type arrivalLog struct {
	mu    sync.Mutex
	paths []string
}

func (a *arrivalLog) add(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths = append(a.paths, path)
}

func (a *arrivalLog) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paths...)
}

func (a *arrivalLog) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := a.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d arrivals, got %v", n, a.snapshot())
	return nil
}

func startWatcher(t *testing.T, root string) *arrivalLog {
	t.Helper()

	arrivals := &arrivalLog{}
	w := New(extMatcher{}, "_failures", slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.OnArrival(arrivals.add)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Watch(ctx, root)
	}()
	t.Cleanup(func() { cancel(); <-done })

	// Give the watch set a moment to register before writing files.
	time.Sleep(50 * time.Millisecond)
	return arrivals
}

func TestWatch_ReportsNewVideo(t *testing.T) {
	root := t.TempDir()
	arrivals := startWatcher(t, root)

	path := filepath.Join(root, "late.mp4")
	if err := os.WriteFile(path, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}

	got := arrivals.waitFor(t, 1)
	if got[0] != path {
		t.Errorf("arrival = %q, want %q", got[0], path)
	}
}

func TestWatch_IgnoresNonVideoAndReservedDir(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "_failures"), 0755); err != nil {
		t.Fatal(err)
	}
	arrivals := startWatcher(t, root)

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "_failures", "clip.mp4"), []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}
	wanted := filepath.Join(root, "real.mp4")
	if err := os.WriteFile(wanted, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}

	got := arrivals.waitFor(t, 1)
	for _, p := range got {
		if p != wanted {
			t.Errorf("unexpected arrival %q", p)
		}
	}
}

func TestWatch_PicksUpNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	arrivals := startWatcher(t, root)

	sub := filepath.Join(root, "batch2")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Let the new directory join the watch set before the file lands.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(sub, "new.mp4")
	if err := os.WriteFile(path, []byte("v"), 0644); err != nil {
		t.Fatal(err)
	}

	got := arrivals.waitFor(t, 1)
	if got[len(got)-1] != path {
		t.Errorf("arrivals = %v, want %q", got, path)
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	w := New(extMatcher{}, "_failures", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "gone"))
	if err == nil {
		t.Fatal("Watch() should fail for a missing root")
	}
}
