package extractor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeRun replaces the subprocess call. Each invocation appends the args it
// saw and pops the next scripted result.
type fakeRun struct {
	calls   [][]string
	results []runResult
}

func (f *fakeRun) run(ctx context.Context, bin string, args []string) runResult {
	f.calls = append(f.calls, args)
	if len(f.results) == 0 {
		return runResult{}
	}
	res := f.results[0]
	f.results = f.results[1:]
	// Mimic ffmpeg creating the output file on success.
	if res.exitCode == 0 && !res.timedOut {
		os.WriteFile(args[len(args)-1], []byte("clip"), 0644)
	}
	return res
}

func testExtractor(t *testing.T, f *fakeRun) *Extractor {
	t.Helper()
	cfg := DefaultConfig(nil)
	cfg.FFmpegPath = os.Args[0] // any resolvable binary; never actually run
	cfg.FFprobePath = os.Args[0]
	e := New(cfg)
	e.run = f.run
	return e
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{999, "00:00:00.999"},
		{1000, "00:00:01.000"},
		{65_432, "00:01:05.432"},
		{3_600_000, "01:00:00.000"},
		{3_723_456, "01:02:03.456"},
		{36_000_000, "10:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.ms); got != tt.want {
			t.Errorf("FormatTimestamp(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestClipFilename(t *testing.T) {
	got := clipFilename("/videos/take one.mp4", 2_500, 5_999)
	want := "take one_fail_2s-5s.mp4"
	if got != want {
		t.Errorf("clipFilename() = %q, want %q", got, want)
	}
}

func TestFreeClipPath_CollisionSuffix(t *testing.T) {
	dir := t.TempDir()

	first, err := freeClipPath(dir, "/videos/a.mp4", 1000, 3000)
	if err != nil {
		t.Fatalf("freeClipPath() error = %v", err)
	}
	if filepath.Base(first) != "a_fail_1s-3s.mp4" {
		t.Errorf("first path = %s", first)
	}
	os.WriteFile(first, []byte("x"), 0644)

	second, err := freeClipPath(dir, "/videos/a.mp4", 1000, 3000)
	if err != nil {
		t.Fatalf("freeClipPath() error = %v", err)
	}
	if filepath.Base(second) != "a_fail_1s-3s_1.mp4" {
		t.Errorf("second path = %s, want _1 suffix", second)
	}
	os.WriteFile(second, []byte("x"), 0644)

	third, err := freeClipPath(dir, "/videos/a.mp4", 1000, 3000)
	if err != nil {
		t.Fatalf("freeClipPath() error = %v", err)
	}
	if filepath.Base(third) != "a_fail_1s-3s_2.mp4" {
		t.Errorf("third path = %s, want _2 suffix", third)
	}
}

func TestExtract_StreamCopySucceeds(t *testing.T) {
	f := &fakeRun{results: []runResult{{exitCode: 0}}}
	e := testExtractor(t, f)
	dest := filepath.Join(t.TempDir(), "_failures")

	out, err := e.Extract(context.Background(), "/videos/a.mp4", dest, 1000, 3000)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if filepath.Dir(out) != dest {
		t.Errorf("clip %s not under destination %s", out, dest)
	}
	if len(f.calls) != 1 {
		t.Fatalf("ffmpeg invoked %d times, want 1", len(f.calls))
	}

	args := f.calls[0]
	assertArgPair(t, args, "-ss", "00:00:01.000")
	assertArgPair(t, args, "-t", "00:00:02.000")
	assertArgPair(t, args, "-c", "copy")
}

func TestExtract_FallsBackToReencode(t *testing.T) {
	f := &fakeRun{results: []runResult{
		{exitCode: 1, stderrTail: "moov atom not found"},
		{exitCode: 0},
	}}
	e := testExtractor(t, f)

	out, err := e.Extract(context.Background(), "/videos/a.mp4", t.TempDir(), 0, 500)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out == "" {
		t.Fatal("Extract() returned empty clip path")
	}
	if len(f.calls) != 2 {
		t.Fatalf("ffmpeg invoked %d times, want copy then re-encode", len(f.calls))
	}
	assertArgPair(t, f.calls[1], "-c:v", "libx264")
	assertArgPair(t, f.calls[1], "-c:a", "aac")
}

func TestExtract_ReencodeFailureReturnsToolError(t *testing.T) {
	f := &fakeRun{results: []runResult{
		{exitCode: 1, stderrTail: "copy broke"},
		{exitCode: 187, stderrTail: "unsupported codec"},
	}}
	e := testExtractor(t, f)
	dest := t.TempDir()

	_, err := e.Extract(context.Background(), "/videos/a.mp4", dest, 0, 500)
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("Extract() error = %v, want *ToolError", err)
	}
	if toolErr.ExitCode != 187 || toolErr.Stderr != "unsupported codec" {
		t.Errorf("ToolError = %+v", toolErr)
	}

	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Errorf("failed extraction left files behind: %v", entries)
	}
}

func TestExtract_TimeoutReturnsTimeoutError(t *testing.T) {
	f := &fakeRun{results: []runResult{
		{timedOut: true, exitCode: -1},
		{timedOut: true, exitCode: -1},
	}}
	e := testExtractor(t, f)

	_, err := e.Extract(context.Background(), "/videos/a.mp4", t.TempDir(), 0, 500)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Extract() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.Mode != "reencode" {
		t.Errorf("timeout mode = %q, want reencode", timeoutErr.Mode)
	}
}

func TestExtract_InvalidRange(t *testing.T) {
	e := testExtractor(t, &fakeRun{})
	if _, err := e.Extract(context.Background(), "/videos/a.mp4", t.TempDir(), 500, 500); err == nil {
		t.Error("Extract() should reject an empty range")
	}
}

func TestExtract_ToolMissing(t *testing.T) {
	cfg := DefaultConfig(nil)
	cfg.FFmpegPath = "/nonexistent/ffmpeg999"
	e := New(cfg)

	if e.Available() {
		t.Error("Available() = true for nonexistent binary")
	}
	_, err := e.Extract(context.Background(), "/videos/a.mp4", t.TempDir(), 0, 500)
	if !errors.Is(err, ErrToolMissing) {
		t.Errorf("Extract() error = %v, want ErrToolMissing", err)
	}
}

func TestParseProbeDuration(t *testing.T) {
	ms, err := parseProbeDuration([]byte(`{"format":{"duration":"12.345"}}`))
	if err != nil {
		t.Fatalf("parseProbeDuration() error = %v", err)
	}
	if ms != 12_345 {
		t.Errorf("parseProbeDuration() = %d, want 12345", ms)
	}

	if _, err := parseProbeDuration([]byte(`{"format":{}}`)); err == nil {
		t.Error("parseProbeDuration() should fail without a duration field")
	}
	if _, err := parseProbeDuration([]byte(`notjson`)); err == nil {
		t.Error("parseProbeDuration() should fail on invalid JSON")
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	got := buf.String()
	if len(got) > 10 {
		t.Errorf("buffer length %d exceeds limit 10", len(got))
	}
	if got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestDefaultConfig_Timeouts(t *testing.T) {
	cfg := DefaultConfig(nil)
	if cfg.CopyTimeout != 60*time.Second {
		t.Errorf("CopyTimeout = %s, want 60s", cfg.CopyTimeout)
	}
	if cfg.ReencodeTimeout != 120*time.Second {
		t.Errorf("ReencodeTimeout = %s, want 120s", cfg.ReencodeTimeout)
	}
}

func assertArgPair(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return
		}
	}
	t.Errorf("args %v missing %s %s", args, flag, value)
}
