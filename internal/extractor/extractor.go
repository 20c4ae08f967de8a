// Package extractor produces failure clips by invoking ffmpeg as a
// subprocess: a lossless stream-copy attempt first, then a re-encode
// fallback, each under its own bounded timeout. Failures cross the package
// boundary as typed error values, never panics.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

	modeCopy     = "copy"
	modeReencode = "reencode"
)

// Config holds the extractor's configuration.
type Config struct {
	FFmpegPath      string        // path to ffmpeg binary; empty = auto-detect
	FFprobePath     string        // path to ffprobe binary; empty = auto-detect
	CopyTimeout     time.Duration // timeout for the stream-copy attempt
	ReencodeTimeout time.Duration // timeout for the re-encode fallback
	Logger          *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		CopyTimeout:     60 * time.Second,
		ReencodeTimeout: 120 * time.Second,
		Logger:          logger,
	}
}

// runResult is the structured outcome of one ffmpeg invocation.
type runResult struct {
	exitCode   int
	stderrTail string
	timedOut   bool
	duration   time.Duration
}

// commandFunc runs one subprocess invocation. Swapped out in tests.
type commandFunc func(ctx context.Context, bin string, args []string) runResult

// Extractor invokes ffmpeg to cut clips out of source videos.
type Extractor struct {
	cfg Config
	run commandFunc
}

// New creates an Extractor. The ffmpeg binary is resolved lazily so the
// agent can start (and report unavailability) without the tool installed.
func New(cfg Config) *Extractor {
	e := &Extractor{cfg: cfg}
	e.run = e.execRun
	return e
}

// Available reports whether ffmpeg can be invoked at all.
func (e *Extractor) Available() bool {
	_, err := e.ffmpeg()
	return err == nil
}

// Extract cuts [startMs, endMs) out of sourcePath into destDir and returns
// the absolute path of the produced clip. It tries a stream copy first and
// falls back to a re-encode when the copy fails or times out. An existing
// clip with the derived name is never overwritten; a numeric suffix is
// appended until a free name is found.
func (e *Extractor) Extract(ctx context.Context, sourcePath, destDir string, startMs, endMs int64) (string, error) {
	bin, err := e.ffmpeg()
	if err != nil {
		return "", err
	}

	if endMs <= startMs {
		return "", fmt.Errorf("invalid clip range: end %dms not after start %dms", endMs, startMs)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("cannot create clip directory: %w", err)
	}

	outPath, err := freeClipPath(destDir, sourcePath, startMs, endMs)
	if err != nil {
		return "", err
	}

	start := FormatTimestamp(startMs)
	duration := FormatTimestamp(endMs - startMs)

	if e.cfg.Logger != nil {
		e.cfg.Logger.Info("extracting clip",
			"source", sourcePath,
			"output", outPath,
			"start", start,
			"duration", duration,
		)
	}

	// Fast path: stream copy, no re-encoding.
	copyArgs := []string{
		"-y",
		"-ss", start,
		"-i", sourcePath,
		"-t", duration,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outPath,
	}
	res := e.attempt(ctx, bin, copyArgs, e.cfg.CopyTimeout)
	if res.exitCode == 0 && !res.timedOut {
		if e.cfg.Logger != nil {
			e.cfg.Logger.Info("clip extracted", "output", outPath, "mode", modeCopy, "duration_ms", res.duration.Milliseconds())
		}
		return outPath, nil
	}

	if e.cfg.Logger != nil {
		e.cfg.Logger.Warn("stream copy failed, re-encoding",
			"exit_code", res.exitCode,
			"timed_out", res.timedOut,
		)
	}

	reencodeArgs := []string{
		"-y",
		"-ss", start,
		"-i", sourcePath,
		"-t", duration,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-preset", "fast",
		outPath,
	}
	res = e.attempt(ctx, bin, reencodeArgs, e.cfg.ReencodeTimeout)
	if res.exitCode == 0 && !res.timedOut {
		if e.cfg.Logger != nil {
			e.cfg.Logger.Info("clip extracted", "output", outPath, "mode", modeReencode, "duration_ms", res.duration.Milliseconds())
		}
		return outPath, nil
	}

	// Don't leave a truncated clip behind.
	os.Remove(outPath)

	if res.timedOut {
		return "", &TimeoutError{Mode: modeReencode, After: e.cfg.ReencodeTimeout}
	}
	return "", &ToolError{Mode: modeReencode, ExitCode: res.exitCode, Stderr: res.stderrTail}
}

func (e *Extractor) attempt(ctx context.Context, bin string, args []string, timeout time.Duration) runResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.run(ctx, bin, args)
}

// execRun is the real subprocess execution path.
func (e *Extractor) execRun(ctx context.Context, bin string, args []string) runResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stderrBuf bytes.Buffer
	cmd.Stderr = io.Writer(&limitedWriter{w: &stderrBuf, limit: maxStderrBytes})
	cmd.Stdout = io.Discard

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return runResult{
		exitCode:   exitCode,
		stderrTail: stderrBuf.String(),
		timedOut:   ctx.Err() == context.DeadlineExceeded,
		duration:   elapsed,
	}
}

func (e *Extractor) ffmpeg() (string, error) {
	return resolveTool(e.cfg.FFmpegPath, "ffmpeg")
}

func (e *Extractor) ffprobe() (string, error) {
	return resolveTool(e.cfg.FFprobePath, "ffprobe")
}

// resolveTool finds a usable binary, preferring the configured path.
func resolveTool(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found: %w", name, preferred, ErrToolMissing)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", ErrToolMissing
}

// FormatTimestamp converts milliseconds to the HH:MM:SS.mmm form ffmpeg
// expects, truncating toward zero for the hour and minute components.
func FormatTimestamp(ms int64) string {
	hours := ms / 3_600_000
	minutes := (ms % 3_600_000) / 60_000
	seconds := float64(ms%60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, seconds)
}

// clipFilename derives the output name from the source filename and the
// whole-second segment offsets, e.g. "intro_fail_2s-5s.mp4".
func clipFilename(sourcePath string, startMs, endMs int64) string {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s_fail_%ds-%ds%s", stem, startMs/1000, endMs/1000, ext)
}

// freeClipPath resolves filename collisions with an incrementing numeric
// suffix so an existing clip is never silently overwritten.
func freeClipPath(destDir, sourcePath string, startMs, endMs int64) (string, error) {
	name := clipFilename(sourcePath, startMs, endMs)
	candidate := filepath.Join(destDir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i < 10_000; i++ {
		candidate = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free clip filename for %s in %s", name, destDir)
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
