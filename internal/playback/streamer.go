// Package playback streams video files to the browser with byte-range
// support, so the <video> element can seek without downloading the whole
// file. Only files under the configured root are served.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrInvalidRange  = errors.New("invalid range header")
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Containers the browser can play but mime.TypeByExtension may not know.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
}

// byteRange is a single satisfiable bytes=start-end request, already
// clamped to the file size.
type byteRange struct {
	start int64
	end   int64
}

func (r byteRange) length() int64 { return r.end - r.start + 1 }

// parseRange interprets a Range header against a file of the given size.
// A missing header returns (nil, nil). Multi-range requests are served by
// their first range only.
func parseRange(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrInvalidRange
	}
	if idx := strings.Index(spec, ","); idx >= 0 {
		spec = spec[:idx]
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, ErrInvalidRange
	}

	var r byteRange
	switch {
	case first == "":
		// Suffix form: the final N bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrInvalidRange
		}
		r.start = max(size-n, 0)
		r.end = size - 1
	case last == "":
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		r.start, r.end = start, size-1
	default:
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return nil, ErrInvalidRange
		}
		end, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, ErrInvalidRange
		}
		r.start, r.end = start, min(end, size-1)
	}

	if r.start > r.end || r.start >= size {
		return nil, ErrUnsatisfiable
	}
	return &r, nil
}

// Streamer serves video bytes for paths confined to a root directory.
type Streamer struct {
	root   string
	logger *slog.Logger
}

func NewStreamer(root string, logger *slog.Logger) *Streamer {
	return &Streamer{root: filepath.Clean(root), logger: logger}
}

// allowed reports whether path sits under the streamer's root.
func (s *Streamer) allowed(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ServeVideo writes the file at path to the response, honoring a Range
// header when present. Paths outside the root get 404 rather than 403 so
// the response does not confirm the file exists.
func (s *Streamer) ServeVideo(w http.ResponseWriter, r *http.Request, path string) {
	if !s.allowed(path) {
		if s.logger != nil {
			s.logger.Warn("refused playback outside root", "path", path)
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if s.logger != nil {
			s.logger.Error("failed to open video", "path", path, "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(path))

	rng, err := parseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	case errors.Is(err, ErrInvalidRange):
		// Malformed Range headers degrade to a full response.
		rng = nil
	}

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(rng.length(), 10))
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := f.Seek(rng.start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(w, f, rng.length())
}

func contentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
