// Package catalog lists the playable video files under a review root.
// The scan is deterministic: the same filesystem state always yields the
// same sorted order, which is the reviewer's review order.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner walks a root directory for video files matching an extension
// allow-list, excluding the reserved clip output directory at every depth.
type Scanner struct {
	reservedDir string
	extensions  map[string]bool
	logger      *slog.Logger
}

// NewScanner builds a Scanner. reservedDir is a bare directory name
// (for example "_failures"), not a path; extensions are matched
// case-insensitively and must include the leading dot.
func NewScanner(reservedDir string, extensions []string, logger *slog.Logger) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Scanner{reservedDir: reservedDir, extensions: exts, logger: logger}
}

// IsVideoFile reports whether the filename carries an allow-listed extension.
func (s *Scanner) IsVideoFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	return s.extensions[ext]
}

// Scan recursively walks root and returns lexicographically sorted absolute
// paths of the video files found. The reserved output directory and hidden
// (dot) directories are skipped wherever they appear. Unreadable entries
// are skipped rather than aborting the walk.
func (s *Scanner) Scan(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid scan root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scan root does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", absRoot)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable entry", "path", p, "error", err)
			}
			return nil
		}
		if d.IsDir() {
			if p == absRoot {
				return nil
			}
			name := d.Name()
			if name == s.reservedDir || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.IsVideoFile(d.Name()) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Strings(files)

	if s.logger != nil {
		s.logger.Info("scan completed", "root", absRoot, "videos", len(files))
	}
	return files, nil
}
