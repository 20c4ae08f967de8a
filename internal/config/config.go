// Package config provides configuration management for the vidtriage agent.
// Configuration is loaded from a .env file (when present) and environment
// variables with sensible defaults; CLI flags override both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8790
	DefaultLogLevel = "info"

	// Environment variable names
	EnvRoot      = "VIDTRIAGE_ROOT"
	EnvLedger    = "VIDTRIAGE_LEDGER"
	EnvPort      = "VIDTRIAGE_PORT"
	EnvLogLevel  = "VIDTRIAGE_LOG_LEVEL"
	EnvAuthToken = "VIDTRIAGE_AUTH_TOKEN"
	EnvHeadless  = "VIDTRIAGE_HEADLESS"
	EnvFFmpeg    = "VIDTRIAGE_FFMPEG"
	EnvFFprobe   = "VIDTRIAGE_FFPROBE"
	EnvExts      = "VIDTRIAGE_EXTENSIONS"

	// Ledger filename created under the root when no explicit path is given
	LedgerFilename = "labels.csv"

	// FailuresDirName is the reserved clip output subdirectory under the
	// video root. The scanner excludes it at every depth.
	FailuresDirName = "_failures"

	// Extraction timeouts (seconds)
	DefaultCopyTimeout     = 60
	DefaultReencodeTimeout = 120
)

// DefaultExtensions is the video container allow-list applied when
// VIDTRIAGE_EXTENSIONS is not set. Matching is case-insensitive.
var DefaultExtensions = []string{
	".mp4", ".avi", ".mov", ".mkv", ".wmv", ".webm",
	".flv", ".m4v", ".mpeg", ".mpg", ".3gp",
}

// Config defines the application configuration interface
type Config interface {
	RootDir() string
	LedgerPath() string
	FailuresDir() string
	Port() int
	LogLevel() string
	AuthToken() string
	Headless() bool
	FFmpegPath() string
	FFprobePath() string
	Extensions() []string
	CopyTimeout() time.Duration
	ReencodeTimeout() time.Duration
}

// Overrides carries CLI flag values that take precedence over the
// environment. Zero values mean "not set".
type Overrides struct {
	Root     string
	Ledger   string
	Port     int
	Headless bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	rootDir    string
	ledgerPath string
	port       int
	logLevel   string
	authToken  string
	headless   bool
	ffmpeg     string
	ffprobe    string
	extensions []string
}

// New creates a new EnvConfig with defaults, environment variable
// overrides, and CLI flag overrides, in that order of precedence.
func New(ov Overrides) (*EnvConfig, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:       DefaultPort,
		logLevel:   DefaultLogLevel,
		extensions: DefaultExtensions,
	}

	cfg.rootDir = os.Getenv(EnvRoot)
	cfg.ledgerPath = os.Getenv(EnvLedger)
	cfg.authToken = os.Getenv(EnvAuthToken)
	cfg.ffmpeg = os.Getenv(EnvFFmpeg)
	cfg.ffprobe = os.Getenv(EnvFFprobe)

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	if exts := os.Getenv(EnvExts); exts != "" {
		parsed, err := parseExtensions(exts)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvExts, err)
		}
		cfg.extensions = parsed
	}

	// CLI flags win over the environment.
	if ov.Root != "" {
		cfg.rootDir = ov.Root
	}
	if ov.Ledger != "" {
		cfg.ledgerPath = ov.Ledger
	}
	if ov.Port != 0 {
		cfg.port = ov.Port
	}
	if ov.Headless {
		cfg.headless = true
	}

	if cfg.rootDir != "" {
		abs, err := filepath.Abs(cfg.rootDir)
		if err != nil {
			return nil, fmt.Errorf("invalid root dir: %w", err)
		}
		cfg.rootDir = abs
	}

	return cfg, nil
}

// RootDir returns the video root directory under review
func (c *EnvConfig) RootDir() string {
	return c.rootDir
}

// LedgerPath returns the path to the labeling ledger CSV.
// Defaults to <root>/labels.csv when not configured.
func (c *EnvConfig) LedgerPath() string {
	if c.ledgerPath != "" {
		return c.ledgerPath
	}
	return filepath.Join(c.rootDir, LedgerFilename)
}

// FailuresDir returns the reserved clip output directory under the root
func (c *EnvConfig) FailuresDir() string {
	return filepath.Join(c.rootDir, FailuresDirName)
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// AuthToken returns the optional API bearer token; empty disables auth
func (c *EnvConfig) AuthToken() string {
	return c.authToken
}

// Headless reports whether the system tray should be skipped
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobe
}

// Extensions returns the video extension allow-list, lower-cased,
// each entry starting with a dot.
func (c *EnvConfig) Extensions() []string {
	return c.extensions
}

func (c *EnvConfig) CopyTimeout() time.Duration {
	return DefaultCopyTimeout * time.Second
}

func (c *EnvConfig) ReencodeTimeout() time.Duration {
	return DefaultReencodeTimeout * time.Second
}

func parseExtensions(raw string) ([]string, error) {
	var exts []string
	for _, part := range strings.Split(raw, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext == "." {
			return nil, fmt.Errorf("empty extension in list %q", raw)
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("extension list %q contains no usable entries", raw)
	}
	return exts, nil
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
