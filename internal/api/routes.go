package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vidtriage/vidtriage/internal/config"
	"github.com/vidtriage/vidtriage/internal/export"
	"github.com/vidtriage/vidtriage/internal/extractor"
	"github.com/vidtriage/vidtriage/internal/segment"
	"github.com/vidtriage/vidtriage/internal/session"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	probe := newProbeCache(cfg.Prober)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthToken, cfg.Logger))

		r.Get("/", uiHandler())
		r.Get("/session", sessionHandler(cfg, probe))
		r.Post("/session/pass", passHandler(cfg, probe))
		r.Post("/session/uncertain", uncertainHandler(cfg, probe))
		r.Post("/session/fail", failBeginHandler(cfg, probe))
		r.Post("/session/segment/start", markHandler(cfg, probe, cfg.Session.MarkStart))
		r.Post("/session/segment/end", markHandler(cfg, probe, cfg.Session.MarkEnd))
		r.Post("/session/segment/confirm", confirmHandler(cfg, probe))
		r.Post("/session/segment/cancel", cancelHandler(cfg, probe))
		r.Post("/session/previous", previousHandler(cfg, probe))
		r.Get("/playback/current", playbackHandler(cfg))
		r.Get("/export/edl", exportEDLHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Version:   config.Version,
			UptimeS:   int64(time.Since(cfg.StartTime).Seconds()),
			SessionID: cfg.Session.ID(),
		})
	}
}

// probeCache memoizes the ffprobe duration for the video under review so
// polling /session does not fork a process per request.
type probeCache struct {
	prober Prober

	mu   sync.Mutex
	path string
	ms   int64
}

func newProbeCache(p Prober) *probeCache {
	return &probeCache{prober: p}
}

func (c *probeCache) durationMs(ctx context.Context, path string) int64 {
	if c.prober == nil || path == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == path {
		return c.ms
	}
	ms, err := c.prober.ProbeDurationMs(ctx, path)
	if err != nil {
		ms = 0
	}
	c.path, c.ms = path, ms
	return ms
}

func sessionState(ctx context.Context, cfg ServerConfig, probe *probeCache) SessionResponse {
	s := cfg.Session
	index, pending := s.Position()
	stats := s.Stats()

	resp := SessionResponse{
		SessionID: s.ID(),
		Done:      s.Done(),
		Index:     index,
		Pending:   pending,
		Catalog:   s.CatalogSize(),
		Arrivals:  s.Arrivals(),
		Stats: StatsResponse{
			Total:     stats.Total,
			Passed:    stats.Passed,
			Failed:    stats.Failed,
			Uncertain: stats.Uncertain,
		},
	}

	if video, ok := s.Current(); ok {
		resp.Video = video
		resp.VideoName = filepath.Base(video)
		resp.DurationMs = probe.durationMs(ctx, video)
	}

	if snap := s.Segment(); snap.Active {
		resp.Segment = &SegmentResponse{
			Busy:     snap.Busy,
			StartSet: snap.StartSet,
			EndSet:   snap.EndSet,
			StartMs:  snap.StartMs,
			EndMs:    snap.EndMs,
		}
	}
	return resp
}

func sessionHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func passHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Pass(); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func uncertainHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UncertainRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		if err := cfg.Session.Uncertain(req.Note); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func failBeginHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.FailBegin(); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func markHandler(cfg ServerConfig, probe *probeCache, mark func(int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MarkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.PositionMs < 0 {
			WriteError(w, http.StatusUnprocessableEntity, "position_ms must be non-negative", "VALIDATION")
			return
		}
		if err := mark(req.PositionMs); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func confirmHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clip, err := cfg.Session.ConfirmSegment(r.Context())
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ConfirmResponse{
			SessionResponse: sessionState(r.Context(), cfg, probe),
			Clip:            clip,
		})
	}
}

func cancelHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.CancelSegment(); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionState(r.Context(), cfg, probe))
	}
}

func previousHandler(cfg ServerConfig, probe *probeCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := cfg.Session.Previous()
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, PreviousResponse{
			SessionResponse: sessionState(r.Context(), cfg, probe),
			UndoneVideo:     removed.VideoPath,
			UndoneLabel:     removed.Label.String(),
		})
	}
}

func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := cfg.Ledger.Entries()

		fps := 30.0
		if raw := r.URL.Query().Get("fps"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 {
				WriteError(w, http.StatusUnprocessableEntity, "fps must be a positive number", "VALIDATION")
				return
			}
			fps = parsed
		}

		title := export.SanitizeTitle(filepath.Base(cfg.Root)+" failures", 70)
		edl := export.GenerateEDL(export.CutList(entries), title, fps)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="failures.edl"`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := cfg.Session.Current()
		if !ok {
			WriteError(w, http.StatusNotFound, "no video under review", "NO_CURRENT")
			return
		}
		cfg.Streamer.ServeVideo(w, r, video)
	}
}

// writeSessionError maps domain errors onto HTTP statuses and stable codes.
func writeSessionError(w http.ResponseWriter, err error) {
	var validation *segment.ValidationError
	var toolErr *extractor.ToolError
	var timeoutErr *extractor.TimeoutError

	switch {
	case errors.Is(err, session.ErrNoCurrent):
		WriteError(w, http.StatusConflict, err.Error(), "SESSION_DONE")
	case errors.Is(err, session.ErrSegmentActive):
		WriteError(w, http.StatusConflict, err.Error(), "SEGMENT_ACTIVE")
	case errors.Is(err, session.ErrAtFirst):
		WriteError(w, http.StatusConflict, err.Error(), "AT_FIRST")
	case errors.Is(err, segment.ErrToolUnavailable):
		WriteError(w, http.StatusConflict, err.Error(), "TOOL_MISSING")
	case errors.Is(err, segment.ErrAlreadySelecting):
		WriteError(w, http.StatusConflict, err.Error(), "SEGMENT_ACTIVE")
	case errors.Is(err, segment.ErrNotSelecting):
		WriteError(w, http.StatusConflict, err.Error(), "NO_SELECTION")
	case errors.Is(err, segment.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "EXTRACTION_BUSY")
	case errors.As(err, &validation):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "VALIDATION")
	case errors.As(err, &toolErr), errors.As(err, &timeoutErr):
		WriteError(w, http.StatusBadGateway, err.Error(), "EXTRACTION_FAILED")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
