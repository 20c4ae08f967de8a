package api

type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	UptimeS   int64  `json:"uptime_s"`
	SessionID string `json:"session_id"`
}

// SessionResponse is the full review state the UI renders from. Every
// mutating endpoint returns it so the client never needs a follow-up poll.
type SessionResponse struct {
	SessionID  string           `json:"session_id"`
	Done       bool             `json:"done"`
	Video      string           `json:"video,omitempty"`
	VideoName  string           `json:"video_name,omitempty"`
	Index      int              `json:"index"`
	Pending    int              `json:"pending"`
	Catalog    int              `json:"catalog"`
	Arrivals   int              `json:"arrivals"`
	DurationMs int64            `json:"duration_ms,omitempty"`
	Stats      StatsResponse    `json:"stats"`
	Segment    *SegmentResponse `json:"segment,omitempty"`
}

type StatsResponse struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Uncertain int `json:"uncertain"`
}

// SegmentResponse is present only while segment selection is active.
type SegmentResponse struct {
	Busy     bool  `json:"busy"`
	StartSet bool  `json:"start_set"`
	EndSet   bool  `json:"end_set"`
	StartMs  int64 `json:"start_ms"`
	EndMs    int64 `json:"end_ms"`
}

type UncertainRequest struct {
	Note string `json:"note,omitempty"`
}

type MarkRequest struct {
	PositionMs int64 `json:"position_ms"`
}

// ConfirmResponse extends the session state with the path of the clip the
// confirm produced.
type ConfirmResponse struct {
	SessionResponse
	Clip string `json:"clip"`
}

// PreviousResponse extends the session state with the label that was undone.
type PreviousResponse struct {
	SessionResponse
	UndoneVideo string `json:"undone_video"`
	UndoneLabel string `json:"undone_label"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
