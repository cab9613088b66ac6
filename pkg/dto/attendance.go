package dto

// PunchRequest carries a feature vector computed at the edge. Image uploads
// use multipart fields "image" and optional "region" instead.
type PunchRequest struct {
	Vector []float32 `json:"vector" binding:"required,min=1"`
}

type LivenessRequest struct {
	EyesVisible *bool `json:"eyes_visible" binding:"required"`
}

type LivenessResponse struct {
	Status    string `json:"status"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Message   string `json:"message"`
}

type PunchResponse struct {
	Accepted   bool              `json:"accepted"`
	Pending    bool              `json:"pending"`
	Reason     string            `json:"reason"`
	Message    string            `json:"message"`
	Name       string            `json:"name,omitempty"`
	IdentityID *int              `json:"identity_id,omitempty"`
	Confidence float64           `json:"confidence"`
	Distance   *float64          `json:"distance,omitempty"`
	NoMatch    string            `json:"no_match,omitempty"`
	Liveness   *LivenessResponse `json:"liveness,omitempty"`
	Event      *EventResponse    `json:"event,omitempty"`
	CaptureKey string            `json:"capture_key,omitempty"`
}

type PendingResponse struct {
	Pending    bool    `json:"pending"`
	Name       string  `json:"name,omitempty"`
	IdentityID *int    `json:"identity_id,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Since      string  `json:"since,omitempty"`
	State      string  `json:"state,omitempty"`
}

type EventResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	FaceID        int      `json:"face_id"`
	Kind          string   `json:"kind"`
	Timestamp     string   `json:"timestamp"`
	Date          string   `json:"date"`
	Time          string   `json:"time"`
	DurationHours *float64 `json:"duration_hours,omitempty"`
	Duration      string   `json:"duration,omitempty"`
}

type EventListResponse struct {
	Date   string          `json:"date"`
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

type StatusResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Label  string `json:"label"`
}

type SummaryRow struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Label    string `json:"label"`
	Entry    string `json:"entry,omitempty"`
	Exit     string `json:"exit,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type SummaryResponse struct {
	Date string       `json:"date"`
	Rows []SummaryRow `json:"rows"`
}

type ReportListResponse struct {
	Dates []string `json:"dates"`
	Total int      `json:"total"`
}
