package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventEntry EventKind = "entry"
	EventExit  EventKind = "exit"
)

func (k EventKind) Valid() bool {
	return k == EventEntry || k == EventExit
}

// AttendanceEvent is one ledger record. Events are append-only.
type AttendanceEvent struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	IdentityID     int       `json:"face_id" db:"identity_id"`
	Kind           EventKind `json:"kind" db:"kind"`
	OccurredAt     time.Time `json:"timestamp" db:"occurred_at"`
	Date           string    `json:"date" db:"day"` // YYYY-MM-DD in the ledger's location
	Time           string    `json:"time" db:"-"`   // HH:MM:SS
	DurationHours  *float64  `json:"duration_hours,omitempty" db:"duration_hours"`
	DurationString string    `json:"duration,omitempty" db:"-"`
}

// Duration returns the time since the matching entry for exit events.
func (e AttendanceEvent) Duration() (time.Duration, bool) {
	if e.Kind != EventExit || e.DurationHours == nil {
		return 0, false
	}
	return time.Duration(*e.DurationHours * float64(time.Hour)), true
}

type DailyStatus string

const (
	StatusNone      DailyStatus = "none"
	StatusCheckedIn DailyStatus = "checked-in"
	StatusCompleted DailyStatus = "completed"
)

// Label is the human-readable form used in summaries.
func (s DailyStatus) Label() string {
	switch s {
	case StatusCheckedIn:
		return "Checked In"
	case StatusCompleted:
		return "Completed"
	default:
		return "-"
	}
}
