package dto

import (
	"time"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/models"
)

const timestampLayout = time.RFC3339

func FromEvent(ev models.AttendanceEvent) EventResponse {
	return EventResponse{
		ID:            ev.ID.String(),
		Name:          ev.Name,
		FaceID:        ev.IdentityID,
		Kind:          string(ev.Kind),
		Timestamp:     ev.OccurredAt.Format(timestampLayout),
		Date:          ev.Date,
		Time:          ev.Time,
		DurationHours: ev.DurationHours,
		Duration:      ev.DurationString,
	}
}

func FromIdentity(id models.Identity) IdentityResponse {
	return IdentityResponse{
		ID:           id.ID,
		Name:         id.Name,
		Dim:          len(id.Vector),
		RegisteredAt: id.RegisteredAt.Format(timestampLayout),
	}
}

// FromSummary renders ledger rows with wall-clock times in loc.
func FromSummary(date string, rows []attendance.SummaryRow, loc *time.Location) SummaryResponse {
	resp := SummaryResponse{Date: date, Rows: make([]SummaryRow, 0, len(rows))}
	for _, r := range rows {
		row := SummaryRow{Name: r.Name, Status: string(r.Status), Label: r.Status.Label()}
		if r.EntryAt != nil {
			row.Entry = r.EntryAt.In(loc).Format(attendance.TimeLayout)
		}
		if r.ExitAt != nil {
			row.Exit = r.ExitAt.In(loc).Format(attendance.TimeLayout)
		}
		if r.Duration != nil {
			row.Duration = attendance.FormatDuration(*r.Duration)
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp
}
