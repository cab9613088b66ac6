// Package attendance records entry/exit events and derives the daily status
// and summary views from them.
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/punchclock/internal/models"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"

	DefaultDuplicateWindow = 10 * time.Second
)

// Store persists ledger events. AppendEvent must be durable before it returns.
type Store interface {
	LoadEvents(ctx context.Context) ([]models.AttendanceEvent, error)
	AppendEvent(ctx context.Context, ev models.AttendanceEvent) error
}

type Reason string

const (
	ReasonAccepted     Reason = "accepted"
	ReasonDuplicate    Reason = "duplicate"
	ReasonNotCheckedIn Reason = "not_checked_in"
)

// Result is the outcome of a punch. Rejections are results, not errors.
type Result struct {
	Accepted bool
	Reason   Reason
	Message  string
	Event    *models.AttendanceEvent
}

type Options struct {
	// DuplicateWindow suppresses a repeated event of the same kind.
	DuplicateWindow time.Duration
	// Location decides where a calendar day starts. Defaults to time.Local.
	Location *time.Location
}

// Ledger owns the in-memory event log mirrored to its Store.
type Ledger struct {
	store  Store
	window time.Duration
	loc    *time.Location

	mu     sync.RWMutex
	events []models.AttendanceEvent
}

func NewLedger(ctx context.Context, store Store, opts Options) (*Ledger, error) {
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	events, err := store.LoadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load attendance events: %w", err)
	}

	l := &Ledger{
		store:  store,
		window: opts.DuplicateWindow,
		loc:    opts.Location,
		events: make([]models.AttendanceEvent, 0, len(events)),
	}
	for _, ev := range events {
		if ev.Name == "" || !ev.Kind.Valid() || ev.OccurredAt.IsZero() {
			slog.Warn("skipping malformed attendance record", "id", ev.ID, "name", ev.Name, "kind", ev.Kind)
			continue
		}
		if ev.Date == "" {
			ev.Date = ev.OccurredAt.In(l.loc).Format(DateLayout)
		}
		if ev.Time == "" {
			ev.Time = ev.OccurredAt.In(l.loc).Format(TimeLayout)
		}
		if d, ok := ev.Duration(); ok && ev.DurationString == "" {
			ev.DurationString = FormatDuration(d)
		}
		l.events = append(l.events, ev)
	}

	slog.Info("attendance ledger loaded", "events", len(l.events))
	return l, nil
}

func (l *Ledger) Location() *time.Location {
	return l.loc
}

// PunchIn records an entry unless the same person punched in within the
// duplicate window. There is no per-day cap on entries.
func (l *Ledger) PunchIn(ctx context.Context, name string, identityID int, now time.Time) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if recent, ok := l.recentLocked(name, now); ok && recent.Kind == models.EventEntry {
		return Result{
			Reason:  ReasonDuplicate,
			Message: fmt.Sprintf("%s already punched in at %s", name, recent.Time),
		}, nil
	}

	ev := l.newEvent(name, identityID, models.EventEntry, now)
	if err := l.appendLocked(ctx, ev); err != nil {
		return Result{}, err
	}

	return Result{
		Accepted: true,
		Reason:   ReasonAccepted,
		Message:  fmt.Sprintf("%s punched in at %s", name, ev.Time),
		Event:    &ev,
	}, nil
}

// PunchOut records an exit. It requires an entry earlier the same day and
// computes the duration against the latest such entry.
func (l *Ledger) PunchOut(ctx context.Context, name string, identityID int, now time.Time) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if recent, ok := l.recentLocked(name, now); ok && recent.Kind == models.EventExit {
		return Result{
			Reason:  ReasonDuplicate,
			Message: fmt.Sprintf("%s already punched out at %s", name, recent.Time),
		}, nil
	}

	if l.statusLocked(name, now) == models.StatusNone {
		return Result{
			Reason:  ReasonNotCheckedIn,
			Message: fmt.Sprintf("%s has not punched in yet today", name),
		}, nil
	}

	ev := l.newEvent(name, identityID, models.EventExit, now)
	if entry, ok := l.lastOfKindLocked(name, models.EventEntry, ev.Date); ok {
		d := now.Sub(entry.OccurredAt)
		hours := d.Hours()
		ev.DurationHours = &hours
		ev.DurationString = FormatDuration(d)
	}

	if err := l.appendLocked(ctx, ev); err != nil {
		return Result{}, err
	}

	msg := fmt.Sprintf("%s punched out at %s", name, ev.Time)
	if ev.DurationString != "" {
		msg += " (worked " + ev.DurationString + ")"
	}
	return Result{
		Accepted: true,
		Reason:   ReasonAccepted,
		Message:  msg,
		Event:    &ev,
	}, nil
}

// StatusToday derives the status from the last event of name today.
func (l *Ledger) StatusToday(name string, now time.Time) models.DailyStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statusLocked(name, now)
}

// SummaryRow is one person's attendance for a day.
type SummaryRow struct {
	Name     string
	Status   models.DailyStatus
	EntryAt  *time.Time
	ExitAt   *time.Time
	Duration *time.Duration
}

// SummaryToday groups today's events per name in order of first appearance.
// Names without an entry today are omitted.
func (l *Ledger) SummaryToday(now time.Time) []SummaryRow {
	return l.SummaryFor(l.Day(now))
}

// SummaryFor is SummaryToday for an explicit YYYY-MM-DD date.
func (l *Ledger) SummaryFor(date string) []SummaryRow {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summarize(l.events, date)
}

// Summarize folds the events of date into one row per name, keeping the
// latest entry and exit. Rows follow the order of each name's first event.
func Summarize(events []models.AttendanceEvent, date string) []SummaryRow {
	rows := make(map[string]*SummaryRow)
	var order []string
	for i := range events {
		ev := events[i]
		if ev.Date != date {
			continue
		}
		row, ok := rows[ev.Name]
		if !ok {
			row = &SummaryRow{Name: ev.Name}
			rows[ev.Name] = row
			order = append(order, ev.Name)
		}
		at := ev.OccurredAt
		switch ev.Kind {
		case models.EventEntry:
			if row.EntryAt == nil || at.After(*row.EntryAt) {
				row.EntryAt = &at
			}
		case models.EventExit:
			if row.ExitAt == nil || at.After(*row.ExitAt) {
				row.ExitAt = &at
				row.Duration = nil
				if d, ok := ev.Duration(); ok {
					row.Duration = &d
				}
			}
		}
	}

	out := make([]SummaryRow, 0, len(order))
	for _, name := range order {
		row := rows[name]
		switch {
		case row.EntryAt != nil && row.ExitAt != nil:
			row.Status = models.StatusCompleted
		case row.EntryAt != nil:
			row.Status = models.StatusCheckedIn
		default:
			continue
		}
		out = append(out, *row)
	}
	return out
}

// Events returns the events recorded on date, or all events if date is empty.
func (l *Ledger) Events(date string) []models.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.AttendanceEvent, 0, len(l.events))
	for _, ev := range l.events {
		if date == "" || ev.Date == date {
			out = append(out, ev)
		}
	}
	return out
}

// Day formats t as the ledger's calendar date.
func (l *Ledger) Day(t time.Time) string {
	return t.In(l.loc).Format(DateLayout)
}

func (l *Ledger) newEvent(name string, identityID int, kind models.EventKind, now time.Time) models.AttendanceEvent {
	local := now.In(l.loc)
	return models.AttendanceEvent{
		ID:         uuid.New(),
		Name:       name,
		IdentityID: identityID,
		Kind:       kind,
		OccurredAt: now,
		Date:       local.Format(DateLayout),
		Time:       local.Format(TimeLayout),
	}
}

// appendLocked writes through to the store first so a failed write leaves
// memory untouched.
func (l *Ledger) appendLocked(ctx context.Context, ev models.AttendanceEvent) error {
	if err := l.store.AppendEvent(ctx, ev); err != nil {
		return fmt.Errorf("append attendance event: %w", err)
	}
	l.events = append(l.events, ev)
	slog.Info("attendance recorded", "name", ev.Name, "kind", ev.Kind, "time", ev.Time, "duration", ev.DurationString)
	return nil
}

// recentLocked returns the latest event for name inside the duplicate window.
func (l *Ledger) recentLocked(name string, now time.Time) (models.AttendanceEvent, bool) {
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Name != name {
			continue
		}
		age := now.Sub(ev.OccurredAt)
		if age <= l.window {
			return ev, true
		}
		return models.AttendanceEvent{}, false
	}
	return models.AttendanceEvent{}, false
}

func (l *Ledger) statusLocked(name string, now time.Time) models.DailyStatus {
	day := l.Day(now)
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Name != name || ev.Date != day {
			continue
		}
		if ev.Kind == models.EventExit {
			return models.StatusCompleted
		}
		return models.StatusCheckedIn
	}
	return models.StatusNone
}

func (l *Ledger) lastOfKindLocked(name string, kind models.EventKind, day string) (models.AttendanceEvent, bool) {
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Name == name && ev.Kind == kind && ev.Date == day {
			return ev, true
		}
	}
	return models.AttendanceEvent{}, false
}

// FormatDuration renders d as "8h 05m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %02dm", h, m)
}
