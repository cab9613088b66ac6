// Package report keeps per-day attendance summaries in object storage,
// rebuilt from the attendance event stream.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/pkg/dto"
)

// Sink stores rendered reports.
type Sink interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

type Projector struct {
	sink Sink
	loc  *time.Location

	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
	days map[string][]models.AttendanceEvent
}

func NewProjector(sink Sink, loc *time.Location) *Projector {
	if loc == nil {
		loc = time.Local
	}
	return &Projector{
		sink: sink,
		loc:  loc,
		seen: make(map[uuid.UUID]struct{}),
		days: make(map[string][]models.AttendanceEvent),
	}
}

// Prefix holds every report object.
const Prefix = "reports/"

// Key is the object key of the report for date.
func Key(date string) string {
	return Prefix + date + ".json"
}

// Dates picks the report dates out of object keys, oldest first. Keys that
// are not reports are ignored.
func Dates(keys []string) []string {
	dates := make([]string, 0, len(keys))
	for _, key := range keys {
		date, ok := strings.CutPrefix(key, Prefix)
		if !ok {
			continue
		}
		date, ok = strings.CutSuffix(date, ".json")
		if !ok {
			continue
		}
		if _, err := time.Parse(attendance.DateLayout, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}

// Seed loads history without writing reports.
func (p *Projector) Seed(events []models.AttendanceEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range events {
		p.addLocked(p.dated(ev))
	}
}

// Apply records ev and rewrites its day's report. Redelivered events are
// ignored. The event is kept even when the write fails so the next event of
// the day catches the report up.
func (p *Projector) Apply(ctx context.Context, ev models.AttendanceEvent) error {
	ev = p.dated(ev)
	date := ev.Date

	p.mu.Lock()
	if !p.addLocked(ev) {
		p.mu.Unlock()
		slog.Debug("report: duplicate event", "id", ev.ID)
		return nil
	}
	data, err := p.renderLocked(date)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := p.sink.PutObject(ctx, Key(date), data, "application/json"); err != nil {
		return fmt.Errorf("write report %s: %w", date, err)
	}
	slog.Info("report updated", "date", date, "name", ev.Name, "kind", ev.Kind)
	return nil
}

// Render returns the current report for date.
func (p *Projector) Render(date string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.renderLocked(date)
}

// dated fills a missing calendar day from the event time.
func (p *Projector) dated(ev models.AttendanceEvent) models.AttendanceEvent {
	if ev.Date == "" {
		ev.Date = ev.OccurredAt.In(p.loc).Format(attendance.DateLayout)
	}
	return ev
}

func (p *Projector) addLocked(ev models.AttendanceEvent) bool {
	if _, ok := p.seen[ev.ID]; ok {
		return false
	}
	p.seen[ev.ID] = struct{}{}
	p.days[ev.Date] = append(p.days[ev.Date], ev)
	return true
}

func (p *Projector) renderLocked(date string) ([]byte, error) {
	rows := attendance.Summarize(p.days[date], date)
	data, err := json.MarshalIndent(dto.FromSummary(date, rows, p.loc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}
