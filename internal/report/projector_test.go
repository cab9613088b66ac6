package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/report"
	"github.com/your-org/punchclock/pkg/dto"
)

type memSink struct {
	objects map[string][]byte
	puts    int
	err     error
}

func (s *memSink) PutObject(_ context.Context, key string, data []byte, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.puts++
	s.objects[key] = data
	return nil
}

func event(name string, kind models.EventKind, at time.Time, hours *float64) models.AttendanceEvent {
	return models.AttendanceEvent{
		ID:            uuid.New(),
		Name:          name,
		Kind:          kind,
		OccurredAt:    at,
		Date:          at.Format("2006-01-02"),
		Time:          at.Format("15:04:05"),
		DurationHours: hours,
	}
}

func decode(t *testing.T, data []byte) dto.SummaryResponse {
	t.Helper()
	var resp dto.SummaryResponse
	gt.NoError(t, json.Unmarshal(data, &resp))
	return resp
}

func TestApplyWritesDayReport(t *testing.T) {
	sink := &memSink{objects: map[string][]byte{}}
	p := report.NewProjector(sink, time.UTC)

	in := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	p.Seed([]models.AttendanceEvent{event("Alice", models.EventEntry, in, nil)})
	gt.Equal(t, sink.puts, 0)

	hours := 8.0
	gt.NoError(t, p.Apply(context.Background(), event("Alice", models.EventExit, in.Add(8*time.Hour), &hours)))

	data, ok := sink.objects["reports/2024-03-01.json"]
	gt.True(t, ok)
	resp := decode(t, data)
	gt.Equal(t, resp.Date, "2024-03-01")
	gt.Equal(t, len(resp.Rows), 1)
	gt.Equal(t, resp.Rows[0].Name, "Alice")
	gt.Equal(t, resp.Rows[0].Label, "Completed")
	gt.Equal(t, resp.Rows[0].Entry, "09:00:00")
	gt.Equal(t, resp.Rows[0].Exit, "17:00:00")
	gt.Equal(t, resp.Rows[0].Duration, "8h 00m")
}

func TestApplyIgnoresRedelivery(t *testing.T) {
	sink := &memSink{objects: map[string][]byte{}}
	p := report.NewProjector(sink, time.UTC)

	ev := event("Bob", models.EventEntry, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), nil)
	gt.NoError(t, p.Apply(context.Background(), ev))
	gt.NoError(t, p.Apply(context.Background(), ev))
	gt.Equal(t, sink.puts, 1)

	resp := decode(t, sink.objects[report.Key("2024-03-01")])
	gt.Equal(t, len(resp.Rows), 1)
	gt.Equal(t, resp.Rows[0].Label, "Checked In")
}

func TestApplyKeepsEventWhenSinkFails(t *testing.T) {
	sink := &memSink{objects: map[string][]byte{}, err: errors.New("bucket gone")}
	p := report.NewProjector(sink, time.UTC)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	gt.Error(t, p.Apply(context.Background(), event("Carol", models.EventEntry, at, nil)))

	sink.err = nil
	gt.NoError(t, p.Apply(context.Background(), event("Dave", models.EventEntry, at.Add(time.Minute), nil)))
	resp := decode(t, sink.objects[report.Key("2024-03-01")])
	gt.Equal(t, len(resp.Rows), 2)
	gt.Equal(t, resp.Rows[0].Name, "Carol")
}

func TestRenderUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	p := report.NewProjector(&memSink{objects: map[string][]byte{}}, loc)

	ev := event("Erin", models.EventEntry, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), nil)
	p.Seed([]models.AttendanceEvent{ev})

	data, err := p.Render("2024-03-01")
	gt.NoError(t, err)
	gt.Equal(t, decode(t, data).Rows[0].Entry, "09:00:00")

	data, err = p.Render("2024-03-02")
	gt.NoError(t, err)
	gt.Equal(t, len(decode(t, data).Rows), 0)
}

func TestApplyDatesUndatedEvent(t *testing.T) {
	sink := &memSink{objects: map[string][]byte{}}
	loc := time.FixedZone("UTC-5", -5*60*60)
	p := report.NewProjector(sink, loc)

	ev := event("Frank", models.EventEntry, time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC), nil)
	ev.Date = ""
	gt.NoError(t, p.Apply(context.Background(), ev))

	_, ok := sink.objects["reports/.json"]
	gt.False(t, ok)
	data, ok := sink.objects[report.Key("2024-03-01")]
	gt.True(t, ok)
	resp := decode(t, data)
	gt.Equal(t, resp.Date, "2024-03-01")
	gt.Equal(t, resp.Rows[0].Name, "Frank")
	gt.Equal(t, resp.Rows[0].Entry, "21:00:00")
}

func TestDates(t *testing.T) {
	keys := []string{
		"reports/2024-03-02.json",
		"reports/2024-03-01.json",
		"reports/.json",
		"reports/notes.txt",
		"captures/2024-03-01/entry/x.jpg",
	}
	gt.Equal(t, report.Dates(keys), []string{"2024-03-01", "2024-03-02"})
	gt.Equal(t, report.Dates(nil), []string{})
}
