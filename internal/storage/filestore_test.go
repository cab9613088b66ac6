package storage_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"

	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/storage"
)

func TestFileStoreEmptyDir(t *testing.T) {
	ctx := context.Background()
	s, err := storage.NewFileStore(t.TempDir())
	gt.NoError(t, err)

	ids, err := s.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(ids), 0)

	events, err := s.LoadEvents(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(events), 0)
	gt.NoError(t, s.Ping(ctx))
}

func TestFileStoreIdentitiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	in := []models.Identity{
		{ID: 0, Name: "Alice", Vector: []float32{1, 2, 3}, RegisteredAt: at},
		{ID: 1, Name: "Bob", Vector: []float32{4, 5, 6}, RegisteredAt: at},
	}
	gt.NoError(t, s.SaveIdentities(ctx, in))

	// a fresh store sees what the first one wrote
	s2, err := storage.NewFileStore(dir)
	gt.NoError(t, err)
	out, err := s2.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(out), 2)
	gt.Equal(t, out[1].Name, "Bob")
	gt.Equal(t, out[1].Vector, []float32{4, 5, 6})
	gt.True(t, out[0].RegisteredAt.Equal(at))

	// vectors never leak into the metadata file
	raw, err := os.ReadFile(filepath.Join(dir, "registered_faces", "faces.json"))
	gt.NoError(t, err)
	var records []map[string]any
	gt.NoError(t, json.Unmarshal(raw, &records))
	gt.Equal(t, len(records), 2)
	for _, r := range records {
		gt.Equal(t, len(r), 3)
	}
}

func TestFileStoreVectorCountMismatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	gt.NoError(t, s.SaveIdentities(ctx, []models.Identity{
		{ID: 0, Name: "Alice", Vector: []float32{1}},
		{ID: 1, Name: "Bob", Vector: []float32{2}},
	}))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "registered_faces", "encodings.json"), []byte("[[1]]"), 0o600))

	out, err := s.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(out), 2)
	gt.Equal(t, out[0].Vector, []float32{1})
	gt.True(t, out[1].Vector == nil)
}

func TestFileStoreCorruptFilesLoadEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "registered_faces"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "registered_faces", "faces.json"), []byte("{not json"), 0o600))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "attendance_logs.json"), []byte("   \n"), 0o600))

	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	ids, err := s.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(ids), 0)

	events, err := s.LoadEvents(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(events), 0)
}

func TestFileStoreAppendEvents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	hours := 8.5
	entry := models.AttendanceEvent{
		ID: uuid.New(), Name: "Alice", Kind: models.EventEntry,
		OccurredAt: at, Date: "2024-03-01", Time: "09:00:00",
	}
	exit := models.AttendanceEvent{
		ID: uuid.New(), Name: "Alice", Kind: models.EventExit,
		OccurredAt: at.Add(8*time.Hour + 30*time.Minute), Date: "2024-03-01", Time: "17:30:00",
		DurationHours: &hours, DurationString: "8h 30m",
	}
	gt.NoError(t, s.AppendEvent(ctx, entry))
	gt.NoError(t, s.AppendEvent(ctx, exit))

	s2, err := storage.NewFileStore(dir)
	gt.NoError(t, err)
	events, err := s2.LoadEvents(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(events), 2)
	gt.Equal(t, events[0].ID, entry.ID)
	gt.Equal(t, events[1].Kind, models.EventExit)
	gt.Equal(t, *events[1].DurationHours, 8.5)
	gt.Equal(t, events[1].DurationString, "8h 30m")

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	gt.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	gt.Equal(t, names, []string{"attendance_logs.json", "registered_faces"})
}

func TestFileStoreAppendFailureKeepsLog(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	gt.NoError(t, s.AppendEvent(ctx, models.AttendanceEvent{
		ID: uuid.New(), Name: "Alice", Kind: models.EventEntry, OccurredAt: time.Now(),
	}))

	gt.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	err = s.AppendEvent(ctx, models.AttendanceEvent{
		ID: uuid.New(), Name: "Bob", Kind: models.EventEntry, OccurredAt: time.Now(),
	})
	gt.Error(t, err)

	events, err := s.LoadEvents(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(events), 1)
}

func TestFileStoreSkipsMalformedEventRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	// the middle record carries a timestamp without a zone
	log := `[
  {"id": "6f1c9a3e-0a4e-4c59-9d53-6a1b0f0f0001", "name": "Alice", "face_id": 0, "kind": "entry",
   "timestamp": "2024-01-15T09:00:00Z", "date": "2024-01-15", "time": "09:00:00"},
  {"id": "6f1c9a3e-0a4e-4c59-9d53-6a1b0f0f0002", "name": "Bob", "face_id": 1, "kind": "entry",
   "timestamp": "2024-01-15T09:05:00", "date": "2024-01-15", "time": "09:05:00"},
  {"id": "6f1c9a3e-0a4e-4c59-9d53-6a1b0f0f0003", "name": "Carol", "face_id": 2, "kind": "entry",
   "timestamp": "2024-01-15T09:10:00Z", "date": "2024-01-15", "time": "09:10:00"}
]`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "attendance_logs.json"), []byte(log), 0o600))

	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)
	events, err := s.LoadEvents(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(events), 2)
	gt.Equal(t, events[0].Name, "Alice")
	gt.Equal(t, events[1].Name, "Carol")

	gt.NoError(t, s.AppendEvent(ctx, models.AttendanceEvent{
		ID: uuid.New(), Name: "Dave", Kind: models.EventEntry,
		OccurredAt: time.Date(2024, 1, 15, 9, 20, 0, 0, time.UTC), Date: "2024-01-15", Time: "09:20:00",
	}))

	s2, err := storage.NewFileStore(dir)
	gt.NoError(t, err)
	events, err = s2.LoadEvents(ctx)
	gt.NoError(t, err)
	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	gt.Equal(t, names, []string{"Alice", "Carol", "Dave"})

	// the unreadable record stays on disk
	raw, err := os.ReadFile(filepath.Join(dir, "attendance_logs.json"))
	gt.NoError(t, err)
	var records []map[string]any
	gt.NoError(t, json.Unmarshal(raw, &records))
	gt.Equal(t, len(records), 4)
	gt.Equal(t, records[1]["name"], any("Bob"))
}

func TestFileStoreSkipsMalformedIdentityRecord(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "registered_faces"), 0o755))
	faces := `[
  {"id": 0, "name": "Alice", "registered_at": "2024-01-15T09:00:00Z"},
  {"id": 1, "name": "Bob", "registered_at": "yesterday"},
  {"id": 2, "name": "Carol", "registered_at": "2024-01-15T09:10:00Z"}
]`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "registered_faces", "faces.json"), []byte(faces), 0o600))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "registered_faces", "encodings.json"), []byte("[[1],[2],[3]]"), 0o600))

	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)
	ids, err := s.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(ids), 2)
	gt.Equal(t, ids[0].Name, "Alice")
	gt.Equal(t, ids[0].Vector, []float32{1})
	gt.Equal(t, ids[1].Name, "Carol")
	gt.Equal(t, ids[1].ID, 2)
	gt.Equal(t, ids[1].Vector, []float32{3})
}

func TestFileStoreKeepsVectorsAligned(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewFileStore(dir)
	gt.NoError(t, err)

	gt.NoError(t, s.SaveIdentities(ctx, []models.Identity{
		{ID: 0, Name: "Alice"},
		{ID: 1, Name: "Bob", Vector: []float32{2}},
	}))

	out, err := s.LoadIdentities(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(out), 2)
	gt.True(t, out[0].Vector == nil)
	gt.Equal(t, out[1].Name, "Bob")
	gt.Equal(t, out[1].Vector, []float32{2})
}
