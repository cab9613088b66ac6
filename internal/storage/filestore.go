package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/your-org/punchclock/internal/models"
)

const (
	facesDir       = "registered_faces"
	facesFile      = "faces.json"
	encodingsFile  = "encodings.json"
	attendanceFile = "attendance_logs.json"
)

// FileStore keeps identities and attendance events as JSON documents under a
// data directory. Identity metadata and vectors live in separate files and are
// joined by position on load.
type FileStore struct {
	dir string

	mu sync.Mutex
	// raw mirrors attendance_logs.json record by record, including records that
	// no longer decode, so appends rewrite the file without losing any of them.
	raw    []json.RawMessage
	events []models.AttendanceEvent
	loaded bool
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, facesDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) facesPath() string     { return filepath.Join(s.dir, facesDir, facesFile) }
func (s *FileStore) encodingsPath() string { return filepath.Join(s.dir, facesDir, encodingsFile) }
func (s *FileStore) eventsPath() string    { return filepath.Join(s.dir, attendanceFile) }

// Ping reports whether the data directory is still reachable.
func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(s.dir)
	return err
}

// --- Identities ---

// LoadIdentities joins faces.json with encodings.json by position. A face
// record that does not decode is skipped together with its vector. Missing or
// null vectors are left unset so that matching refuses to run until the
// registry is repaired.
func (s *FileStore) LoadIdentities(context.Context) ([]models.Identity, error) {
	defer observeStore("file", "load_identities", time.Now())

	faces, err := readRecords(s.facesPath())
	if err != nil {
		return nil, err
	}
	encodings, err := readRecords(s.encodingsPath())
	if err != nil {
		return nil, err
	}
	if len(encodings) != len(faces) {
		slog.Warn("identity metadata and vectors disagree",
			"identities", len(faces), "vectors", len(encodings))
	}

	ids := make([]models.Identity, 0, len(faces))
	for i, rec := range faces {
		var id models.Identity
		if err := json.Unmarshal(rec, &id); err != nil {
			slog.Warn("skipping malformed identity record", "path", s.facesPath(), "index", i, "error", err)
			continue
		}
		if i < len(encodings) {
			var vec []float32
			if err := json.Unmarshal(encodings[i], &vec); err != nil {
				slog.Warn("skipping malformed vector", "path", s.encodingsPath(), "index", i, "error", err)
			} else {
				id.Vector = vec
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveIdentities overwrites both identity files. An identity without a vector
// is written as null in encodings.json to keep the files aligned.
func (s *FileStore) SaveIdentities(_ context.Context, identities []models.Identity) error {
	defer observeStore("file", "save_identities", time.Now())

	vectors := make([][]float32, len(identities))
	for i, id := range identities {
		vectors[i] = id.Vector
	}
	if identities == nil {
		identities = []models.Identity{}
	}

	if err := writeJSON(s.encodingsPath(), vectors); err != nil {
		return err
	}
	return writeJSON(s.facesPath(), identities)
}

// --- Attendance events ---

func (s *FileStore) LoadEvents(context.Context) ([]models.AttendanceEvent, error) {
	defer observeStore("file", "load_events", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadEventsLocked(); err != nil {
		return nil, err
	}
	out := make([]models.AttendanceEvent, len(s.events))
	copy(out, s.events)
	return out, nil
}

// AppendEvent rewrites attendance_logs.json with ev added. Records that did
// not decode on load are written back unchanged. The cache only grows once the
// file is on disk.
func (s *FileStore) AppendEvent(_ context.Context, ev models.AttendanceEvent) error {
	defer observeStore("file", "append_event", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadEventsLocked(); err != nil {
		return err
	}
	rec, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode attendance event: %w", err)
	}
	raw := make([]json.RawMessage, len(s.raw), len(s.raw)+1)
	copy(raw, s.raw)
	raw = append(raw, rec)

	if err := writeJSON(s.eventsPath(), raw); err != nil {
		return err
	}
	s.raw = raw
	s.events = append(s.events, ev)
	return nil
}

func (s *FileStore) loadEventsLocked() error {
	if s.loaded {
		return nil
	}
	raw, err := readRecords(s.eventsPath())
	if err != nil {
		return err
	}
	events := make([]models.AttendanceEvent, 0, len(raw))
	for i, rec := range raw {
		var ev models.AttendanceEvent
		if err := json.Unmarshal(rec, &ev); err != nil {
			slog.Warn("skipping malformed attendance record", "path", s.eventsPath(), "index", i, "error", err)
			continue
		}
		events = append(events, ev)
	}
	s.raw = raw
	s.events = events
	s.loaded = true
	return nil
}

// readRecords splits the JSON array at path into its elements. Missing, empty
// or unparseable files yield no records. Only I/O failures are returned.
func readRecords(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("ignoring corrupt data file", "path", path, "error", err)
		return nil, nil
	}
	return records, nil
}

// writeJSON replaces path atomically.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
