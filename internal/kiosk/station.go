// Package kiosk drives one attendance station: it matches captured vectors
// against the registry, runs the blink check for entries and records the
// result in the ledger.
package kiosk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/liveness"
	"github.com/your-org/punchclock/internal/matcher"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/observability"
	"github.com/your-org/punchclock/internal/registry"
)

type Reason string

const (
	ReasonAccepted        Reason = "accepted"
	ReasonDuplicate       Reason = "duplicate"
	ReasonNotCheckedIn    Reason = "not_checked_in"
	ReasonNotRecognized   Reason = "not_recognized"
	ReasonIntegrity       Reason = "integrity"
	ReasonLivenessPending Reason = "liveness_pending"
	ReasonNotLive         Reason = "not_live"
	ReasonNoAttempt       Reason = "no_attempt"
)

// Publisher fans accepted events out to other consumers.
type Publisher interface {
	PublishAttendance(ctx context.Context, ev models.AttendanceEvent) error
	PublishRegistration(ctx context.Context, id models.Identity) error
}

type Deps struct {
	Registry  *registry.Registry
	Matcher   *matcher.Matcher
	Liveness  liveness.Config
	Ledger    *attendance.Ledger
	Publisher Publisher        // optional
	Clock     func() time.Time // defaults to time.Now
}

// Outcome is the answer to an entry, exit or eye observation. Rejections are
// outcomes, not errors.
type Outcome struct {
	Accepted   bool
	Pending    bool
	Reason     Reason
	Message    string
	Name       string
	IdentityID int
	Confidence float64
	Distance   float64
	NoMatch    matcher.NoMatchReason
	Liveness   *liveness.Result
	Event      *models.AttendanceEvent
}

// PendingEntry describes an entry waiting for its blink.
type PendingEntry struct {
	Name       string
	IdentityID int
	Confidence float64
	Since      time.Time
	State      liveness.State
}

type Station struct {
	registry  *registry.Registry
	matcher   *matcher.Matcher
	ledger    *attendance.Ledger
	publisher Publisher
	now       func() time.Time

	mu       sync.Mutex
	verifier *liveness.Verifier
	pending  *PendingEntry
}

func New(d Deps) *Station {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Station{
		registry:  d.Registry,
		matcher:   d.Matcher,
		ledger:    d.Ledger,
		publisher: d.Publisher,
		now:       clock,
		verifier:  liveness.New(d.Liveness),
	}
	observability.RegisteredIdentities.Set(float64(d.Registry.Count()))
	return s
}

// Register enrolls name with the average of vectors.
func (s *Station) Register(ctx context.Context, name string, vectors [][]float32) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.registry.Register(ctx, name, vectors, s.now())
	if err != nil {
		return models.Identity{}, err
	}
	observability.RegisteredIdentities.Set(float64(s.registry.Count()))

	if s.publisher != nil {
		if err := s.publisher.PublishRegistration(ctx, id); err != nil {
			slog.Warn("publish registration failed", "id", id.ID, "error", err)
		}
	}
	return id, nil
}

// RequestEntry identifies the person in front of the camera and, on a match,
// starts a blink check. Any previous pending entry is discarded.
func (s *Station) RequestEntry(ctx context.Context, vector []float32) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()

	out, m, ok := s.matchLocked(vector)
	if !ok {
		s.countPunch(models.EventEntry, out.Reason)
		return out, nil
	}

	s.verifier.Reset()
	s.pending = &PendingEntry{
		Name:       m.Name,
		IdentityID: out.IdentityID,
		Confidence: m.Confidence,
		Since:      s.now(),
		State:      s.verifier.State(),
	}
	slog.Debug("entry pending liveness", "name", m.Name, "distance", m.Distance)

	out.Pending = true
	out.Reason = ReasonLivenessPending
	out.Message = fmt.Sprintf("%s recognized, %s", m.Name, liveness.MessagePleaseBlink)
	return out, nil
}

// ObserveEyes feeds one frame's eye visibility to the pending entry. A live
// result punches in, a failed one drops the attempt.
func (s *Station) ObserveEyes(ctx context.Context, eyesVisible bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.pending
	if p == nil {
		return Outcome{Reason: ReasonNoAttempt, Message: "No entry is waiting for a liveness check"}, nil
	}

	now := s.now()
	res := s.verifier.Step(eyesVisible, now)
	p.State = s.verifier.State()

	out := Outcome{
		Name:       p.Name,
		IdentityID: p.IdentityID,
		Confidence: p.Confidence,
		Liveness:   &res,
		Message:    res.Message,
	}

	switch res.Status {
	case liveness.StatusPending:
		out.Pending = true
		out.Reason = ReasonLivenessPending
		return out, nil
	case liveness.StatusNotLive:
		s.pending = nil
		observability.LivenessResults.WithLabelValues(string(res.Status)).Inc()
		s.countPunch(models.EventEntry, ReasonNotLive)
		slog.Info("liveness failed", "name", p.Name, "elapsed", res.Elapsed)
		out.Reason = ReasonNotLive
		return out, nil
	}

	s.pending = nil
	observability.LivenessResults.WithLabelValues(string(res.Status)).Inc()

	r, err := s.ledger.PunchIn(ctx, p.Name, p.IdentityID, now)
	if err != nil {
		return Outcome{}, fmt.Errorf("punch in %s: %w", p.Name, err)
	}
	s.applyLedgerResult(ctx, &out, models.EventEntry, r)
	return out, nil
}

// CancelEntry abandons the pending entry, if any.
func (s *Station) CancelEntry() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil
	s.abandonLocked()
	return had
}

// RequestExit identifies the person and punches them out. There is no
// liveness gate on exit.
func (s *Station) RequestExit(ctx context.Context, vector []float32) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.abandonLocked()

	out, m, ok := s.matchLocked(vector)
	if !ok {
		s.countPunch(models.EventExit, out.Reason)
		return out, nil
	}

	r, err := s.ledger.PunchOut(ctx, m.Name, out.IdentityID, s.now())
	if err != nil {
		return Outcome{}, fmt.Errorf("punch out %s: %w", m.Name, err)
	}
	s.applyLedgerResult(ctx, &out, models.EventExit, r)
	return out, nil
}

func (s *Station) Status(name string) models.DailyStatus {
	return s.ledger.StatusToday(name, s.now())
}

func (s *Station) Summary() []attendance.SummaryRow {
	return s.ledger.SummaryToday(s.now())
}

// Events lists events for date (YYYY-MM-DD); an empty date means today.
func (s *Station) Events(date string) []models.AttendanceEvent {
	if date == "" {
		date = s.Today()
	}
	return s.ledger.Events(date)
}

// Location is the timezone the ledger's calendar days are drawn in.
func (s *Station) Location() *time.Location {
	return s.ledger.Location()
}

// Today is the current ledger date.
func (s *Station) Today() string {
	return s.ledger.Day(s.now())
}

func (s *Station) Identities() []models.Identity {
	return s.registry.List()
}

// Pending returns a snapshot of the entry awaiting a blink.
func (s *Station) Pending() (PendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingEntry{}, false
	}
	return *s.pending, true
}

func (s *Station) matchLocked(vector []float32) (Outcome, matcher.Matched, bool) {
	switch m := s.matcher.Match(vector, s.registry.Names(), s.registry.Vectors()).(type) {
	case matcher.Matched:
		identity, err := s.registry.At(m.Index)
		if err != nil {
			observability.MatchAttempts.WithLabelValues(string(matcher.ReasonIntegrity)).Inc()
			slog.Error("matched position has no identity", "index", m.Index, "error", err)
			return Outcome{
				Reason:   ReasonIntegrity,
				NoMatch:  matcher.ReasonIntegrity,
				Distance: m.Distance,
				Message:  "Registry is inconsistent, re-register faces",
			}, matcher.Matched{}, false
		}
		observability.MatchAttempts.WithLabelValues("matched").Inc()
		return Outcome{
			Name:       identity.Name,
			IdentityID: identity.ID,
			Confidence: m.Confidence,
			Distance:   m.Distance,
		}, m, true
	case matcher.NoMatch:
		observability.MatchAttempts.WithLabelValues(string(m.Reason)).Inc()
		out := Outcome{Reason: ReasonNotRecognized, NoMatch: m.Reason, Distance: m.Distance}
		switch m.Reason {
		case matcher.ReasonIntegrity:
			out.Reason = ReasonIntegrity
			out.Message = "Registry is inconsistent, re-register faces"
			slog.Error("registry integrity check failed",
				"names", len(s.registry.Names()), "vectors", len(s.registry.Vectors()))
		case matcher.ReasonEmptyRegistry:
			out.Message = "No faces registered"
		default:
			out.Message = "Face not recognized"
		}
		return out, matcher.Matched{}, false
	default:
		return Outcome{Reason: ReasonNotRecognized, Message: "Face not recognized"}, matcher.Matched{}, false
	}
}

func (s *Station) applyLedgerResult(ctx context.Context, out *Outcome, kind models.EventKind, r attendance.Result) {
	out.Accepted = r.Accepted
	out.Pending = false
	out.Reason = Reason(r.Reason)
	out.Message = r.Message
	out.Event = r.Event
	s.countPunch(kind, out.Reason)

	if !r.Accepted || r.Event == nil {
		return
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAttendance(ctx, *r.Event); err != nil {
			slog.Warn("publish attendance failed", "id", r.Event.ID, "error", err)
		}
	}
}

func (s *Station) abandonLocked() {
	if s.pending != nil {
		slog.Debug("entry attempt abandoned", "name", s.pending.Name)
	}
	s.pending = nil
	s.verifier.Abandon()
}

func (s *Station) countPunch(kind models.EventKind, reason Reason) {
	observability.Punches.WithLabelValues(string(kind), string(reason)).Inc()
}
