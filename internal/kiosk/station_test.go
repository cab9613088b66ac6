package kiosk_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/your-org/punchclock/internal/attendance"
	"github.com/your-org/punchclock/internal/kiosk"
	"github.com/your-org/punchclock/internal/liveness"
	"github.com/your-org/punchclock/internal/matcher"
	"github.com/your-org/punchclock/internal/models"
	"github.com/your-org/punchclock/internal/registry"
)

type identityStore struct {
	ids []models.Identity
}

func (s *identityStore) LoadIdentities(context.Context) ([]models.Identity, error) {
	return s.ids, nil
}

func (s *identityStore) SaveIdentities(_ context.Context, ids []models.Identity) error {
	s.ids = ids
	return nil
}

type eventStore struct {
	events []models.AttendanceEvent
	fail   bool
}

func (s *eventStore) LoadEvents(context.Context) ([]models.AttendanceEvent, error) {
	return s.events, nil
}

func (s *eventStore) AppendEvent(_ context.Context, ev models.AttendanceEvent) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.events = append(s.events, ev)
	return nil
}

type publisher struct {
	mu            sync.Mutex
	events        []models.AttendanceEvent
	registrations []models.Identity
	fail          bool
}

func (p *publisher) PublishAttendance(_ context.Context, ev models.AttendanceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("nats down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *publisher) PublishRegistration(_ context.Context, id models.Identity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registrations = append(p.registrations, id)
	return nil
}

type clock struct {
	now time.Time
}

func newClock(h, m int) *clock {
	c := &clock{}
	c.Set(h, m)
	return c
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *clock) Set(h, m int)            { c.now = time.Date(2024, 3, 1, h, m, 0, 0, time.UTC) }

func vec(v ...float32) []float32      { return v }
func vecs(v ...[]float32) [][]float32 { return v }

type fixture struct {
	station *kiosk.Station
	clock   *clock
	events  *eventStore
	pub     *publisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	reg, err := registry.New(ctx, &identityStore{})
	gt.NoError(t, err)
	events := &eventStore{}
	ledger, err := attendance.NewLedger(ctx, events, attendance.Options{Location: time.UTC})
	gt.NoError(t, err)

	c := newClock(9, 0)
	pub := &publisher{}
	st := kiosk.New(kiosk.Deps{
		Registry:  reg,
		Matcher:   matcher.New(1.0),
		Liveness:  liveness.Config{Timeout: 1500 * time.Millisecond, MinClosed: 150 * time.Millisecond},
		Ledger:    ledger,
		Publisher: pub,
		Clock:     c.Now,
	})

	_, err = st.Register(ctx, "Alice", vecs(vec(0, 0), vec(0, 0.2)))
	gt.NoError(t, err)
	_, err = st.Register(ctx, "Bob", vecs(vec(10, 10)))
	gt.NoError(t, err)

	return &fixture{station: st, clock: c, events: events, pub: pub}
}

// blink feeds open, closed for 300ms, open.
func (f *fixture) blink(t *testing.T) kiosk.Outcome {
	t.Helper()
	ctx := context.Background()

	out, err := f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	gt.True(t, out.Pending)

	f.clock.Advance(100 * time.Millisecond)
	out, err = f.station.ObserveEyes(ctx, false)
	gt.NoError(t, err)
	gt.True(t, out.Pending)
	gt.Equal(t, out.Message, liveness.MessageEyesHidden)

	f.clock.Advance(300 * time.Millisecond)
	out, err = f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	return out
}

func TestRegisterPublishes(t *testing.T) {
	f := newFixture(t)
	gt.Equal(t, len(f.station.Identities()), 2)
	gt.Equal(t, len(f.pub.registrations), 2)
	gt.Equal(t, f.pub.registrations[1].ID, 1)

	_, err := f.station.Register(context.Background(), " ", vecs(vec(1, 1)))
	gt.True(t, errors.Is(err, registry.ErrEmptyName))
}

func TestEntryWithBlinkPunchesIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.station.RequestEntry(ctx, vec(0, 0.1))
	gt.NoError(t, err)
	gt.True(t, out.Pending)
	gt.False(t, out.Accepted)
	gt.Equal(t, out.Reason, kiosk.ReasonLivenessPending)
	gt.Equal(t, out.Name, "Alice")
	gt.Equal(t, out.IdentityID, 0)
	gt.Equal(t, out.Confidence, 1.0)

	p, ok := f.station.Pending()
	gt.True(t, ok)
	gt.Equal(t, p.Name, "Alice")
	gt.Equal(t, p.State, liveness.StateChecking)

	// nothing is written while the check runs
	gt.Equal(t, len(f.events.events), 0)

	out = f.blink(t)
	gt.True(t, out.Accepted)
	gt.False(t, out.Pending)
	gt.Equal(t, out.Reason, kiosk.ReasonAccepted)
	gt.Equal(t, out.Liveness.Status, liveness.StatusLive)
	gt.NotNil(t, out.Event)
	gt.Equal(t, out.Event.Kind, models.EventEntry)

	gt.Equal(t, len(f.events.events), 1)
	gt.Equal(t, len(f.pub.events), 1)
	gt.Equal(t, f.station.Status("Alice"), models.StatusCheckedIn)

	_, ok = f.station.Pending()
	gt.False(t, ok)
}

func TestEntryTimesOutWithoutBlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.RequestEntry(ctx, vec(10, 10))
	gt.NoError(t, err)

	out, err := f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	gt.True(t, out.Pending)

	f.clock.Advance(1600 * time.Millisecond)
	out, err = f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	gt.False(t, out.Accepted)
	gt.False(t, out.Pending)
	gt.Equal(t, out.Reason, kiosk.ReasonNotLive)
	gt.Equal(t, out.Message, liveness.MessageTimedOut)

	gt.Equal(t, len(f.events.events), 0)
	gt.Equal(t, f.station.Status("Bob"), models.StatusNone)

	// the attempt is gone
	out, err = f.station.ObserveEyes(ctx, false)
	gt.NoError(t, err)
	gt.Equal(t, out.Reason, kiosk.ReasonNoAttempt)
}

func TestEntryNotRecognized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.station.RequestEntry(ctx, vec(5, 5))
	gt.NoError(t, err)
	gt.False(t, out.Accepted)
	gt.False(t, out.Pending)
	gt.Equal(t, out.Reason, kiosk.ReasonNotRecognized)
	gt.Equal(t, out.NoMatch, matcher.ReasonAboveThreshold)

	_, ok := f.station.Pending()
	gt.False(t, ok)
}

func TestEntryDuplicateSuppressed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.True(t, f.blink(t).Accepted)

	f.clock.Advance(2 * time.Second)
	_, err = f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	out := f.blink(t)
	gt.False(t, out.Accepted)
	gt.Equal(t, out.Reason, kiosk.ReasonDuplicate)
	gt.Equal(t, len(f.events.events), 1)
	gt.Equal(t, len(f.pub.events), 1)
}

func TestExitFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.station.RequestExit(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.False(t, out.Accepted)
	gt.Equal(t, out.Reason, kiosk.ReasonNotCheckedIn)

	_, err = f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.True(t, f.blink(t).Accepted)

	f.clock.Set(17, 0)
	out, err = f.station.RequestExit(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.True(t, out.Accepted)
	gt.Equal(t, out.Event.DurationString, "8h 00m")
	gt.Equal(t, f.station.Status("Alice"), models.StatusCompleted)

	rows := f.station.Summary()
	gt.Equal(t, len(rows), 1)
	gt.Equal(t, rows[0].Name, "Alice")
	gt.Equal(t, rows[0].Status, models.StatusCompleted)

	gt.Equal(t, len(f.station.Events("")), 2)
	gt.Equal(t, len(f.station.Events("2024-02-29")), 0)
	gt.Equal(t, len(f.pub.events), 2)
}

func TestExitAbandonsPendingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	_, err = f.station.RequestExit(ctx, vec(10, 10))
	gt.NoError(t, err)

	_, ok := f.station.Pending()
	gt.False(t, ok)
}

func TestCancelEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gt.False(t, f.station.CancelEntry())

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.True(t, f.station.CancelEntry())

	out, err := f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	gt.Equal(t, out.Reason, kiosk.ReasonNoAttempt)
	gt.Equal(t, len(f.events.events), 0)
}

func TestNewEntryReplacesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	_, err = f.station.ObserveEyes(ctx, false)
	gt.NoError(t, err)

	f.clock.Advance(time.Second)
	out, err := f.station.RequestEntry(ctx, vec(10, 10))
	gt.NoError(t, err)
	gt.Equal(t, out.Name, "Bob")

	// the closure seen during Alice's attempt does not count for Bob
	out, err = f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	gt.True(t, out.Pending)
	gt.Equal(t, out.Name, "Bob")
}

func TestStoreFailureSurfacesAsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	f.events.fail = true

	_, err = f.station.ObserveEyes(ctx, true)
	gt.NoError(t, err)
	f.clock.Advance(100 * time.Millisecond)
	_, err = f.station.ObserveEyes(ctx, false)
	gt.NoError(t, err)
	f.clock.Advance(300 * time.Millisecond)
	_, err = f.station.ObserveEyes(ctx, true)
	gt.Error(t, err)

	gt.Equal(t, f.station.Status("Alice"), models.StatusNone)
	gt.Equal(t, len(f.pub.events), 0)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.fail = true

	_, err := f.station.RequestEntry(ctx, vec(0, 0))
	gt.NoError(t, err)
	out := f.blink(t)
	gt.True(t, out.Accepted)
	gt.Equal(t, len(f.events.events), 1)
}

func TestEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.New(ctx, &identityStore{})
	gt.NoError(t, err)
	ledger, err := attendance.NewLedger(ctx, &eventStore{}, attendance.Options{Location: time.UTC})
	gt.NoError(t, err)

	st := kiosk.New(kiosk.Deps{Registry: reg, Matcher: matcher.New(1), Ledger: ledger})
	out, err := st.RequestEntry(ctx, vec(1, 2))
	gt.NoError(t, err)
	gt.Equal(t, out.Reason, kiosk.ReasonNotRecognized)
	gt.Equal(t, out.NoMatch, matcher.ReasonEmptyRegistry)
}

func TestIntegrityFailure(t *testing.T) {
	ctx := context.Background()
	reg, err := registry.New(ctx, &identityStore{ids: []models.Identity{
		{ID: 0, Name: "Alice", Vector: []float32{0, 0}},
		{ID: 1, Name: "Bob"},
	}})
	gt.NoError(t, err)
	ledger, err := attendance.NewLedger(ctx, &eventStore{}, attendance.Options{Location: time.UTC})
	gt.NoError(t, err)

	st := kiosk.New(kiosk.Deps{Registry: reg, Matcher: matcher.New(1), Ledger: ledger})
	out, err := st.RequestExit(ctx, vec(0, 0))
	gt.NoError(t, err)
	gt.False(t, out.Accepted)
	gt.Equal(t, out.Reason, kiosk.ReasonIntegrity)
}

func TestIdentityIDComesFromRegistry(t *testing.T) {
	ctx := context.Background()
	// IDs are no longer positional once a record has gone missing
	reg, err := registry.New(ctx, &identityStore{ids: []models.Identity{
		{ID: 0, Name: "Alice", Vector: []float32{0, 0}},
		{ID: 4, Name: "Carol", Vector: []float32{10, 10}},
	}})
	gt.NoError(t, err)
	events := &eventStore{}
	ledger, err := attendance.NewLedger(ctx, events, attendance.Options{Location: time.UTC})
	gt.NoError(t, err)

	c := newClock(9, 0)
	f := &fixture{
		station: kiosk.New(kiosk.Deps{
			Registry: reg,
			Matcher:  matcher.New(1.0),
			Liveness: liveness.Config{Timeout: 1500 * time.Millisecond, MinClosed: 150 * time.Millisecond},
			Ledger:   ledger,
			Clock:    c.Now,
		}),
		clock:  c,
		events: events,
	}

	out, err := f.station.RequestEntry(ctx, vec(10, 10))
	gt.NoError(t, err)
	gt.True(t, out.Pending)
	gt.Equal(t, out.Name, "Carol")
	gt.Equal(t, out.IdentityID, 4)

	p, ok := f.station.Pending()
	gt.True(t, ok)
	gt.Equal(t, p.IdentityID, 4)

	out = f.blink(t)
	gt.True(t, out.Accepted)
	gt.Equal(t, out.Event.IdentityID, 4)

	c.Advance(time.Hour)
	out, err = f.station.RequestExit(ctx, vec(10, 10))
	gt.NoError(t, err)
	gt.True(t, out.Accepted)
	gt.Equal(t, out.Event.IdentityID, 4)
	gt.Equal(t, events.events[1].IdentityID, 4)
}

func TestEachDecisionLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newFixture(t)
	_, err := f.station.RequestEntry(context.Background(), vec(0, 0.1))
	gt.NoError(t, err)
	gt.True(t, f.blink(t).Accepted)

	logs := buf.String()
	gt.Equal(t, strings.Count(logs, "identity registered"), 2)
	gt.Equal(t, strings.Count(logs, "attendance recorded"), 1)
}
