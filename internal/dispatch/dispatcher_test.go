package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
)

// fakeLeadStore serves leads whose dateTime falls in [from, to).
type fakeLeadStore struct {
	leads   []*db.Lead
	listErr error
}

func (s *fakeLeadStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]*db.Lead, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var due []*db.Lead
	for _, l := range s.leads {
		if l.DateTime == nil {
			continue
		}
		if !l.DateTime.Before(from) && l.DateTime.Before(to) {
			due = append(due, l)
		}
	}
	return due, nil
}

// fakeNotificationStore mimics the unique (lead_id, scheduled_at, kind)
// index with a map.
type fakeNotificationStore struct {
	mu        sync.Mutex
	existing  map[string]*db.Notification
	createErr map[uuid.UUID]error // per-lead induced failures
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{
		existing:  make(map[string]*db.Notification),
		createErr: make(map[uuid.UUID]error),
	}
}

func key(leadID uuid.UUID, at time.Time, kind string) string {
	return fmt.Sprintf("%s|%d|%s", leadID, at.UnixMilli(), kind)
}

func (s *fakeNotificationStore) HasScheduled(ctx context.Context, leadID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.existing[key(leadID, at, db.KindScheduled)]
	return ok, nil
}

func (s *fakeNotificationStore) Create(ctx context.Context, n *db.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[n.LeadID]; err != nil {
		return false, err
	}
	k := key(n.LeadID, n.ScheduledAt, n.Kind)
	if _, ok := s.existing[k]; ok {
		return false, nil
	}
	s.existing[k] = n
	return true, nil
}

func (s *fakeNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.existing)
}

func leadDueAt(name string, at time.Time) *db.Lead {
	return &db.Lead{
		ID:            uuid.New(),
		Name:          name,
		Phone:         9000000001,
		ScheduledDate: time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location()),
		DateTime:      &at,
	}
}

func newDispatcher(leads *fakeLeadStore, notifs *fakeNotificationStore, now time.Time) *Dispatcher {
	return New(leads, notifs, Config{
		Interval: time.Minute,
		Now:      func() time.Time { return now },
	}, zap.NewNop())
}

func TestTickCreatesOneNotificationPerDueLead(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	l := leadDueAt("Asha", at)
	leads := &fakeLeadStore{leads: []*db.Lead{l}}
	notifs := newFakeNotificationStore()

	d := newDispatcher(leads, notifs, at)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if notifs.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifs.count())
	}

	n := notifs.existing[key(l.ID, at, db.KindScheduled)]
	if n == nil {
		t.Fatal("notification keyed by (lead, scheduledAt, scheduled) not found")
	}
	if n.Kind != db.KindScheduled {
		t.Errorf("kind = %q, want scheduled", n.Kind)
	}
	if !n.ScheduledAt.Equal(at) {
		t.Errorf("scheduledAt = %v, want %v", n.ScheduledAt, at)
	}
	if n.LeadName != "Asha" {
		t.Errorf("leadName = %q, want snapshot of lead name", n.LeadName)
	}
}

func TestTickIsIdempotentWithinTheSameMinute(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	leads := &fakeLeadStore{leads: []*db.Lead{leadDueAt("Asha", at)}}
	notifs := newFakeNotificationStore()

	// Tick at 14:30:00 creates the notification.
	d := newDispatcher(leads, notifs, at)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}

	// Overlapping tick at 14:30:59 truncates to the same minute.
	d = newDispatcher(leads, notifs, at.Add(59*time.Second))
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	// Next minute: the window has passed, nothing new.
	d = newDispatcher(leads, notifs, at.Add(time.Minute))
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("third tick failed: %v", err)
	}

	if notifs.count() != 1 {
		t.Fatalf("notifications = %d, want exactly 1 across repeated ticks", notifs.count())
	}
}

func TestTickInsertRaceTreatedAsAlreadyNotified(t *testing.T) {
	// Pre-check passes but the insert loses the race: the store
	// reports created=false and the tick must not treat it as an error.
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	l := leadDueAt("Asha", at)
	leads := &fakeLeadStore{leads: []*db.Lead{l}}
	notifs := newFakeNotificationStore()
	notifs.existing[key(l.ID, at, db.KindScheduled)] = &db.Notification{}

	d := newDispatcher(leads, notifs, at)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if notifs.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifs.count())
	}
}

func TestTickContinuesPastFailingLead(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	bad := leadDueAt("Bad", at)
	good := leadDueAt("Good", at.Add(30*time.Second))
	leads := &fakeLeadStore{leads: []*db.Lead{bad, good}}

	notifs := newFakeNotificationStore()
	notifs.createErr[bad.ID] = errors.New("connection reset")

	d := newDispatcher(leads, notifs, at)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick should not fail because one lead failed: %v", err)
	}

	if _, ok := notifs.existing[key(good.ID, good.DateTime.UTC(), db.KindScheduled)]; !ok {
		t.Error("remaining leads must still be processed after a per-lead failure")
	}
}

func TestTickSkipsLeadsOutsideWindow(t *testing.T) {
	base := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	leads := &fakeLeadStore{leads: []*db.Lead{
		leadDueAt("Early", base.Add(-time.Minute)),
		leadDueAt("Late", base.Add(time.Minute)),
	}}
	notifs := newFakeNotificationStore()

	d := newDispatcher(leads, notifs, base)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if notifs.count() != 0 {
		t.Fatalf("notifications = %d, want 0 for out-of-window leads", notifs.count())
	}
}

func TestTickSecondsTruncation(t *testing.T) {
	// A tick captured mid-minute covers the whole minute.
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	leads := &fakeLeadStore{leads: []*db.Lead{leadDueAt("Asha", at)}}
	notifs := newFakeNotificationStore()

	d := newDispatcher(leads, notifs, at.Add(42*time.Second))
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if notifs.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifs.count())
	}
}

func TestRescheduledLeadGetsANewNotification(t *testing.T) {
	first := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	l := leadDueAt("Asha", first)
	leads := &fakeLeadStore{leads: []*db.Lead{l}}
	notifs := newFakeNotificationStore()

	d := newDispatcher(leads, notifs, first)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}

	// Reschedule to 16:00: a different scheduledAt is a new key.
	second := time.Date(2026, 3, 5, 16, 0, 0, 0, time.UTC)
	l.DateTime = &second

	d = newDispatcher(leads, notifs, second)
	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("second tick failed: %v", err)
	}

	if notifs.count() != 2 {
		t.Fatalf("notifications = %d, want 2 (one per scheduled instant)", notifs.count())
	}
}

type fakeLock struct {
	owned bool
	err   error
	calls int
}

func (l *fakeLock) Acquire(ctx context.Context, tick time.Time) (bool, error) {
	l.calls++
	return l.owned, l.err
}

func TestTickSkippedWhenLockNotOwned(t *testing.T) {
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	leads := &fakeLeadStore{leads: []*db.Lead{leadDueAt("Asha", at)}}
	notifs := newFakeNotificationStore()
	lock := &fakeLock{owned: false}

	d := New(leads, notifs, Config{
		Interval: time.Minute,
		Lock:     lock,
		Now:      func() time.Time { return at },
	}, zap.NewNop())

	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if lock.calls != 1 {
		t.Errorf("lock calls = %d, want 1", lock.calls)
	}
	if notifs.count() != 0 {
		t.Error("unowned tick must not create notifications")
	}
}

func TestTickProceedsWhenLockErrors(t *testing.T) {
	// Redis down: the unique index is still the backstop, so the tick
	// runs rather than silently stopping all dispatch.
	at := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	leads := &fakeLeadStore{leads: []*db.Lead{leadDueAt("Asha", at)}}
	notifs := newFakeNotificationStore()
	lock := &fakeLock{err: errors.New("redis unavailable")}

	d := New(leads, notifs, Config{
		Interval: time.Minute,
		Lock:     lock,
		Now:      func() time.Time { return at },
	}, zap.NewNop())

	if err := d.Tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if notifs.count() != 1 {
		t.Fatalf("notifications = %d, want 1 despite lock failure", notifs.count())
	}
}

func TestTickReportsListError(t *testing.T) {
	leads := &fakeLeadStore{listErr: errors.New("database down")}
	notifs := newFakeNotificationStore()

	d := newDispatcher(leads, notifs, time.Now())
	if err := d.Tick(context.Background()); err == nil {
		t.Fatal("expected error when the lead query fails")
	}
}
