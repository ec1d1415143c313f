package lead

import (
	"context"
	"time"

	"github.com/leadpulse/leadpulse/internal/db"
)

// Writer is the slice of the lead repository the store needs.
type Writer interface {
	Create(ctx context.Context, l *db.Lead) error
	Update(ctx context.Context, l *db.Lead) error
}

// Store is the only supported write path for leads. It runs
// Normalize, Validate and Derive before every persist, so the derived
// autoStatus/dateTime fields can never go stale or be set by hand.
type Store struct {
	repo Writer
	now  func() time.Time
}

// NewStore creates a lead store. now is injectable for tests; nil
// means wall-clock time.
func NewStore(repo Writer, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, now: now}
}

// Create normalizes, validates and derives the lead, then persists it.
func (s *Store) Create(ctx context.Context, l *db.Lead) error {
	if err := s.prepare(l); err != nil {
		return err
	}
	return s.repo.Create(ctx, l)
}

// Update normalizes, validates and derives the lead, then persists it.
func (s *Store) Update(ctx context.Context, l *db.Lead) error {
	if err := s.prepare(l); err != nil {
		return err
	}
	return s.repo.Update(ctx, l)
}

func (s *Store) prepare(l *db.Lead) error {
	Normalize(l)
	if err := Validate(l); err != nil {
		return err
	}
	Derive(l, s.now())
	return nil
}
