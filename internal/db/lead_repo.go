package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/schedule"
)

// Sentinel errors surfaced to callers.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicatePhone = errors.New("a lead with this phone already exists")
)

const uniqueViolation = "23505"

const leadColumns = `
	id, name, phone, purpose, remarks, budget, source, requirement,
	reference_name, reference_contact, potential, favourite, status,
	auto_status, scheduled_date, scheduled_time, date_time,
	created_at, updated_at`

// LeadRepository handles database operations for leads.
type LeadRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLeadRepository creates a new lead repository.
func NewLeadRepository(db *DB, logger *zap.Logger) *LeadRepository {
	return &LeadRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new lead. Callers must run the pre-persist state
// derivation first; lead.Store wraps this and is the supported write path.
func (r *LeadRepository) Create(ctx context.Context, l *Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	query := `
		INSERT INTO leads (
			id, name, phone, purpose, remarks, budget, source, requirement,
			reference_name, reference_contact, potential, favourite, status,
			auto_status, scheduled_date, scheduled_time, date_time
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		l.ID, l.Name, l.Phone, l.Purpose, l.Remarks, l.Budget, l.Source,
		l.Requirement, l.ReferenceName, l.ReferenceContact, l.Potential,
		l.Favourite, l.Status, l.AutoStatus, l.ScheduledDate,
		l.ScheduledTime, l.DateTime,
	).Scan(&l.CreatedAt, &l.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePhone
		}
		r.logger.Error("failed to create lead",
			zap.Error(err),
			zap.String("lead_id", l.ID.String()),
		)
		return fmt.Errorf("insert lead: %w", err)
	}

	r.logger.Info("lead created",
		zap.String("lead_id", l.ID.String()),
		zap.Time("scheduled_date", l.ScheduledDate),
	)

	return nil
}

// Update replaces the mutable fields of an existing lead. Same caveat
// as Create: writes go through lead.Store.
func (r *LeadRepository) Update(ctx context.Context, l *Lead) error {
	query := `
		UPDATE leads SET
			name = $2, phone = $3, purpose = $4, remarks = $5, budget = $6,
			source = $7, requirement = $8, reference_name = $9,
			reference_contact = $10, potential = $11, favourite = $12,
			status = $13, auto_status = $14, scheduled_date = $15,
			scheduled_time = $16, date_time = $17, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		l.ID, l.Name, l.Phone, l.Purpose, l.Remarks, l.Budget, l.Source,
		l.Requirement, l.ReferenceName, l.ReferenceContact, l.Potential,
		l.Favourite, l.Status, l.AutoStatus, l.ScheduledDate,
		l.ScheduledTime, l.DateTime,
	).Scan(&l.UpdatedAt)

	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicatePhone
		}
		r.logger.Error("failed to update lead",
			zap.Error(err),
			zap.String("lead_id", l.ID.String()),
		)
		return fmt.Errorf("update lead: %w", err)
	}

	return nil
}

// GetByID retrieves a lead by ID.
func (r *LeadRepository) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	l, err := scanLead(r.db.Pool().QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query lead: %w", err)
	}
	return l, nil
}

// ListDueBetween returns leads whose composite instant falls in
// [from, to). Leads without a composite instant never match.
func (r *LeadRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]*Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE date_time >= $1 AND date_time < $2
		ORDER BY date_time ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query due leads: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListByRange returns leads whose scheduled date falls in the closed
// range, ordered by time-of-day.
func (r *LeadRepository) ListByRange(ctx context.Context, rng schedule.Range) ([]*Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE scheduled_date >= $1 AND scheduled_date <= $2
		ORDER BY scheduled_time ASC NULLS LAST
	`

	rows, err := r.db.Pool().Query(ctx, query, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("query leads by range: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListOther returns leads outside the today/tomorrow/upcoming-weekend
// windows: before today's midnight, after tomorrow's end, or after the
// upcoming weekend's end.
func (r *LeadRepository) ListOther(ctx context.Context, c schedule.Complement) ([]*Lead, error) {
	query := `
		SELECT ` + leadColumns + `
		FROM leads
		WHERE scheduled_date < $1 OR scheduled_date > $2 OR scheduled_date > $3
		ORDER BY scheduled_date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, c.TodayStart, c.TomorrowEnd, c.WeekendEnd)
	if err != nil {
		return nil, fmt.Errorf("query other leads: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListByStatus returns leads with the given workflow status.
func (r *LeadRepository) ListByStatus(ctx context.Context, status string) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE status = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("query leads by status: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListByAutoStatus returns leads with the given urgency tag.
func (r *LeadRepository) ListByAutoStatus(ctx context.Context, autoStatus string) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE auto_status = $1 ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query, autoStatus)
	if err != nil {
		return nil, fmt.Errorf("query leads by auto status: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

// ListFavourites returns leads flagged as favourites.
func (r *LeadRepository) ListFavourites(ctx context.Context) ([]*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE favourite ORDER BY created_at DESC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query favourite leads: %w", err)
	}
	defer rows.Close()

	return collectLeads(rows)
}

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID, &l.Name, &l.Phone, &l.Purpose, &l.Remarks, &l.Budget,
		&l.Source, &l.Requirement, &l.ReferenceName, &l.ReferenceContact,
		&l.Potential, &l.Favourite, &l.Status, &l.AutoStatus,
		&l.ScheduledDate, &l.ScheduledTime, &l.DateTime,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func collectLeads(rows pgx.Rows) ([]*Lead, error) {
	var leads []*Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return leads, nil
}
