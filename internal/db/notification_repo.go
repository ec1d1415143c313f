package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const notificationColumns = `
	id, lead_id, lead_name, title, message, kind, is_read, scheduled_at, created_at`

// NotificationRepository handles database operations for notifications.
type NotificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a notification. The unique index on
// (lead_id, scheduled_at, kind) makes the insert atomic with respect
// to the idempotency key: a conflicting insert reports created=false
// with no error, which callers treat as "already notified".
func (r *NotificationRepository) Create(ctx context.Context, n *Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (
			id, lead_id, lead_name, title, message, kind, scheduled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lead_id, scheduled_at, kind) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		n.ID, n.LeadID, n.LeadName, n.Title, n.Message, n.Kind, n.ScheduledAt,
	)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("lead_id", n.LeadID.String()),
			zap.Time("scheduled_at", n.ScheduledAt),
		)
		return false, fmt.Errorf("insert notification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race to another tick or instance.
		return false, nil
	}

	r.logger.Info("notification created",
		zap.String("notification_id", n.ID.String()),
		zap.String("lead_id", n.LeadID.String()),
		zap.Time("scheduled_at", n.ScheduledAt),
	)

	return true, nil
}

// HasScheduled reports whether a scheduled notification already exists
// for the exact (leadID, scheduledAt) pair.
func (r *NotificationRepository) HasScheduled(ctx context.Context, leadID uuid.UUID, scheduledAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE lead_id = $1 AND scheduled_at = $2 AND kind = $3
		)
	`

	var exists bool
	err := r.db.Pool().QueryRow(ctx, query, leadID, scheduledAt, KindScheduled).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query scheduled notification: %w", err)
	}
	return exists, nil
}

// GetByID retrieves a notification by ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	var n Notification
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&n.ID, &n.LeadID, &n.LeadName, &n.Title, &n.Message,
		&n.Kind, &n.IsRead, &n.ScheduledAt, &n.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return &n, nil
}

// List retrieves notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if unreadOnly {
		query += ` WHERE NOT is_read`
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var n Notification
		err := rows.Scan(
			&n.ID, &n.LeadID, &n.LeadName, &n.Title, &n.Message,
			&n.Kind, &n.IsRead, &n.ScheduledAt, &n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return notifications, nil
}

// MarkRead flags a notification as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a notification. Only the external API deletes
// notifications; the dispatcher never does.
func (r *NotificationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
