// Package dispatch runs the recurring tick that turns due leads into
// notifications. One notification per (lead, scheduled instant) pair,
// no matter how often ticks overlap or how many instances run.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
	"github.com/leadpulse/leadpulse/internal/metrics"
	"github.com/leadpulse/leadpulse/internal/notifier"
)

// LeadStore is the slice of the lead repository the dispatcher needs.
type LeadStore interface {
	ListDueBetween(ctx context.Context, from, to time.Time) ([]*db.Lead, error)
}

// NotificationStore is the slice of the notification repository the
// dispatcher needs. Create must be atomic on the idempotency key:
// created=false with a nil error means another writer got there first.
type NotificationStore interface {
	HasScheduled(ctx context.Context, leadID uuid.UUID, scheduledAt time.Time) (bool, error)
	Create(ctx context.Context, n *db.Notification) (bool, error)
}

// TickLock elects one dispatcher per tick in scaled deployments.
type TickLock interface {
	Acquire(ctx context.Context, tick time.Time) (bool, error)
}

// Dispatcher polls for leads due in the current tick window and
// creates their notifications.
type Dispatcher struct {
	leads    LeadStore
	notifs   NotificationStore
	sender   notifier.Sender // optional out-of-band delivery
	lock     TickLock        // optional, nil when running a single instance
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Config holds dispatcher settings.
type Config struct {
	Interval time.Duration    // tick cadence, default one minute
	Sender   notifier.Sender  // nil disables out-of-band delivery
	Lock     TickLock         // nil disables the tick lock
	Now      func() time.Time // injectable clock for tests
}

// New creates a Dispatcher.
func New(leads LeadStore, notifs NotificationStore, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Dispatcher{
		leads:    leads,
		notifs:   notifs,
		sender:   cfg.Sender,
		lock:     cfg.Lock,
		interval: cfg.Interval,
		logger:   logger,
		now:      cfg.Now,
	}
}

// Start runs the tick loop until ctx is canceled. A tick that panics
// or errors never stops the loop; the next tick always fires.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case <-ticker.C:
			d.safeTick(ctx)
		}
	}
}

func (d *Dispatcher) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch tick panicked", zap.Any("panic", r))
		}
	}()

	if err := d.Tick(ctx); err != nil {
		d.logger.Error("dispatch tick failed", zap.Error(err))
	}
}

// Tick executes one dispatch cycle: find leads due in
// [tick, tick+interval), guard each against existing notifications,
// and create the missing ones. Per-lead failures are logged and do not
// abort the remaining leads.
func (d *Dispatcher) Tick(ctx context.Context) error {
	start := d.now()
	tick := start.Truncate(time.Minute)
	defer func() { metrics.RecordTick(time.Since(start)) }()

	if d.lock != nil {
		owned, err := d.lock.Acquire(ctx, tick)
		if err != nil {
			// Lock unavailable: process anyway, the store's unique
			// index still prevents duplicates.
			d.logger.Warn("tick lock unavailable, proceeding without it", zap.Error(err))
		} else if !owned {
			return nil
		}
	}

	due, err := d.leads.ListDueBetween(ctx, tick, tick.Add(d.interval))
	if err != nil {
		return fmt.Errorf("list due leads: %w", err)
	}

	metrics.RecordLeadsDue(len(due))
	if len(due) == 0 {
		d.logger.Debug("no leads due", zap.Time("tick", tick))
		return nil
	}

	created := 0
	for _, l := range due {
		ok, err := d.dispatchLead(ctx, l)
		if err != nil {
			metrics.RecordDispatchError()
			d.logger.Error("failed to dispatch lead",
				zap.String("lead_id", l.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			created++
		}
	}

	d.logger.Info("dispatch tick completed",
		zap.Time("tick", tick),
		zap.Int("due", len(due)),
		zap.Int("created", created),
		zap.Int("duplicates", len(due)-created),
	)

	return nil
}

// dispatchLead creates the notification for one due lead. Returns
// false with a nil error when the notification already existed.
func (d *Dispatcher) dispatchLead(ctx context.Context, l *db.Lead) (bool, error) {
	if l.DateTime == nil {
		// Date-only leads are never minute-dispatched; the query
		// shouldn't return them, but don't trust it.
		return false, nil
	}
	scheduledAt := *l.DateTime

	exists, err := d.notifs.HasScheduled(ctx, l.ID, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("check existing notification: %w", err)
	}
	if exists {
		metrics.RecordNotificationDuplicate()
		return false, nil
	}

	n := &db.Notification{
		ID:          uuid.New(),
		LeadID:      l.ID,
		LeadName:    l.Name,
		Title:       "Scheduled Lead Notification",
		Message:     fmt.Sprintf("Lead %s is scheduled for %s", l.Name, scheduledAt.Format("Mon, Jan 2, 3:04 PM")),
		Kind:        db.KindScheduled,
		ScheduledAt: scheduledAt,
	}

	created, err := d.notifs.Create(ctx, n)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	if !created {
		// Another tick or instance won the insert race.
		metrics.RecordNotificationDuplicate()
		return false, nil
	}

	metrics.RecordNotificationCreated()

	if d.sender != nil {
		// Out-of-band delivery is advisory; failures are already
		// logged by the sender and never fail the lead.
		_ = d.sender.Deliver(ctx, n)
	}

	return true, nil
}
