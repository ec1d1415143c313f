// Package notifier delivers created notifications out-of-band (email,
// SMS) to the sales team. Delivery is advisory: the persisted
// notification record is the source of truth, and a failed delivery is
// logged and dropped, never retried into the dispatch path.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
	"github.com/leadpulse/leadpulse/internal/metrics"
)

// Sender delivers a notification over one channel.
type Sender interface {
	Deliver(ctx context.Context, n *db.Notification) error
	Channel() string
}

// LogSender is a no-op sender that logs deliveries (development).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(ctx context.Context, n *db.Notification) error {
	s.logger.Info("delivering notification",
		zap.String("notification_id", n.ID.String()),
		zap.String("lead_name", n.LeadName),
		zap.String("message", n.Message),
	)
	return nil
}

func (s *LogSender) Channel() string { return "log" }

// MultiSender fans a notification out to every configured channel.
// Per-channel failures are logged and counted; they never propagate,
// so one dead provider cannot block the others or the dispatch tick.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders, logger: logger}
}

func (m *MultiSender) Deliver(ctx context.Context, n *db.Notification) error {
	for _, s := range m.senders {
		if err := s.Deliver(ctx, n); err != nil {
			metrics.RecordDelivery(s.Channel(), "error")
			m.logger.Warn("delivery failed",
				zap.String("channel", s.Channel()),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordDelivery(s.Channel(), "ok")
	}
	return nil
}

func (m *MultiSender) Channel() string { return "multi" }
