package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadpulse/leadpulse/internal/db"
)

// Sender mirrors the notifier.Sender interface to avoid circular imports.
type Sender interface {
	Deliver(ctx context.Context, n *db.Notification) error
	Channel() string
}

// ProtectedSender wraps a Sender with a CircuitBreaker. When the
// downstream provider (SES, SNS) starts failing, the circuit opens and
// deliveries fail fast instead of stalling the dispatch tick.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(sender Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: breaker,
		logger:  logger,
	}
}

// Deliver attempts delivery through the circuit breaker. If the circuit
// is open, returns ErrCircuitOpen immediately.
func (p *ProtectedSender) Deliver(ctx context.Context, n *db.Notification) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("notification_id", n.ID.String()),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.sender.Deliver(ctx, n)
	if err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// Channel delegates to the underlying sender.
func (p *ProtectedSender) Channel() string {
	return p.sender.Channel()
}

// Breaker returns the underlying circuit breaker for monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
