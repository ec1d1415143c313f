package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TickLock elects a single dispatcher per tick minute when multiple
// instances run. Acquisition uses SET NX (atomic set-if-not-exists)
// keyed by the truncated tick time; the TTL outlives the tick so a
// slow instance cannot hand the same minute to a second claimant.
//
// The lock only avoids duplicate work: correctness comes from the
// store's unique (lead_id, scheduled_at, kind) index, which holds even
// if Redis is down and every instance processes the tick.
type TickLock struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewTickLock creates a tick lock with the given key TTL. The TTL
// should be at least twice the dispatch interval.
func NewTickLock(client *Client, logger *zap.Logger, ttl time.Duration) *TickLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &TickLock{client: client, logger: logger, ttl: ttl}
}

func (l *TickLock) key(tick time.Time) string {
	return fmt.Sprintf("dispatch:tick:%d", tick.Unix())
}

// Acquire attempts to claim the given tick. Returns true if this
// instance owns the tick, false if another instance already claimed it.
func (l *TickLock) Acquire(ctx context.Context, tick time.Time) (bool, error) {
	set, err := l.client.rdb.SetNX(ctx, l.key(tick), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		l.logger.Debug("tick already claimed by another instance",
			zap.Time("tick", tick),
		)
	}

	return set, nil
}
