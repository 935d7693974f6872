package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yuhis0727/sumaslo-analyzer/pkg/models"
)

// RunLock serializes aggregation runs for the same (store, date) key using
// a Redis SET NX lease. Runs for different keys proceed in parallel.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRunLock creates a run lock with the given lease duration
func NewRunLock(client *redis.Client, ttl time.Duration) *RunLock {
	return &RunLock{client: client, ttl: ttl}
}

// Acquire attempts to take the lock; false means another run holds it.
// The TTL bounds the lease so a crashed run cannot wedge the key forever.
func (l *RunLock) Acquire(ctx context.Context, storeID int64, date time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(storeID, date), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("set run lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock after a run completes
func (l *RunLock) Release(ctx context.Context, storeID int64, date time.Time) {
	l.client.Del(ctx, l.key(storeID, date))
}

func (l *RunLock) key(storeID int64, date time.Time) string {
	return fmt.Sprintf("aggregate:run:%d:%s", storeID, date.Format(models.DateFormat))
}
