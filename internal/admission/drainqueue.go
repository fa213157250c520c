package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DrainQueue is a durable overflow queue for W1 admissions that parked and
// are waiting for a later cycle's spare capacity — grounded on the
// teacher's internal/infra/redis_adapter.go GoRedisAdapter, generalized
// from a general-purpose key/value and pub-sub wrapper into a single-list
// work queue.
type DrainQueue struct {
	rdb *redis.Client
	key string
}

// NewDrainQueue connects to addr and verifies connectivity with a Ping,
// matching the teacher's fail-fast-on-construction adapter style.
func NewDrainQueue(addr, password string, db int, key string) (*DrainQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("admission: redis ping failed (%s): %w", addr, err)
	}

	return &DrainQueue{rdb: rdb, key: key}, nil
}

// Close shuts down the underlying Redis client.
func (q *DrainQueue) Close() error { return q.rdb.Close() }

// Push enqueues a parked W1 admission's wire-encoded receipt for later
// draining.
func (q *DrainQueue) Push(ctx context.Context, wire []byte) error {
	return q.rdb.RPush(ctx, q.key, wire).Err()
}

// Pop dequeues the oldest parked admission, blocking up to timeout for one
// to arrive. Returns false with no error if timeout elapses empty.
func (q *DrainQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("admission: drain queue pop: %w", err)
	}
	// BLPop returns [key, value].
	return []byte(res[1]), true, nil
}

// Len reports the current backlog depth.
func (q *DrainQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("admission: drain queue length: %w", err)
	}
	return n, nil
}
