package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock is a Redis SETNX lease that keeps multiple scheduler instances
// from scanning the same posts. Only the holder runs fetch-due scans;
// everything downstream of the queue is already idempotent, so the lock
// is a throughput guard, not a correctness requirement.
type Lock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

// TryAcquire attempts to take or refresh the lease. Returns true when
// this instance holds it.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	if acquired {
		return true, nil
	}

	// Refresh our own lease; a different token means another instance
	// holds it.
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	res, err := l.client.Eval(ctx, script, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	return res == int64(1), nil
}

// Release drops the lease if this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.token).Result()
	return err
}
