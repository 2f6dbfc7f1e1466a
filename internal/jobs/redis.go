package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig addresses the Redis server backing a RedisQueue.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisQueue keeps ready jobs in a list and delayed jobs in a sorted set
// scored by due time. Due jobs are promoted to the list on Dequeue, so any
// consumer can pick them up. Jobs survive a restart.
type RedisQueue struct {
	rdb     *redis.Client
	ownsRDB bool
	ready   string
	delayed string

	pollInterval time.Duration
	now          func() time.Time
	closed       atomic.Bool
}

var _ Queue = (*RedisQueue)(nil)

// DialRedis connects to Redis and returns a queue that closes the
// connection on Close.
func DialRedis(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	q := NewRedisQueue(rdb, cfg.KeyPrefix)
	q.ownsRDB = true
	return q, nil
}

// NewRedisQueue wraps an existing client. Keys are "<prefix>:ready" and
// "<prefix>:delayed"; the prefix defaults to "fleetmon:jobs".
func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "fleetmon:jobs"
	}
	return &RedisQueue{
		rdb:          rdb,
		ready:        prefix + ":ready",
		delayed:      prefix + ":delayed",
		pollInterval: 500 * time.Millisecond,
		now:          time.Now,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, j Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := Encode(j)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing %s: %w", j.Kind(), err)
	}
	return nil
}

// Schedule stores j in the delayed set. Members carry a random prefix so
// identical jobs scheduled twice stay distinct.
func (q *RedisQueue) Schedule(ctx context.Context, j Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, j)
	}
	if q.closed.Load() {
		return ErrQueueClosed
	}
	payload, err := Encode(j)
	if err != nil {
		return err
	}
	member := uuid.NewString() + "|" + string(payload)
	due := q.now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: member}).Err(); err != nil {
		return fmt.Errorf("scheduling %s: %w", j.Kind(), err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return nil, ErrQueueClosed
		}
		if err := q.promote(ctx); err != nil {
			return nil, err
		}

		payload, err := q.rdb.RPop(ctx, q.ready).Result()
		switch {
		case err == nil:
			return Decode([]byte(payload))
		case !errors.Is(err, redis.Nil):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("dequeueing: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// promote moves due delayed jobs to the ready list. ZRem decides which
// consumer wins a member, so each job is promoted once.
func (q *RedisQueue) promote(ctx context.Context) error {
	upTo := strconv.FormatInt(q.now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{Min: "-inf", Max: upTo, Count: 100}).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reading delayed jobs: %w", err)
	}
	for _, member := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayed, member).Result()
		if err != nil {
			return fmt.Errorf("claiming delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		_, payload, _ := strings.Cut(member, "|")
		if err := q.rdb.LPush(ctx, q.ready, payload).Err(); err != nil {
			return fmt.Errorf("promoting delayed job: %w", err)
		}
	}
	return nil
}

// Len returns the number of ready jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.ready).Result()
}

// Close stops Dequeue and closes the connection if the queue opened it.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.ownsRDB {
		return q.rdb.Close()
	}
	return nil
}
