package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"examforge/internal/domain/model"
	"examforge/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx := context.Background()
	_, err := RDB.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	fmt.Println("Successfully connected to Redis!")
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		fmt.Println("Redis connection closed.")
	}
}

// popTimeout bounds each BRPOP so the worker loop notices cancellation.
const popTimeout = 5 * time.Second

// RedisQueue stores JSON-encoded evaluation jobs in a Redis list.
// Producers LPUSH and the worker BRPOPs, so jobs run in FIFO order.
type RedisQueue struct {
	rdb  *redis.Client
	name string
}

func NewRedisQueue(rdb *redis.Client, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) Push(ctx context.Context, job model.EvaluationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal evaluation job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("push job to redis queue %q: %w", q.name, err)
	}
	return nil
}

// Requeue puts the job back at the consuming end so it is retried next.
func (q *RedisQueue) Requeue(ctx context.Context, job model.EvaluationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal evaluation job: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("requeue job to redis queue %q: %w", q.name, err)
	}
	return nil
}

// Pop returns the next job, or nil when none arrived before the poll timeout.
func (q *RedisQueue) Pop(ctx context.Context) (*model.EvaluationJob, error) {
	res, err := q.rdb.BRPop(ctx, popTimeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	// res is [queueName, value]
	if len(res) < 2 || res[1] == "" {
		return nil, nil
	}
	var job model.EvaluationJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode evaluation job: %w", err)
	}
	return &job, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker hands out per-key locks with SET NX PX and releases them with
// a compare-and-delete script, so an expired lock taken over by another
// worker is never deleted by the old holder.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	lockKey := l.prefix + key
	lockValue := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	release := func(ctx context.Context) {
		deleted, err := releaseScript.Run(ctx, l.rdb, []string{lockKey}, lockValue).Int64()
		if err != nil {
			log.Printf("ERROR: Failed to release lock %s: %v", lockKey, err)
		} else if deleted == 0 {
			log.Printf("WARN: Did not release lock %s; it expired or was taken by another worker.", lockKey)
		}
	}
	return release, true, nil
}
