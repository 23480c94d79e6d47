// internal/queue/redis.go
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "forge-sync"
	promoteBatch  = 100
	deadLimit     = 10000
)

// promoteScript moves due members of the delayed set onto their kind's list.
// KEYS[1] delayed set, ARGV[1] now (unix ms), ARGV[2] batch, ARGV[3] list prefix.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, raw in ipairs(due) do
	redis.call('ZREM', KEYS[1], raw)
	local job = cjson.decode(raw)
	redis.call('LPUSH', ARGV[3] .. job.kind, raw)
end
return #due
`)

// RedisQueue is a Broker on Redis lists. Runnable jobs are LPUSHed onto
// <prefix>:queue:<kind> and LMOVEd into a per-consumer in-flight list, so a
// crashed consumer can hand its jobs back with Recover.
type RedisQueue struct {
	rdb      redis.UniversalClient
	prefix   string
	consumer string
	now      func() time.Time
}

// NewRedisQueue returns a queue on rdb. consumer names this process's
// in-flight list and must be stable across restarts of the same worker.
func NewRedisQueue(rdb redis.UniversalClient, consumer string) *RedisQueue {
	if consumer == "" {
		consumer = "default"
	}
	return &RedisQueue{rdb: rdb, prefix: defaultPrefix, consumer: consumer, now: time.Now}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return rdb, nil
}

func (q *RedisQueue) listKey(kind string) string { return q.prefix + ":queue:" + kind }
func (q *RedisQueue) delayedKey() string         { return q.prefix + ":delayed" }
func (q *RedisQueue) inflightKey() string        { return q.prefix + ":inflight:" + q.consumer }
func (q *RedisQueue) deadKey() string            { return q.prefix + ":dead" }
func (q *RedisQueue) uniqueKey(k string) string  { return q.prefix + ":unique:" + k }

func (q *RedisQueue) stamp(job Job) (string, error) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	raw, err := job.encode()
	if err != nil {
		return "", fmt.Errorf("encode %s job: %w", job.Kind, err)
	}
	return raw, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	raw, err := q.stamp(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.listKey(job.Kind), raw).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Kind, err)
	}
	return nil
}

func (q *RedisQueue) EnqueueUnique(ctx context.Context, job Job, ttl time.Duration) (bool, error) {
	if job.UniqueKey == "" {
		return true, q.Enqueue(ctx, job)
	}
	ok, err := q.rdb.SetNX(ctx, q.uniqueKey(job.UniqueKey), job.ID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim unique key %s: %w", job.UniqueKey, err)
	}
	if !ok {
		return false, nil
	}
	if err := q.Enqueue(ctx, job); err != nil {
		q.rdb.Del(ctx, q.uniqueKey(job.UniqueKey))
		return false, err
	}
	return true, nil
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error {
	raw, err := q.stamp(job)
	if err != nil {
		return err
	}
	due := q.now().Add(delay).UnixMilli()
	if err := q.rdb.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due), Member: raw}).Err(); err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", job.Kind, err)
	}
	return nil
}

func (q *RedisQueue) Depth(ctx context.Context, kind string) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.listKey(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", kind, err)
	}
	return n, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, kinds []string) (*Job, error) {
	for _, kind := range kinds {
		raw, err := q.rdb.LMove(ctx, q.listKey(kind), q.inflightKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue %s: %w", kind, err)
		}
		job, err := decode(raw)
		if err != nil {
			// Unreadable payloads are parked rather than retried forever.
			q.rdb.LRem(ctx, q.inflightKey(), 1, raw)
			q.rdb.LPush(ctx, q.deadKey(), raw)
			return nil, fmt.Errorf("decode %s job: %w", kind, err)
		}
		return &job, nil
	}
	return nil, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.inflightKey(), 1, job.raw)
		if job.UniqueKey != "" {
			pipe.Del(ctx, q.uniqueKey(job.UniqueKey))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack %s %s: %w", job.Kind, job.ID, err)
	}
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job) error {
	raw, err := job.encode()
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.deadKey(), raw)
		pipe.LTrim(ctx, q.deadKey(), 0, deadLimit-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead letter %s %s: %w", job.Kind, job.ID, err)
	}
	return q.Ack(ctx, job)
}

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.delayedKey()},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch, q.prefix+":queue:",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	raws, err := q.rdb.LRange(ctx, q.inflightKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read in-flight jobs: %w", err)
	}
	n := 0
	for _, raw := range raws {
		job, err := decode(raw)
		if err != nil {
			q.rdb.LRem(ctx, q.inflightKey(), 1, raw)
			continue
		}
		_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, q.inflightKey(), 1, raw)
			pipe.RPush(ctx, q.listKey(job.Kind), raw)
			return nil
		})
		if err != nil {
			return n, fmt.Errorf("recover %s %s: %w", job.Kind, job.ID, err)
		}
		n++
	}
	return n, nil
}
