// internal/queue/queue.go

// Package queue is the asynchronous job contract the sync engine and the
// crawl scheduler defer work through: plain, unique-by-key and delayed
// enqueues with at-least-once delivery. Redis backs it in production and an
// in-memory broker serves tests and single-process runs.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of deferred work.
type Job struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Args       map[string]string `json:"args"`
	Attempt    int               `json:"attempt"`
	UniqueKey  string            `json:"unique_key,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`

	// raw is the payload exactly as stored, used to acknowledge in-flight jobs.
	raw string
}

// NewJob builds a job with a fresh id.
func NewJob(kind string, args map[string]string) Job {
	if args == nil {
		args = map[string]string{}
	}
	return Job{ID: uuid.NewString(), Kind: kind, Args: args}
}

// Arg returns a named argument or "".
func (j Job) Arg(name string) string { return j.Args[name] }

func (j Job) encode() (string, error) {
	b, err := json.Marshal(j)
	return string(b), err
}

func decode(raw string) (Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return Job{}, err
	}
	j.raw = raw
	return j, nil
}

// Queue is the producer side consumed by the engine and scheduler.
type Queue interface {
	// Enqueue schedules job for immediate execution.
	Enqueue(ctx context.Context, job Job) error
	// EnqueueUnique enqueues job unless another job with the same UniqueKey was
	// enqueued within ttl and has not finished. It reports whether job was enqueued.
	EnqueueUnique(ctx context.Context, job Job, ttl time.Duration) (bool, error)
	// EnqueueDelayed schedules job to become runnable after delay.
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) error
	// Depth returns the number of runnable jobs of kind.
	Depth(ctx context.Context, kind string) (int64, error)
}

// Broker adds the consumer side used by the worker runtime.
type Broker interface {
	Queue
	// Dequeue moves one runnable job of any of kinds into the in-flight set.
	// It returns nil when nothing is runnable.
	Dequeue(ctx context.Context, kinds []string) (*Job, error)
	// Ack removes a finished job from the in-flight set and releases its unique key.
	Ack(ctx context.Context, job *Job) error
	// DeadLetter parks a job that exhausted its attempts, then acknowledges it.
	DeadLetter(ctx context.Context, job *Job) error
	// PromoteDue makes delayed jobs whose time has come runnable.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// Recover returns jobs left in flight by a previous run of this consumer.
	Recover(ctx context.Context) (int, error)
}
