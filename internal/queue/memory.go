// internal/queue/memory.go
package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type delayedJob struct {
	job Job
	at  time.Time
}

// MemoryQueue is an in-process Broker. It keeps no state across restarts.
type MemoryQueue struct {
	mu       sync.Mutex
	now      func() time.Time
	lists    map[string][]Job
	delayed  []delayedJob
	unique   map[string]time.Time
	inflight map[string]Job
	dead     []Job
}

// NewMemoryQueue returns an empty MemoryQueue using the wall clock.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		now:      time.Now,
		lists:    map[string][]Job{},
		unique:   map[string]time.Time{},
		inflight: map[string]Job{},
	}
}

// WithClock replaces the time source.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.push(job)
	return nil
}

func (q *MemoryQueue) push(job Job) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = q.now().UTC()
	}
	q.lists[job.Kind] = append(q.lists[job.Kind], job)
}

func (q *MemoryQueue) EnqueueUnique(_ context.Context, job Job, ttl time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.UniqueKey != "" {
		if expiry, ok := q.unique[job.UniqueKey]; ok && q.now().Before(expiry) {
			return false, nil
		}
		q.unique[job.UniqueKey] = q.now().Add(ttl)
	}
	q.push(job)
	return true, nil
}

func (q *MemoryQueue) EnqueueDelayed(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedJob{job: job, at: q.now().Add(delay)})
	return nil
}

func (q *MemoryQueue) Depth(_ context.Context, kind string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.lists[kind])), nil
}

func (q *MemoryQueue) Dequeue(_ context.Context, kinds []string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, kind := range kinds {
		list := q.lists[kind]
		if len(list) == 0 {
			continue
		}
		job := list[0]
		q.lists[kind] = list[1:]
		q.inflight[job.ID] = job
		return &job, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ack(job)
	return nil
}

func (q *MemoryQueue) ack(job *Job) {
	delete(q.inflight, job.ID)
	if job.UniqueKey != "" {
		delete(q.unique, job.UniqueKey)
	}
}

func (q *MemoryQueue) DeadLetter(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, *job)
	q.ack(job)
	return nil
}

func (q *MemoryQueue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sort.SliceStable(q.delayed, func(i, j int) bool { return q.delayed[i].at.Before(q.delayed[j].at) })
	promoted := 0
	for len(q.delayed) > 0 && !q.delayed[0].at.After(now) {
		q.push(q.delayed[0].job)
		q.delayed = q.delayed[1:]
		promoted++
	}
	return promoted, nil
}

func (q *MemoryQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, job := range q.inflight {
		q.lists[job.Kind] = append(q.lists[job.Kind], job)
		delete(q.inflight, id)
		n++
	}
	return n, nil
}

// Jobs returns a copy of the runnable jobs of kind.
func (q *MemoryQueue) Jobs(kind string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.lists[kind]...)
}

// Delayed returns a copy of the delayed jobs of kind.
func (q *MemoryQueue) Delayed(kind string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Job
	for _, d := range q.delayed {
		if d.job.Kind == kind {
			out = append(out, d.job)
		}
	}
	return out
}

// Dead returns a copy of the dead-lettered jobs.
func (q *MemoryQueue) Dead() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead...)
}

// Drain removes and returns every runnable job of kind.
func (q *MemoryQueue) Drain(kind string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.lists[kind]
	delete(q.lists, kind)
	return jobs
}
