// Package queue hands submitted render jobs to workers, either through a
// Redis list shared by several processes or an in-process channel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/models"
)

const QueueRenderJob = "queue:render_job"

var ErrClosed = errors.New("queue closed")

// Job is one render request as it travels through the queue.
type Job struct {
	ID        uuid.UUID             `json:"id"`
	Problem   models.ProblemRecord  `json:"problem"`
	Solution  models.SolutionRecord `json:"solution"`
	CreatedAt time.Time             `json:"created_at"`
}

// Queue is implemented by RedisQueue and MemoryQueue. Dequeue returns
// (nil, nil) when no job arrived within timeout.
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

var (
	_ Queue = (*RedisQueue)(nil)
	_ Queue = (*MemoryQueue)(nil)
)

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

type RedisQueue struct {
	client *redis.Client
	name   string
}

func New(redisURL string) (*RedisQueue, error) {
	client, err := Connect(redisURL)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

// Connect parses redisURL and pings the server.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewWithClient shares an existing client, e.g. with the synthesis cache.
func NewWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, name: QueueRenderJob}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, q.name, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil // No job available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeJob([]byte(result[1]))
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// ---------------------------------------------------------------------------
// In-process
// ---------------------------------------------------------------------------

// MemoryQueue is a bounded channel queue for single-process deployments.
type MemoryQueue struct {
	jobs      chan *Job
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemory(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryQueue{
		jobs: make(chan *Job, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	job.CreatedAt = time.Now()
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.jobs:
		return job, nil
	case <-timer.C:
		return nil, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

// Close wakes blocked callers and rejects further enqueues.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
