package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/models"
)

const (
	keyPrefix    = "mathcast:job:"
	maxTxRetries = 10
)

// RedisTracker stores one JSON value per job. Updates run in a WATCH
// transaction so concurrent writers from different processes still see
// terminal jobs as frozen and progress as monotonic.
type RedisTracker struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedis returns a tracker on client. Terminal jobs expire retention after
// their last update; zero keeps them forever.
func NewRedis(client *redis.Client, retention time.Duration) *RedisTracker {
	return &RedisTracker{client: client, retention: retention, now: time.Now}
}

func (t *RedisTracker) Create(ctx context.Context, id uuid.UUID) (models.RenderJob, error) {
	job := newJob(id, t.now())
	data, err := json.Marshal(job)
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("failed to marshal job: %w", err)
	}

	created, err := t.client.SetNX(ctx, jobKey(id), data, 0).Result()
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("failed to create job: %w", err)
	}
	if !created {
		return t.Read(ctx, id)
	}
	return job, nil
}

func (t *RedisTracker) Update(ctx context.Context, id uuid.UUID, d Delta) error {
	key := jobKey(id)
	txf := func(tx *redis.Tx) error {
		job, err := load(ctx, tx, key)
		if err != nil {
			return err
		}
		if !apply(&job, d, t.now()) {
			return nil
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, t.expiry(job))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := t.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update job %s: too many concurrent writers", id)
}

func (t *RedisTracker) Read(ctx context.Context, id uuid.UUID) (models.RenderJob, error) {
	return load(ctx, t.client, jobKey(id))
}

// Prune is a no-op: terminal jobs carry a Redis expiry instead.
func (t *RedisTracker) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (t *RedisTracker) expiry(job models.RenderJob) time.Duration {
	if job.Status.IsTerminal() {
		return t.retention
	}
	return 0
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, key string) (models.RenderJob, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.RenderJob{}, ErrJobNotFound
	}
	if err != nil {
		return models.RenderJob{}, fmt.Errorf("failed to read job: %w", err)
	}
	return decodeJob(data)
}

func decodeJob(data []byte) (models.RenderJob, error) {
	var job models.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return models.RenderJob{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

func jobKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}
