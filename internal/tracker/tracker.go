// Package tracker holds the status of every submitted render job. It is the
// only state shared between the worker that runs a job and the callers that
// poll it. Tracker keeps jobs in process memory; RedisTracker keeps them in
// Redis so that API and worker processes sharing a queue see the same jobs.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

// Delta is a partial update. Nil fields are left unchanged.
type Delta struct {
	Status     *models.JobStatus
	Progress   *int
	Message    *string
	Tier       *string
	ResultPath *string
	PublicURL  *string
	Error      *string
}

// Progress reports percent done while rendering.
func Progress(percent int, message string) Delta {
	return Delta{Progress: &percent, Message: &message}
}

// Started moves a job to rendering.
func Started() Delta {
	s := models.JobStatusRendering
	msg := "Rendering started"
	return Delta{Status: &s, Message: &msg}
}

// Completed records the finished file and the tier that produced it.
func Completed(resultPath, tier string) Delta {
	s := models.JobStatusCompleted
	msg := "Video ready"
	return Delta{Status: &s, Message: &msg, ResultPath: &resultPath, Tier: &tier}
}

// Failed records a terminal error message.
func Failed(message string) Delta {
	s := models.JobStatusFailed
	return Delta{Status: &s, Error: &message, Message: &message}
}

// Published records where a completed artifact was uploaded.
func Published(url string) Delta {
	return Delta{PublicURL: &url}
}

// Store is implemented by Tracker and RedisTracker.
type Store interface {
	// Create registers id as queued. Creating an existing id returns its
	// current state unchanged.
	Create(ctx context.Context, id uuid.UUID) (models.RenderJob, error)
	Update(ctx context.Context, id uuid.UUID, d Delta) error
	Read(ctx context.Context, id uuid.UUID) (models.RenderJob, error)
	// Prune drops terminal jobs last updated more than olderThan ago.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

var (
	_ Store = (*Tracker)(nil)
	_ Store = (*RedisTracker)(nil)
)

func newJob(id uuid.UUID, now time.Time) models.RenderJob {
	return models.RenderJob{
		ID:        id,
		Status:    models.JobStatusQueued,
		Message:   "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// apply folds d into job and reports whether anything changed. Terminal jobs
// are frozen, progress never moves backwards, and completion forces progress
// to 100.
func apply(job *models.RenderJob, d Delta, now time.Time) bool {
	if job.Status.IsTerminal() {
		// Publishing happens after completion and is the only late write.
		if job.Status == models.JobStatusCompleted && d.PublicURL != nil && d.Status == nil {
			job.PublicURL = *d.PublicURL
			job.UpdatedAt = now
			return true
		}
		return false
	}

	if d.Status != nil {
		job.Status = *d.Status
	}
	if d.Progress != nil && *d.Progress > job.Progress {
		job.Progress = min(*d.Progress, 100)
	}
	if d.Message != nil {
		job.Message = *d.Message
	}
	if d.Tier != nil {
		job.Tier = *d.Tier
	}
	if d.ResultPath != nil {
		job.ResultPath = *d.ResultPath
	}
	if d.PublicURL != nil {
		job.PublicURL = *d.PublicURL
	}
	if d.Error != nil {
		job.Error = *d.Error
	}
	if job.Status == models.JobStatusCompleted {
		job.Progress = 100
	}
	job.UpdatedAt = now
	return true
}

type entry struct {
	mu  sync.Mutex
	job models.RenderJob
}

type Tracker struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*entry
	now  func() time.Time
}

func New() *Tracker {
	return &Tracker{
		jobs: make(map[uuid.UUID]*entry),
		now:  time.Now,
	}
}

func (t *Tracker) Create(ctx context.Context, id uuid.UUID) (models.RenderJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.jobs[id]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.job, nil
	}
	e := &entry{job: newJob(id, t.now())}
	t.jobs[id] = e
	return e.job, nil
}

// Update applies d to the job.
func (t *Tracker) Update(ctx context.Context, id uuid.UUID, d Delta) error {
	e, err := t.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	apply(&e.job, d, t.now())
	return nil
}

// Read returns a copy of the job's current state.
func (t *Tracker) Read(ctx context.Context, id uuid.UUID) (models.RenderJob, error) {
	e, err := t.lookup(id)
	if err != nil {
		return models.RenderJob{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, nil
}

func (t *Tracker) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := t.now().Add(-olderThan)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, e := range t.jobs {
		e.mu.Lock()
		stale := e.job.Status.IsTerminal() && e.job.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(t.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

func (t *Tracker) lookup(id uuid.UUID) (*entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return e, nil
}
