package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/pipeline"
	"github.com/bobarin/mathcast/internal/queue"
	"github.com/bobarin/mathcast/internal/tracker"
)

const (
	dequeueTimeout = 5 * time.Second
	pruneInterval  = 5 * time.Minute
)

// Renderer turns one request into a file. *pipeline.Pipeline implements it.
type Renderer interface {
	Run(ctx context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (*pipeline.Result, error)
}

// Publisher uploads a finished file and returns its public URL.
type Publisher interface {
	Publish(ctx context.Context, jobID uuid.UUID, localPath string) (string, error)
}

var _ Renderer = (*pipeline.Pipeline)(nil)

type Options struct {
	// Retention is how long finished jobs stay pollable. Zero keeps them
	// forever.
	Retention time.Duration
	// PublishLimit bounds concurrent uploads across all worker loops.
	PublishLimit int
}

type Worker struct {
	queue     queue.Queue
	tracker   tracker.Store
	renderer  Renderer
	publisher Publisher // Optional: nil when storage is not configured
	log       *logger.Logger
	opts      Options
	uploadSem chan struct{}

	dequeueTimeout time.Duration
	pruneInterval  time.Duration
}

func New(q queue.Queue, tr tracker.Store, r Renderer, pub Publisher, log *logger.Logger, opts Options) *Worker {
	if opts.PublishLimit <= 0 {
		opts.PublishLimit = 2
	}
	return &Worker{
		queue:          q,
		tracker:        tr,
		renderer:       r,
		publisher:      pub,
		log:            log,
		opts:           opts,
		uploadSem:      make(chan struct{}, opts.PublishLimit),
		dequeueTimeout: dequeueTimeout,
		pruneInterval:  pruneInterval,
	}
}

// ---------------------------------------------------------------------------
// Submission surface
// ---------------------------------------------------------------------------

// Submit validates the records, registers a queued job and enqueues it.
// Malformed records are rejected with models.ErrUpstreamData and no job is
// created.
func (w *Worker) Submit(ctx context.Context, problem models.ProblemRecord, solution models.SolutionRecord) (uuid.UUID, error) {
	if err := models.ValidateInput(problem, solution); err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	if _, err := w.tracker.Create(ctx, id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to register job: %w", err)
	}

	job := &queue.Job{ID: id, Problem: problem.Normalized(), Solution: solution}
	if err := w.queue.Enqueue(ctx, job); err != nil {
		w.record(context.WithoutCancel(ctx), id, tracker.Failed("could not queue job"))
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	w.log.Info("job submitted", "job_id", id, "steps", len(solution.Steps))
	return id, nil
}

// Poll returns the job's current state.
func (w *Worker) Poll(ctx context.Context, id uuid.UUID) (models.RenderJob, error) {
	return w.tracker.Read(ctx, id)
}

// ---------------------------------------------------------------------------
// Processing loops
// ---------------------------------------------------------------------------

// Start runs concurrency render loops plus the retention pruner until ctx
// is cancelled. Each loop renders one job at a time.
func (w *Worker) Start(ctx context.Context, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	w.log.Info("worker started", "concurrency", concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return w.processQueue(gctx)
		})
	}
	if w.opts.Retention > 0 {
		g.Go(func() error {
			w.pruneLoop(gctx)
			return nil
		})
	}

	err := g.Wait()
	w.log.Info("worker shutting down")
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}

func (w *Worker) processQueue(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.queue.Dequeue(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return err
			}
			w.log.Error("error dequeuing", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue // No job available, retry
		}

		w.process(ctx, job)
	}
}

// process renders one job and records the outcome. It never returns an
// error: every failure ends up on the job.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log := w.log.With("job_id", job.ID)
	log.Info("processing job")

	// Final writes must land even when shutdown cancels the render.
	bg := context.WithoutCancel(ctx)

	// Jobs enqueued by a process with its own in-memory tracker are unknown here.
	if _, err := w.tracker.Create(ctx, job.ID); err != nil {
		log.Warn("failed to register job", "error", err)
	}
	w.record(ctx, job.ID, tracker.Started())

	res, err := w.renderer.Run(ctx, pipeline.Request{
		JobID:    job.ID,
		Problem:  job.Problem,
		Solution: job.Solution,
	}, func(percent int, message string) {
		w.record(ctx, job.ID, tracker.Progress(percent, message))
	})
	if err != nil {
		log.Error("job failed", "error", err)
		w.record(bg, job.ID, tracker.Failed(failureMessage(err)))
		return
	}

	log.Info("job completed", "tier", res.Tier, "output", res.OutputPath, "attempts", len(res.Attempts))
	w.record(bg, job.ID, tracker.Completed(res.OutputPath, res.Tier.String()))

	if w.publisher != nil {
		w.publish(ctx, job.ID, res.OutputPath)
	}
}

// publish uploads the artifact. Failures are logged and never fail the job.
func (w *Worker) publish(ctx context.Context, id uuid.UUID, path string) {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-w.uploadSem }()

	url, err := w.publisher.Publish(ctx, id, path)
	if err != nil {
		w.log.Warn("publish failed, keeping local file only", "job_id", id, "error", err)
		return
	}
	w.record(ctx, id, tracker.Published(url))
}

// record applies d, logging rather than failing when the tracker is
// unreachable.
func (w *Worker) record(ctx context.Context, id uuid.UUID, d tracker.Delta) {
	if err := w.tracker.Update(ctx, id, d); err != nil {
		w.log.Warn("failed to update job status", "job_id", id, "error", err)
	}
}

func (w *Worker) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.tracker.Prune(ctx, w.opts.Retention)
			if err != nil {
				w.log.Warn("failed to prune jobs", "error", err)
			} else if n > 0 {
				w.log.Info("pruned finished jobs", "count", n)
			}
		}
	}
}

// failureMessage is what pollers see for a failed job.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrUpstreamData):
		return "invalid problem or solution: " + err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "rendering cancelled"
	case errors.Is(err, pipeline.ErrAbandoned):
		return "video could not be rendered: " + err.Error()
	default:
		return err.Error()
	}
}
