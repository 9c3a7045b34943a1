package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/observability"
)

const reportTimeout = 5 * time.Second

// Runner polls a Queue and executes jobs with the registered handlers.
type Runner struct {
	queue    Queue
	backoff  Backoff
	poll     time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[string]Handler
}

type Option func(*Runner)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(q Queue, backoff Backoff, poll time.Duration, opts ...Option) *Runner {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	r := &Runner{
		queue:    q,
		backoff:  backoff,
		poll:     poll,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the handler for a job kind.
func (r *Runner) Handle(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Run dispatches due jobs to concurrency workers until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	jobs := make(chan *Job, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r.execute(ctx, job)
			}
		}()
	}

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	slog.Info("scheduler started", "workers", concurrency, "poll", r.poll)
	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			r.dispatch(ctx, jobs)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, jobs chan<- *Job) {
	for {
		job, err := r.queue.DequeueOne(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("dequeue job", "error", err)
			}
			return
		}
		if job == nil {
			return
		}
		select {
		case jobs <- job:
		case <-ctx.Done():
			// Already claimed; hand it back without spending an attempt.
			r.report(ctx, job, Released(ctx.Err()))
			return
		}
	}
}

// RunOnce claims and executes at most one job. It reports whether a job ran.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.queue.DequeueOne(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	r.execute(ctx, job)
	return true, nil
}

func (r *Runner) execute(ctx context.Context, job *Job) {
	r.mu.RLock()
	h, ok := r.handlers[job.Kind]
	r.mu.RUnlock()

	var outcome Outcome
	if !ok {
		outcome = Failed(fmt.Errorf("no handler for job kind %q", job.Kind))
	} else {
		start := time.Now()
		result, err := safeCall(ctx, h, *job)
		outcome = r.decide(ctx, job, result, err)
		slog.Info("job finished",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempts,
			"outcome", outcome.Kind,
			"took", time.Since(start).Round(time.Millisecond),
		)
	}
	observability.JobsProcessed.WithLabelValues(job.Kind, string(outcome.Kind)).Inc()
	r.report(ctx, job, outcome)
}

// decide maps a handler result to an outcome. A rate-limit hint longer than
// the computed backoff wins.
func (r *Runner) decide(ctx context.Context, job *Job, result json.RawMessage, err error) Outcome {
	switch {
	case err == nil:
		return Completed(result)
	case ctx.Err() != nil:
		return Released(err)
	case IsPermanent(err):
		return Failed(err)
	case r.backoff.Exhausted(job.Attempts):
		return Failed(fmt.Errorf("giving up after %d attempts: %w", job.Attempts, err))
	}

	delay := r.backoff.Delay(job.Attempts)
	var rl *models.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > delay {
		delay = rl.RetryAfter
	}
	slog.Warn("job failed, retrying",
		"job_id", job.ID,
		"kind", job.Kind,
		"attempt", job.Attempts,
		"delay", delay,
		"error", err,
	)
	return RetryAt(err, r.now().Add(delay))
}

func (r *Runner) report(ctx context.Context, job *Job, outcome Outcome) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := r.queue.Report(rctx, job.ID, outcome); err != nil {
		slog.Error("report job outcome", "job_id", job.ID, "outcome", outcome.Kind, "error", err)
	}
}

func safeCall(ctx context.Context, h Handler, job Job) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h(ctx, job)
}
