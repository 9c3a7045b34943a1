package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scheduler"
)

// memQueue mirrors the Postgres queue semantics in memory.
type memQueue struct {
	mu   sync.Mutex
	now  func() time.Time
	jobs []*scheduler.Job
}

func (q *memQueue) add(kind string) *scheduler.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := &scheduler.Job{ID: uuid.New(), Kind: kind, Status: scheduler.StatusPending, RunAfter: q.now()}
	q.jobs = append(q.jobs, j)
	return j
}

func (q *memQueue) DequeueOne(context.Context) (*scheduler.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Status == scheduler.StatusPending && !j.RunAfter.After(q.now()) {
			j.Status = scheduler.StatusProcessing
			j.Attempts++
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (q *memQueue) Report(_ context.Context, id uuid.UUID, o scheduler.Outcome) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID != id {
			continue
		}
		j.LastError = o.Error
		switch o.Kind {
		case scheduler.OutcomeCompleted:
			j.Status, j.Result = scheduler.StatusCompleted, o.Result
		case scheduler.OutcomeFailed:
			j.Status = scheduler.StatusFailed
		case scheduler.OutcomeRetry:
			j.Status, j.RunAfter = scheduler.StatusPending, o.RetryAt
		case scheduler.OutcomeReleased:
			j.Status, j.RunAfter = scheduler.StatusPending, q.now()
			if j.Attempts > 0 {
				j.Attempts--
			}
		}
		return nil
	}
	return errors.New("unknown job")
}

func (q *memQueue) get(id uuid.UUID) scheduler.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID == id {
			return *j
		}
	}
	return scheduler.Job{}
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newFixture(backoff scheduler.Backoff) (*memQueue, *scheduler.Runner, *time.Time) {
	now := epoch
	clock := func() time.Time { return now }
	q := &memQueue{now: clock}
	return q, scheduler.NewRunner(q, backoff, time.Millisecond, scheduler.WithClock(clock)), &now
}

func TestBackoffDelay(t *testing.T) {
	b := scheduler.Backoff{Base: time.Second, Max: 10 * time.Second, MaxAttempts: 5}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{200, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
	if b.Exhausted(4) || !b.Exhausted(5) {
		t.Fatal("expected exhaustion exactly at MaxAttempts")
	}
}

func TestRunOnceCompletes(t *testing.T) {
	q, r, _ := newFixture(scheduler.DefaultBackoff())
	r.Handle("scan", func(ctx context.Context, job scheduler.Job) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	job := q.add("scan")

	ran, err := r.RunOnce(context.Background())
	if err != nil || !ran {
		t.Fatalf("RunOnce = %v, %v", ran, err)
	}
	got := q.get(job.ID)
	if got.Status != scheduler.StatusCompleted || string(got.Result) != `{"ok":true}` {
		t.Fatalf("unexpected job state: %+v", got)
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	_, r, _ := newFixture(scheduler.DefaultBackoff())
	ran, err := r.RunOnce(context.Background())
	if err != nil || ran {
		t.Fatalf("RunOnce on empty queue = %v, %v", ran, err)
	}
}

func TestRetryWithBackoffThenFail(t *testing.T) {
	q, r, now := newFixture(scheduler.Backoff{Base: time.Minute, Max: time.Hour, MaxAttempts: 3})
	r.Handle("scan", func(context.Context, scheduler.Job) (json.RawMessage, error) {
		return nil, errors.New("upstream 503")
	})
	job := q.add("scan")

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	for i, d := range wantDelays {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		got := q.get(job.ID)
		if got.Status != scheduler.StatusPending || !got.RunAfter.Equal(now.Add(d)) {
			t.Fatalf("attempt %d: expected retry at +%s, got %+v", i+1, d, got)
		}

		// Not due yet.
		if ran, _ := r.RunOnce(context.Background()); ran {
			t.Fatalf("attempt %d: job ran before its retry time", i+1)
		}
		*now = got.RunAfter
	}

	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	got := q.get(job.ID)
	if got.Status != scheduler.StatusFailed || got.Attempts != 3 {
		t.Fatalf("expected failure after 3 attempts, got %+v", got)
	}
}

func TestRateLimitHintOverridesShorterBackoff(t *testing.T) {
	tests := []struct {
		name  string
		hint  time.Duration
		delay time.Duration
	}{
		{"longer hint wins", 10 * time.Minute, 10 * time.Minute},
		{"shorter hint ignored", 5 * time.Second, time.Minute},
		{"no hint", 0, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, r, now := newFixture(scheduler.Backoff{Base: time.Minute, Max: time.Hour, MaxAttempts: 5})
			r.Handle("scan", func(context.Context, scheduler.Job) (json.RawMessage, error) {
				return nil, &models.RateLimitError{Service: "ocr", RetryAfter: tt.hint}
			})
			job := q.add("scan")
			if _, err := r.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce: %v", err)
			}
			if got := q.get(job.ID); !got.RunAfter.Equal(now.Add(tt.delay)) {
				t.Fatalf("expected retry at +%s, got %s", tt.delay, got.RunAfter.Sub(*now))
			}
		})
	}
}

func TestPermanentAndUnknownFailImmediately(t *testing.T) {
	q, r, _ := newFixture(scheduler.DefaultBackoff())
	r.Handle("bad", func(context.Context, scheduler.Job) (json.RawMessage, error) {
		return nil, scheduler.Permanent(errors.New("malformed payload"))
	})
	bad := q.add("bad")
	unknown := q.add("mystery")

	for range 2 {
		if _, err := r.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}
	for _, id := range []uuid.UUID{bad.ID, unknown.ID} {
		if got := q.get(id); got.Status != scheduler.StatusFailed || got.Attempts != 1 || got.LastError == "" {
			t.Fatalf("expected immediate failure, got %+v", got)
		}
	}
}

func TestHandlerPanicIsRetried(t *testing.T) {
	q, r, _ := newFixture(scheduler.DefaultBackoff())
	r.Handle("scan", func(context.Context, scheduler.Job) (json.RawMessage, error) {
		panic("nil map")
	})
	job := q.add("scan")
	if _, err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := q.get(job.ID); got.Status != scheduler.StatusPending || got.LastError == "" {
		t.Fatalf("expected retry after panic, got %+v", got)
	}
}

func TestRunProcessesQueueUntilCancelled(t *testing.T) {
	q := &memQueue{now: time.Now}
	r := scheduler.NewRunner(q, scheduler.DefaultBackoff(), 5*time.Millisecond)

	var mu sync.Mutex
	seen := map[uuid.UUID]bool{}
	done := make(chan struct{})
	r.Handle("scan", func(_ context.Context, job scheduler.Job) (json.RawMessage, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ID] = true
		if len(seen) == 5 {
			close(done)
		}
		return nil, nil
	})
	for range 5 {
		q.add("scan")
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx, 3)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not processed in time")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	for _, j := range q.jobs {
		if got := q.get(j.ID); got.Status != scheduler.StatusCompleted {
			t.Fatalf("job %s not completed: %s", j.ID, got.Status)
		}
	}
}

func TestShutdownReleasesJobWithoutSpendingAttempt(t *testing.T) {
	q, r, _ := newFixture(scheduler.Backoff{Base: time.Second, Max: time.Minute, MaxAttempts: 1})
	var cancel context.CancelFunc
	r.Handle("scan", func(ctx context.Context, _ scheduler.Job) (json.RawMessage, error) {
		cancel()
		return nil, ctx.Err()
	})
	job := q.add("scan")

	// With MaxAttempts 1 a counted attempt would fail the job for good.
	for i := 0; i < 3; i++ {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		if _, err := r.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		cancel()
		got := q.get(job.ID)
		if got.Status != scheduler.StatusPending || got.Attempts != 0 {
			t.Fatalf("after shutdown %d: status=%s attempts=%d", i, got.Status, got.Attempts)
		}
	}
}
