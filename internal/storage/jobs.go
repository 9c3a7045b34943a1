package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/creatorhub/copyscan/internal/scheduler"
)

// Enqueue inserts a pending job due immediately.
func (s *PostgresStore) Enqueue(ctx context.Context, kind string, payload any) (*scheduler.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	job := &scheduler.Job{
		ID:      uuid.New(),
		Kind:    kind,
		Payload: raw,
		Status:  scheduler.StatusPending,
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, kind, payload) VALUES ($1, $2, $3)
		 RETURNING run_after, created_at, updated_at`,
		job.ID, job.Kind, []byte(raw),
	).Scan(&job.RunAfter, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	return job, nil
}

// DequeueOne claims the oldest due pending job with SKIP LOCKED, marks it
// processing and increments its attempt counter.
func (s *PostgresStore) DequeueOne(ctx context.Context) (*scheduler.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		UPDATE jobs SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND run_after <= now()
			ORDER BY run_after, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

// Report records the outcome of a processing job.
func (s *PostgresStore) Report(ctx context.Context, id uuid.UUID, o scheduler.Outcome) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch o.Kind {
	case scheduler.OutcomeCompleted:
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = 'completed', result = $2, last_error = '', updated_at = now()
			 WHERE id = $1 AND status = 'processing'`, id, nullJSON(o.Result))
	case scheduler.OutcomeFailed:
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = 'failed', last_error = $2, updated_at = now()
			 WHERE id = $1 AND status = 'processing'`, id, o.Error)
	case scheduler.OutcomeRetry:
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = 'pending', run_after = $2, last_error = $3, updated_at = now()
			 WHERE id = $1 AND status = 'processing'`, id, o.RetryAt, o.Error)
	case scheduler.OutcomeReleased:
		tag, err = s.pool.Exec(ctx,
			`UPDATE jobs SET status = 'pending', run_after = now(), attempts = GREATEST(attempts - 1, 0),
				last_error = $2, updated_at = now()
			 WHERE id = $1 AND status = 'processing'`, id, o.Error)
	default:
		return fmt.Errorf("report job %s: unknown outcome %q", id, o.Kind)
	}
	if err != nil {
		return fmt.Errorf("report job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetJob returns a job by id, or (nil, nil) when it does not exist.
func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*scheduler.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ResetStuck recovers jobs that have been processing for longer than
// olderThan, which happens when a worker dies mid-job. Jobs that already used
// maxAttempts are failed instead of being claimed again.
func (s *PostgresStore) ResetStuck(ctx context.Context, olderThan time.Duration, maxAttempts int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET
			status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			last_error = CASE WHEN attempts >= $2
				THEN 'worker lost after ' || attempts || ' attempts'
				ELSE 'worker lost' END,
			run_after = now(),
			updated_at = now()
		 WHERE status = 'processing' AND updated_at < $1`,
		time.Now().Add(-olderThan), maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingCount returns how many jobs wait to run.
func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

const jobColumns = `id, kind, payload, status, attempts, last_error, result, run_after, created_at, updated_at`

func scanJob(row pgx.Row) (*scheduler.Job, error) {
	var j scheduler.Job
	var status string
	var payload, result []byte
	if err := row.Scan(&j.ID, &j.Kind, &payload, &status, &j.Attempts, &j.LastError, &result,
		&j.RunAfter, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = scheduler.Status(status)
	j.Payload = payload
	if len(result) > 0 {
		j.Result = result
	}
	return &j, nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
