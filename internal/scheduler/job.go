// Package scheduler runs persisted jobs with retry and backoff.
//
// A Queue hands out one due job at a time; the Runner executes the handler
// registered for the job's kind and reports an Outcome back. The queue owns
// the attempt counter: DequeueOne increments it before the job is returned.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is a claimed unit of work. Attempts includes the current attempt.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    Status          `json:"status"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	RunAfter  time.Time       `json:"run_after"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeRetry     OutcomeKind = "retry"
	// OutcomeReleased hands an interrupted job back without counting the
	// attempt against MaxAttempts.
	OutcomeReleased  OutcomeKind = "released"
)

// Outcome is what the runner reports for a finished attempt.
type Outcome struct {
	Kind    OutcomeKind
	Result  json.RawMessage
	Error   string
	RetryAt time.Time // only for OutcomeRetry
}

func Completed(result json.RawMessage) Outcome {
	return Outcome{Kind: OutcomeCompleted, Result: result}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Error: err.Error()}
}

func RetryAt(err error, at time.Time) Outcome {
	return Outcome{Kind: OutcomeRetry, Error: err.Error(), RetryAt: at}
}

// Released returns a job interrupted by shutdown to the queue, due now.
func Released(err error) Outcome {
	return Outcome{Kind: OutcomeReleased, Error: err.Error()}
}

// Queue is the persistence side of the scheduler.
type Queue interface {
	// DequeueOne claims the oldest due pending job, or returns nil when none is due.
	DequeueOne(ctx context.Context) (*Job, error)
	Report(ctx context.Context, id uuid.UUID, outcome Outcome) error
}

// Handler executes one job. The returned result is stored on completion.
type Handler func(ctx context.Context, job Job) (json.RawMessage, error)

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
