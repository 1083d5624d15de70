package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/upb/llm-job-gateway/services"
)

// State is the lifecycle state of a job
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transition is allowed
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Runner executes one kind of job. The payload is the raw value passed to
// Submit; ctx is cancelled when the job is cancelled or the manager closes.
type Runner interface {
	Run(ctx context.Context, payload json.RawMessage) (any, error)
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Run calls f(ctx, payload)
func (f RunnerFunc) Run(ctx context.Context, payload json.RawMessage) (any, error) {
	return f(ctx, payload)
}

// PayloadValidator is implemented by runners that can reject a payload
// before the job is enqueued
type PayloadValidator interface {
	Validate(payload json.RawMessage) error
}

// job is the manager-owned record. Only the manager touches it, always under
// its mutex.
type job struct {
	id          string
	seq         uint64
	kind        string
	payload     json.RawMessage
	state       State
	result      any
	err         *services.DomainError
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	cancel      context.CancelFunc
}

// Status is a consistent snapshot of a job's public fields
type Status struct {
	ID           string             `json:"id"`
	Kind         string             `json:"kind"`
	State        State              `json:"state"`
	CreatedAt    time.Time          `json:"created_at"`
	StartedAt    *time.Time         `json:"started_at,omitempty"`
	CompletedAt  *time.Time         `json:"completed_at,omitempty"`
	ErrorKind    services.ErrorType `json:"error_kind,omitempty"`
	ErrorSummary string             `json:"error,omitempty"`
}

// Outcome is the result of polling a job. Exactly one shape applies:
// Success with Result, failure with Error, or Pending.
type Outcome struct {
	Success   bool               `json:"success"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorKind services.ErrorType `json:"error_kind,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
	Pending   bool               `json:"pending,omitempty"`
}

func (j *job) snapshot() Status {
	status := Status{
		ID:          j.id,
		Kind:        j.kind,
		State:       j.state,
		CreatedAt:   j.createdAt,
		StartedAt:   copyTime(j.startedAt),
		CompletedAt: copyTime(j.completedAt),
	}
	if j.err != nil {
		status.ErrorKind = j.err.Type
		status.ErrorSummary = services.Summary(j.err)
	}
	return status
}

func (j *job) outcome() Outcome {
	switch j.state {
	case StateCompleted:
		return Outcome{Success: true, Result: j.result}
	case StateFailed:
		return Outcome{
			Error:     services.Summary(j.err),
			ErrorKind: j.err.Type,
			Retryable: j.err.Retryable(),
		}
	case StateCancelled:
		return Outcome{Error: "job cancelled"}
	default:
		return Outcome{Pending: true}
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
