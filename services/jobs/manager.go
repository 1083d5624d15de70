package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/upb/llm-job-gateway/internal/observability"
	"github.com/upb/llm-job-gateway/services"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultRetention     = time.Hour
	DefaultSweepInterval = time.Minute
)

// ErrClosed is returned by Submit after Close
var ErrClosed = services.NewDomainError(services.ErrorTypeUnknown, "job manager is closed", nil)

// Options configures a Manager
type Options struct {
	// Retention is how long a terminal job stays visible. Zero means
	// DefaultRetention.
	Retention time.Duration

	// SweepInterval is the period of the background purge. Zero means
	// DefaultSweepInterval; negative disables the sweeper, leaving only
	// the lazy expiry done on every lookup.
	SweepInterval time.Duration

	// MaxConcurrent bounds running jobs. Zero means unbounded.
	MaxConcurrent int

	// NodeID is the snowflake node id (0-1023)
	NodeID int64

	// Clock overrides time.Now for tests
	Clock func() time.Time

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Manager owns every job for its whole lifetime: it assigns ids, runs each
// job on its own goroutine and serves polls from copies taken under mu.
type Manager struct {
	mu      sync.Mutex
	jobs    map[string]*job
	seq     uint64
	closed  bool
	runners map[string]Runner

	node      *snowflake.Node
	now       func() time.Time
	retention time.Duration
	slots     *semaphore.Weighted

	logger  *zap.Logger
	metrics *observability.Metrics

	baseCtx   context.Context
	stopAll   context.CancelFunc
	stopSweep chan struct{}
	sweepDone chan struct{}
	closeOnce sync.Once
	workers   sync.WaitGroup
}

// NewManager creates a manager for the given job kinds and starts its
// sweeper
func NewManager(runners map[string]Runner, opts Options) (*Manager, error) {
	if len(runners) == 0 {
		return nil, errors.New("at least one job runner is required")
	}
	for kind, runner := range runners {
		if kind == "" || runner == nil {
			return nil, fmt.Errorf("invalid runner registration for kind %q", kind)
		}
	}

	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	baseCtx, stopAll := context.WithCancel(context.Background())

	m := &Manager{
		jobs:      make(map[string]*job),
		runners:   make(map[string]Runner, len(runners)),
		node:      node,
		now:       opts.Clock,
		retention: opts.Retention,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		baseCtx:   baseCtx,
		stopAll:   stopAll,
	}
	for kind, runner := range runners {
		m.runners[kind] = runner
	}
	if opts.MaxConcurrent > 0 {
		m.slots = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}

	if opts.SweepInterval > 0 {
		m.stopSweep = make(chan struct{})
		m.sweepDone = make(chan struct{})
		go m.runSweeper(opts.SweepInterval)
	}

	return m, nil
}

// Kinds returns the registered job kinds, sorted
func (m *Manager) Kinds() []string {
	kinds := make([]string, 0, len(m.runners))
	for kind := range m.runners {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// Submit enqueues a job and returns its id without waiting for it to run.
// Unknown kinds and payloads the runner rejects fail with bad_request.
func (m *Manager) Submit(kind string, payload json.RawMessage) (string, error) {
	runner, ok := m.runners[kind]
	if !ok {
		return "", services.BadRequest("unknown job kind %q", kind)
	}
	if validator, ok := runner.(PayloadValidator); ok {
		if err := validator.Validate(payload); err != nil {
			return "", services.Classify(err)
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	m.seq++
	j := &job{
		id:        m.node.Generate().String(),
		seq:       m.seq,
		kind:      kind,
		payload:   append(json.RawMessage(nil), payload...),
		state:     StatePending,
		createdAt: m.now(),
		cancel:    cancel,
	}
	m.jobs[j.id] = j
	m.workers.Add(1)
	m.mu.Unlock()

	m.metrics.JobSubmitted(kind)
	m.logger.Info("job submitted", zap.String("job_id", j.id), zap.String("kind", kind))

	go m.execute(ctx, j.id, kind, runner, j.payload)
	return j.id, nil
}

// Status returns a snapshot of the job
func (m *Manager) Status(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.lookup(id)
	if j == nil {
		return Status{}, notFound(id)
	}
	return j.snapshot(), nil
}

// Result returns the job outcome. A job that has not finished yields the
// pending shape, not an error.
func (m *Manager) Result(id string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := m.lookup(id)
	if j == nil {
		return Outcome{}, notFound(id)
	}
	return j.outcome(), nil
}

// Cancel moves a pending or running job to cancelled and aborts its context.
// It returns false when the job is unknown, expired or already terminal.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	j := m.lookup(id)
	if j == nil || j.state.Terminal() {
		m.mu.Unlock()
		return false
	}
	duration := m.markCancelled(j)
	kind := j.kind
	m.mu.Unlock()

	m.metrics.JobFinished(kind, string(StateCancelled), duration)
	m.logger.Info("job cancelled", zap.String("job_id", id), zap.String("kind", kind))
	return true
}

// List returns snapshots of all visible jobs in submission order
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	visible := make([]*job, 0, len(m.jobs))
	for id, j := range m.jobs {
		if m.expired(j, now) {
			delete(m.jobs, id)
			continue
		}
		visible = append(visible, j)
	}
	sort.Slice(visible, func(a, b int) bool { return visible[a].seq < visible[b].seq })

	statuses := make([]Status, len(visible))
	for i, j := range visible {
		statuses[i] = j.snapshot()
	}
	return statuses
}

// Close stops the sweeper, rejects further submissions and cancels every
// job that has not finished. It does not wait for workers to return.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		cancelled := 0
		for _, j := range m.jobs {
			if !j.state.Terminal() {
				m.markCancelled(j)
				cancelled++
			}
		}
		m.mu.Unlock()

		m.stopAll()
		if m.stopSweep != nil {
			close(m.stopSweep)
			<-m.sweepDone
		}
		m.logger.Info("job manager closed", zap.Int("cancelled_jobs", cancelled))
	})
}

// Shutdown closes the manager and waits for worker goroutines to return or
// ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	m.Close()

	done := make(chan struct{})
	go func() {
		m.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) execute(ctx context.Context, id, kind string, runner Runner, payload json.RawMessage) {
	defer m.workers.Done()

	if m.slots != nil {
		// a cancelled wait means Cancel or Close already recorded the state
		if err := m.slots.Acquire(ctx, 1); err != nil {
			return
		}
		defer m.slots.Release(1)
	}

	if !m.start(id) {
		return
	}

	ctx, span := observability.StartSpan(ctx, "jobs.run",
		attribute.String("job.id", id),
		attribute.String("job.kind", kind),
	)
	result, err := runSafely(ctx, runner, payload)
	observability.EndSpan(span, err)

	m.finish(id, result, err)
}

// start moves a pending job to running
func (m *Manager) start(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok || j.state != StatePending {
		return false
	}
	now := m.now()
	j.state = StateRunning
	j.startedAt = &now
	return true
}

// finish records the runner's outcome unless the job left running in the
// meantime, in which case the late write is dropped
func (m *Manager) finish(id string, result any, runErr error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.state != StateRunning {
		m.mu.Unlock()
		m.logger.Debug("discarding result of job no longer running", zap.String("job_id", id))
		return
	}

	now := m.now()
	j.completedAt = &now
	if runErr != nil {
		j.state = StateFailed
		j.err = toDomainError(runErr)
	} else {
		j.state = StateCompleted
		j.result = result
	}
	j.cancel()

	state, kind, jobErr := j.state, j.kind, j.err
	duration := now.Sub(*j.startedAt)
	m.mu.Unlock()

	m.metrics.JobFinished(kind, string(state), duration)
	if jobErr != nil {
		m.logger.Warn("job failed",
			zap.String("job_id", id),
			zap.String("kind", kind),
			zap.String("error_kind", string(jobErr.Type)),
			zap.Bool("retryable", jobErr.Retryable()),
			zap.Duration("duration", duration),
			zap.Error(jobErr))
		return
	}
	m.logger.Info("job completed",
		zap.String("job_id", id),
		zap.String("kind", kind),
		zap.Duration("duration", duration))
}

// markCancelled must be called with mu held on a non-terminal job
func (m *Manager) markCancelled(j *job) time.Duration {
	now := m.now()
	if j.startedAt == nil {
		j.startedAt = &now
	}
	j.state = StateCancelled
	j.completedAt = &now
	j.cancel()
	return now.Sub(*j.startedAt)
}

// lookup must be called with mu held. Expired jobs are removed on sight.
func (m *Manager) lookup(id string) *job {
	j, ok := m.jobs[id]
	if !ok {
		return nil
	}
	if m.expired(j, m.now()) {
		delete(m.jobs, id)
		return nil
	}
	return j
}

func (m *Manager) expired(j *job, now time.Time) bool {
	return j.completedAt != nil && !now.Before(j.completedAt.Add(m.retention))
}

func (m *Manager) runSweeper(interval time.Duration) {
	defer close(m.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopSweep:
			return
		}
	}
}

// sweep purges expired jobs and returns how many were removed
func (m *Manager) sweep() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for id, j := range m.jobs {
		if m.expired(j, now) {
			delete(m.jobs, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debug("expired jobs purged", zap.Int("count", removed))
	}
	return removed
}

func runSafely(ctx context.Context, runner Runner, payload json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.NewDomainError(services.ErrorTypeUnknown, fmt.Sprintf("job panicked: %v", r), nil)
		}
	}()
	return runner.Run(ctx, payload)
}

func toDomainError(err error) *services.DomainError {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return services.NewDomainError(services.ErrorTypeUnknown, "unclassified error", err)
}

func notFound(id string) error {
	return services.NewDomainError(services.ErrorTypeJobNotFound,
		fmt.Sprintf("job %q not found", id), nil).WithDetail("job_id", id)
}
