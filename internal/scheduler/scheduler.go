// Package scheduler fires durable, time-delayed tasks through a registry of
// kind handlers. Tasks are discovered by polling the task store, and each one
// is claimed with a conditional write before its handler runs, so a task is
// dispatched at most once even when poll cycles overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

// Handler processes one fired task.
type Handler func(ctx context.Context, taskID int64, payload domain.Payload) error

// Clock returns the current time.
type Clock func() time.Time

// Recorder receives per-task dispatch outcomes.
type Recorder interface {
	RecordTask(kind, outcome string)
}

// Lease decides whether this process is the active poller.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Dispatch outcomes reported to the Recorder.
const (
	OutcomeFired   = "fired"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeUnknown = "unknown_kind"
)

var (
	// ErrHandlerExists is returned when a kind already has a handler.
	ErrHandlerExists = errors.New("scheduler: handler already registered for kind")
	// ErrInvalidTask is returned for an empty kind or a nil handler.
	ErrInvalidTask = errors.New("scheduler: invalid task definition")
)

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Logger    *zap.Logger
	Metrics   Recorder
	Clock     Clock
	BatchSize int
	Lease     Lease
}

// PollStats summarizes one poll cycle.
type PollStats struct {
	Due     int
	Fired   int
	Failed  int
	Skipped int
	Unknown int
}

// Scheduler owns the kind registry and the poll cycle.
type Scheduler struct {
	tasks     repository.TaskRepository
	logger    *zap.Logger
	metrics   Recorder
	now       Clock
	batchSize int
	lease     Lease

	mu       sync.RWMutex
	handlers map[domain.TaskKind]Handler

	pollMu sync.Mutex
}

// New builds a scheduler over the task store.
func New(tasks repository.TaskRepository, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Scheduler{
		tasks:     tasks,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		now:       opts.Clock,
		batchSize: opts.BatchSize,
		lease:     opts.Lease,
		handlers:  make(map[domain.TaskKind]Handler),
	}
}

// Register binds a handler to kind. A second registration for the same kind fails.
func (s *Scheduler) Register(kind domain.TaskKind, handler Handler) error {
	if kind == "" || handler == nil {
		return ErrInvalidTask
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, kind)
	}
	s.handlers[kind] = handler
	return nil
}

// Kinds lists registered kinds.
func (s *Scheduler) Kinds() []domain.TaskKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]domain.TaskKind, 0, len(s.handlers))
	for kind := range s.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Now exposes the scheduler clock so callers stamp records consistently.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// CreateTimer schedules kind to fire after delay.
func (s *Scheduler) CreateTimer(ctx context.Context, kind domain.TaskKind, delay time.Duration, payload domain.Payload) (int64, error) {
	return s.Schedule(ctx, kind, s.now().Add(delay), payload)
}

// Schedule persists a task firing no earlier than at.
func (s *Scheduler) Schedule(ctx context.Context, kind domain.TaskKind, at time.Time, payload domain.Payload) (int64, error) {
	if kind == "" {
		return 0, ErrInvalidTask
	}
	if payload == nil {
		payload = domain.Payload{}
	}
	task := &domain.ScheduledTask{
		Kind:      kind,
		FiresAt:   at.UTC(),
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return 0, fmt.Errorf("schedule %s: %w", kind, err)
	}
	s.logger.Debug("task scheduled",
		zap.Int64("task_id", task.ID),
		zap.String("kind", string(kind)),
		zap.Time("fires_at", task.FiresAt),
	)
	return task.ID, nil
}

// Cancel cancels one pending task. It returns false when the task already
// fired or was cancelled.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (bool, error) {
	ok, err := s.tasks.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("cancel task %d: %w", id, err)
	}
	return ok, nil
}

// CancelTimersFor cancels every pending task of kind whose payload[key]
// equals value. A task already claimed by a running poll cycle still fires.
func (s *Scheduler) CancelTimersFor(ctx context.Context, kind domain.TaskKind, key, value string) (int64, error) {
	n, err := s.tasks.CancelMatching(ctx, kind, key, value)
	if err != nil {
		return 0, fmt.Errorf("cancel %s timers for %s=%s: %w", kind, key, value, err)
	}
	if n > 0 {
		s.logger.Debug("timers cancelled",
			zap.String("kind", string(kind)),
			zap.String(key, value),
			zap.Int64("count", n),
		)
	}
	return n, nil
}

// PollOnce runs a single discovery and dispatch cycle. Cycles in the same
// process never overlap. A store error on discovery is returned; per-task
// failures are logged and counted.
func (s *Scheduler) PollOnce(ctx context.Context) (PollStats, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	var stats PollStats
	if s.lease != nil {
		active, err := s.lease.Acquire(ctx)
		if err != nil {
			return stats, fmt.Errorf("acquire poller lease: %w", err)
		}
		if !active {
			s.logger.Debug("poller lease held elsewhere, skipping cycle")
			return stats, nil
		}
	}

	due, err := s.tasks.GetDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("load due tasks: %w", err)
	}
	stats.Due = len(due)

	for _, task := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		switch s.dispatch(ctx, task) {
		case OutcomeFired:
			stats.Fired++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeUnknown:
			stats.Unknown++
		default:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (s *Scheduler) dispatch(ctx context.Context, task domain.ScheduledTask) string {
	logger := s.logger.With(zap.Int64("task_id", task.ID), zap.String("kind", string(task.Kind)))

	won, err := s.tasks.MarkFired(ctx, task.ID)
	if err != nil {
		// Left pending; the next cycle rediscovers it.
		logger.Error("mark task fired", zap.Error(err))
		return s.record(task.Kind, OutcomeSkipped)
	}
	if !won {
		logger.Debug("task already fired or cancelled")
		return s.record(task.Kind, OutcomeSkipped)
	}

	s.mu.RLock()
	handler, ok := s.handlers[task.Kind]
	s.mu.RUnlock()
	if !ok {
		logger.Warn("no handler registered for task kind")
		return s.record(task.Kind, OutcomeUnknown)
	}

	if err := s.invoke(ctx, handler, task); err != nil {
		logger.Error("task handler failed", zap.Error(err))
		return s.record(task.Kind, OutcomeFailed)
	}
	logger.Info("task fired", zap.Time("fires_at", task.FiresAt))
	return s.record(task.Kind, OutcomeFired)
}

func (s *Scheduler) invoke(ctx context.Context, handler Handler, task domain.ScheduledTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			s.logger.Error("task handler panicked",
				zap.Int64("task_id", task.ID),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	payload := task.Payload
	if payload == nil {
		payload = domain.Payload{}
	}
	return handler(ctx, task.ID, payload)
}

func (s *Scheduler) record(kind domain.TaskKind, outcome string) string {
	if s.metrics != nil {
		s.metrics.RecordTask(string(kind), outcome)
	}
	return outcome
}

// ReleaseLease gives up the poller lease, if any.
func (s *Scheduler) ReleaseLease(ctx context.Context) error {
	if s.lease == nil {
		return nil
	}
	return s.lease.Release(ctx)
}
