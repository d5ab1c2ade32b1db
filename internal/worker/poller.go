package worker

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/scheduler"
)

// Poller drives Scheduler.PollOnce on a fixed interval.
type Poller struct {
	sched    *scheduler.Scheduler
	cron     gocron.Scheduler
	logger   *zap.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	stopOnce sync.Once
}

// StartPoller registers the poll job and starts it immediately. Cycles never
// overlap; a slow cycle delays the next one instead of stacking.
func StartPoller(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration, logger *zap.Logger) (*Poller, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	p := &Poller{
		sched:    sched,
		cron:     cron,
		logger:   logger,
		interval: interval,
		ctx:      pollCtx,
		cancel:   cancel,
	}

	_, err = cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.runCycle),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("scheduler", "poll"),
		gocron.WithName("task-poller"),
	)
	if err != nil {
		cancel()
		_ = cron.Shutdown()
		return nil, err
	}

	cron.Start()
	logger.Info("task poller started", zap.Duration("interval", interval))
	return p, nil
}

func (p *Poller) runCycle() {
	if p.ctx.Err() != nil {
		return
	}
	start := time.Now()
	stats, err := p.sched.PollOnce(p.ctx)
	if err != nil {
		// Transient store or lease failure; the next cycle retries.
		p.logger.Error("poll cycle failed", zap.Error(err))
		return
	}
	if stats.Due > 0 {
		p.logger.Info("poll cycle complete",
			zap.Int("due", stats.Due),
			zap.Int("fired", stats.Fired),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("unknown", stats.Unknown),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Stop cancels in-flight work, waits for the running cycle and releases the lease.
func (p *Poller) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		p.cancel()
		err = p.cron.Shutdown()

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if releaseErr := p.sched.ReleaseLease(releaseCtx); releaseErr != nil {
			p.logger.Warn("release poller lease", zap.Error(releaseErr))
		}
		p.logger.Info("task poller stopped")
	})
	return err
}
