package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/repository/sqlite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) RecordTask(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[kind+"/"+outcome]++
}

func newTestScheduler(t *testing.T) (*Scheduler, repository.TaskRepository, *fakeClock) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tasks := sqlite.NewTaskRepository(db)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return New(tasks, Options{Clock: clock.Now}), tasks, clock
}

func TestRegister_RejectsDuplicateKind(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	noop := func(context.Context, int64, domain.Payload) error { return nil }

	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, noop))
	err := sched.Register(domain.TaskKindMemberNudge, noop)
	assert.ErrorIs(t, err, ErrHandlerExists)

	assert.ErrorIs(t, sched.Register("", noop), ErrInvalidTask)
	assert.ErrorIs(t, sched.Register(domain.TaskKindMuteExpiry, nil), ErrInvalidTask)
	assert.Len(t, sched.Kinds(), 1)
}

func TestPollOnce_FiresEachTaskExactlyOnce(t *testing.T) {
	ctx := context.Background()
	sched, tasks, clock := newTestScheduler(t)

	var (
		mu    sync.Mutex
		calls = map[int64]int{}
	)
	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, func(_ context.Context, id int64, _ domain.Payload) error {
		mu.Lock()
		calls[id]++
		mu.Unlock()
		return nil
	}))

	var ids []int64
	for i := 1; i <= 5; i++ {
		id, err := sched.CreateTimer(ctx, domain.TaskKindMemberNudge, time.Duration(i)*time.Minute, domain.TicketPayload(int64(i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	stats, err := sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Fired, "nothing due yet")

	for step := 0; step < 12; step++ {
		clock.Advance(30 * time.Second)
		_, err := sched.PollOnce(ctx)
		require.NoError(t, err)
	}

	for _, id := range ids {
		assert.Equal(t, 1, calls[id], "task %d", id)
		task, err := tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, task.Fired)
		assert.False(t, task.Cancelled)
	}
}

func TestPollOnce_OverlappingCyclesDoNotDoubleFire(t *testing.T) {
	ctx := context.Background()
	sched, _, clock := newTestScheduler(t)

	var (
		mu    sync.Mutex
		fired int
	)
	require.NoError(t, sched.Register(domain.TaskKindStaffReminder, func(context.Context, int64, domain.Payload) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	}))
	for i := 0; i < 20; i++ {
		_, err := sched.CreateTimer(ctx, domain.TaskKindStaffReminder, time.Second, domain.TicketPayload(int64(i)))
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sched.PollOnce(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, fired)
}

func TestPollOnce_SecondSchedulerOnSameStoreCannotRefire(t *testing.T) {
	ctx := context.Background()
	first, tasks, clock := newTestScheduler(t)
	second := New(tasks, Options{Clock: clock.Now})

	var fired int
	handler := func(context.Context, int64, domain.Payload) error {
		fired++
		return nil
	}
	require.NoError(t, first.Register(domain.TaskKindMuteExpiry, handler))
	require.NoError(t, second.Register(domain.TaskKindMuteExpiry, handler))

	id, err := first.CreateTimer(ctx, domain.TaskKindMuteExpiry, time.Minute, domain.TicketPayload(1))
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	due, err := tasks.GetDue(ctx, clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)

	stats, err := first.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fired)

	// The stale due-set observed above would now lose the claim.
	won, err := tasks.MarkFired(ctx, id)
	require.NoError(t, err)
	assert.False(t, won)

	stats, err = second.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
	assert.Equal(t, 1, fired)
}

func TestPollOnce_FailingHandlerStillMarksFired(t *testing.T) {
	ctx := context.Background()
	sched, tasks, clock := newTestScheduler(t)
	recorder := &countingRecorder{}
	sched.metrics = recorder

	calls := 0
	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, func(context.Context, int64, domain.Payload) error {
		calls++
		return errors.New("gateway down")
	}))
	require.NoError(t, sched.Register(domain.TaskKindStaffReminder, func(context.Context, int64, domain.Payload) error {
		calls++
		panic("boom")
	}))

	failing, err := sched.CreateTimer(ctx, domain.TaskKindMemberNudge, 0, nil)
	require.NoError(t, err)
	panicking, err := sched.CreateTimer(ctx, domain.TaskKindStaffReminder, 0, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)

	stats, err := sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)

	stats, err = sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
	assert.Equal(t, 2, calls)

	for _, id := range []int64{failing, panicking} {
		task, err := tasks.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, task.Fired)
	}
	assert.Equal(t, 1, recorder.outcomes[string(domain.TaskKindMemberNudge)+"/"+OutcomeFailed])
	assert.Equal(t, 1, recorder.outcomes[string(domain.TaskKindStaffReminder)+"/"+OutcomeFailed])
}

func TestPollOnce_UnknownKindIsMarkedFired(t *testing.T) {
	ctx := context.Background()
	sched, tasks, clock := newTestScheduler(t)

	id, err := sched.CreateTimer(ctx, "legacy_kind", time.Second, domain.Payload{"x": "y"})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	stats, err := sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Unknown)

	task, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, task.Fired)
}

func TestCancelTimersFor_SuppressesFiring(t *testing.T) {
	ctx := context.Background()
	sched, _, clock := newTestScheduler(t)

	var seen []int64
	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, func(_ context.Context, _ int64, payload domain.Payload) error {
		ticketID, _ := payload.Int64(domain.PayloadTicketID)
		seen = append(seen, ticketID)
		return nil
	}))

	_, err := sched.CreateTimer(ctx, domain.TaskKindMemberNudge, 2*time.Hour, domain.TicketPayload(12))
	require.NoError(t, err)
	_, err = sched.CreateTimer(ctx, domain.TaskKindMemberNudge, 2*time.Hour, domain.TicketPayload(120))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	n, err := sched.CancelTimersFor(ctx, domain.TaskKindMemberNudge, domain.PayloadTicketID, strconv.FormatInt(12, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	clock.Advance(90 * time.Minute)
	_, err = sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{120}, seen)
}

func TestCancel_SingleTask(t *testing.T) {
	ctx := context.Background()
	sched, _, clock := newTestScheduler(t)

	id, err := sched.Schedule(ctx, domain.TaskKindMuteExpiry, clock.Now().Add(time.Minute), nil)
	require.NoError(t, err)

	ok, err := sched.Cancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sched.Cancel(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

type stubLease struct {
	active bool
	err    error
	calls  int
}

func (l *stubLease) Acquire(context.Context) (bool, error) {
	l.calls++
	return l.active, l.err
}

func (l *stubLease) Release(context.Context) error { return nil }

func TestPollOnce_RespectsLease(t *testing.T) {
	ctx := context.Background()
	sched, _, clock := newTestScheduler(t)
	lease := &stubLease{}
	sched.lease = lease

	fired := 0
	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, func(context.Context, int64, domain.Payload) error {
		fired++
		return nil
	}))
	_, err := sched.CreateTimer(ctx, domain.TaskKindMemberNudge, 0, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)

	stats, err := sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Due)
	assert.Zero(t, fired)

	lease.err = errors.New("redis unreachable")
	_, err = sched.PollOnce(ctx)
	assert.Error(t, err)

	lease.err = nil
	lease.active = true
	stats, err = sched.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Fired)
	assert.Equal(t, 3, lease.calls)
}
