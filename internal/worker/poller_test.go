package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository/sqlite"
	"github.com/spec-kit/support-desk/internal/scheduler"
)

func TestPoller_FiresDueTasks(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sched := scheduler.New(sqlite.NewTaskRepository(db), scheduler.Options{})
	var fired atomic.Int32
	require.NoError(t, sched.Register(domain.TaskKindMemberNudge, func(context.Context, int64, domain.Payload) error {
		fired.Add(1)
		return nil
	}))
	_, err = sched.CreateTimer(ctx, domain.TaskKindMemberNudge, -time.Second, domain.TicketPayload(1))
	require.NoError(t, err)

	poller, err := StartPoller(ctx, sched, 20*time.Millisecond, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, poller.Stop())
	require.NoError(t, poller.Stop())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}
