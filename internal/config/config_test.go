package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TICKET_NUDGE_MINUTES", "")
	t.Setenv("SCHEDULER_POLL_INTERVAL_SECONDS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Scheduler.PollInterval())
	assert.Equal(t, 2*time.Hour, cfg.Tickets.NudgeDelay())
	assert.Equal(t, 12*time.Hour, cfg.Tickets.StaffReminderDelay())
	assert.Equal(t, 30*time.Minute, cfg.Tickets.MuteDuration())
	assert.Equal(t, 2*time.Hour, cfg.Tickets.CloseWindow())
	assert.True(t, cfg.Scheduler.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TICKET_NUDGE_MINUTES", "15")
	t.Setenv("TICKET_STAFF_ALERTS_CHANNEL_ID", "998877665544")
	t.Setenv("SCHEDULER_POLL_INTERVAL_SECONDS", "5")
	t.Setenv("SCHEDULER_LEASE_SECONDS", "0")
	t.Setenv("TICKET_AUTO_ARCHIVE_ON_CLOSE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Tickets.NudgeDelay())
	assert.Equal(t, int64(998877665544), cfg.Tickets.StaffAlertsChannelID)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.PollInterval())
	assert.Equal(t, 15*time.Second, cfg.Scheduler.LeaseTTL())
	assert.True(t, cfg.Tickets.AutoArchiveOnClose)
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid REDIS_DB")
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("TICKET_MUTE_MINUTES", "abc")
	t.Setenv("TICKET_SYSTEM_ACTOR_ID", "-x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Tickets.MuteDuration())
	assert.Zero(t, cfg.Tickets.SystemActorID)
}
