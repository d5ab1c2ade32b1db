package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
)

func TestOpenStore_FallsBackToSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "desk.db")}}

	store, err := OpenStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, "sqlite", store.Backend)
	assert.False(t, store.Shared())
	require.NoError(t, store.Ping(ctx))

	ticket := &domain.Ticket{Type: domain.TicketTypeMember, OwnerID: 7, OpenerID: 7, Status: domain.TicketStatusOpen}
	require.NoError(t, store.Tickets.Create(ctx, ticket))
	assert.NotZero(t, ticket.ID)
}

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(config.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	defer r.Close()
	require.NoError(t, r.Ping(context.Background()))

	mr.Close()
	assert.Error(t, r.Ping(context.Background()))

	var missing *Redis
	assert.Error(t, missing.Ping(context.Background()))
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	files, err := migrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_scheduled_tasks.sql", "0002_tickets.sql"}, files)

	_, err = migrationFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)

	var pg *Postgres
	assert.Error(t, pg.Ping(context.Background()))
	assert.Nil(t, pg.PoolHandle())
}
