package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/repository/sqlite"
)

// Store bundles the repositories of whichever backend is configured.
type Store struct {
	Backend string
	Tasks   repository.TaskRepository
	Tickets repository.TicketRepository
	Events  repository.TicketEventRepository

	ping  func(context.Context) error
	close func()
}

// OpenStore connects to Postgres when a DSN is configured and falls back to
// an embedded SQLite file otherwise.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if cfg.Postgres.DSN != "" {
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		pool := pg.PoolHandle()
		return &Store{
			Backend: "postgres",
			Tasks:   repository.NewTaskRepository(pool),
			Tickets: repository.NewTicketRepository(pool),
			Events:  repository.NewTicketEventRepository(pool),
			ping:    pg.Ping,
			close:   pg.Close,
		}, nil
	}

	db, err := sqlite.Open(ctx, cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	logger.Info("using sqlite store", zap.String("path", db.Path()))
	return &Store{
		Backend: "sqlite",
		Tasks:   sqlite.NewTaskRepository(db),
		Tickets: sqlite.NewTicketRepository(db),
		Events:  sqlite.NewTicketEventRepository(db),
		ping:    db.Ping,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Warn("close sqlite", zap.Error(err))
			}
		},
	}, nil
}

// Shared reports whether several processes can use the store at once. Only
// a shared store needs the cross-process poller lease.
func (s *Store) Shared() bool {
	return s.Backend == "postgres"
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

// Close releases the backing store.
func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}
