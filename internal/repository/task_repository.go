package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TaskRepository persists scheduled tasks. MarkFired and Cancel are
// conditional on the task still being pending, so a task resolves to fired
// or cancelled exactly once no matter how callers race.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.ScheduledTask) error
	Get(ctx context.Context, id int64) (*domain.ScheduledTask, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error)
	MarkFired(ctx context.Context, id int64) (bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	CancelMatching(ctx context.Context, kind domain.TaskKind, key, value string) (int64, error)
	ListPending(ctx context.Context, kind domain.TaskKind) ([]domain.ScheduledTask, error)
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository instantiates repository.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

const taskColumns = `id, kind, fires_at, payload, fired, cancelled, created_at`

func (r *taskRepository) Create(ctx context.Context, task *domain.ScheduledTask) error {
	const query = `
        INSERT INTO scheduled_tasks (kind, fires_at, payload)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	payload := task.Payload
	if payload == nil {
		payload = domain.Payload{}
	}
	return r.pool.QueryRow(ctx, query, task.Kind, task.FiresAt.UTC(), payload).
		Scan(&task.ID, &task.CreatedAt)
}

func (r *taskRepository) Get(ctx context.Context, id int64) (*domain.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE id=$1`
	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return task, err
}

func (r *taskRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks
        WHERE fired=FALSE AND cancelled=FALSE AND fires_at <= $1
        ORDER BY fires_at ASC, id ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *taskRepository) MarkFired(ctx context.Context, id int64) (bool, error) {
	const query = `
        UPDATE scheduled_tasks SET fired=TRUE, fired_at=NOW()
        WHERE id=$1 AND fired=FALSE AND cancelled=FALSE`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *taskRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	const query = `
        UPDATE scheduled_tasks SET cancelled=TRUE, cancelled_at=NOW()
        WHERE id=$1 AND fired=FALSE AND cancelled=FALSE`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *taskRepository) CancelMatching(ctx context.Context, kind domain.TaskKind, key, value string) (int64, error) {
	const query = `
        UPDATE scheduled_tasks SET cancelled=TRUE, cancelled_at=NOW()
        WHERE kind=$1 AND payload ->> $2 = $3 AND fired=FALSE AND cancelled=FALSE`
	cmd, err := r.pool.Exec(ctx, query, kind, key, value)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *taskRepository) ListPending(ctx context.Context, kind domain.TaskKind) ([]domain.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks
        WHERE kind=$1 AND fired=FALSE AND cancelled=FALSE
        ORDER BY fires_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTask(row pgx.Row) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	if err := row.Scan(
		&task.ID,
		&task.Kind,
		&task.FiresAt,
		&task.Payload,
		&task.Fired,
		&task.Cancelled,
		&task.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

func scanTasks(rows pgx.Rows) ([]domain.ScheduledTask, error) {
	var result []domain.ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *task)
	}
	return result, rows.Err()
}
