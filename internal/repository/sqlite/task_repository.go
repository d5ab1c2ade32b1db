package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

type taskRepository struct {
	db *DB
}

// NewTaskRepository returns a SQLite-backed repository.TaskRepository.
func NewTaskRepository(db *DB) repository.TaskRepository {
	return &taskRepository{db: db}
}

const taskColumns = `id, kind, fires_at, payload, fired, cancelled, created_at`

func (r *taskRepository) Create(ctx context.Context, task *domain.ScheduledTask) error {
	payload := task.Payload
	if payload == nil {
		payload = domain.Payload{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.database.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (kind, fires_at, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(task.Kind), toMillis(task.FiresAt), string(encoded), toMillis(task.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	task.ID = id
	return nil
}

func (r *taskRepository) Get(ctx context.Context, id int64) (*domain.ScheduledTask, error) {
	row := r.db.database.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return task, err
}

func (r *taskRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.database.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE fired = 0 AND cancelled = 0 AND fires_at <= ?
		ORDER BY fires_at ASC, id ASC LIMIT ?`, toMillis(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *taskRepository) MarkFired(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx,
		`UPDATE scheduled_tasks SET fired = 1, fired_at = ? WHERE id = ? AND fired = 0 AND cancelled = 0`,
		toMillis(time.Now()), id,
	))
}

func (r *taskRepository) Cancel(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx,
		`UPDATE scheduled_tasks SET cancelled = 1, cancelled_at = ? WHERE id = ? AND fired = 0 AND cancelled = 0`,
		toMillis(time.Now()), id,
	))
}

func (r *taskRepository) CancelMatching(ctx context.Context, kind domain.TaskKind, key, value string) (int64, error) {
	result, err := r.db.database.ExecContext(ctx,
		`UPDATE scheduled_tasks SET cancelled = 1, cancelled_at = ?
		WHERE kind = ? AND CAST(json_extract(payload, '$.' || ?) AS TEXT) = ?
		AND fired = 0 AND cancelled = 0`,
		toMillis(time.Now()), string(kind), key, value,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *taskRepository) ListPending(ctx context.Context, kind domain.TaskKind) ([]domain.ScheduledTask, error) {
	rows, err := r.db.database.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE kind = ? AND fired = 0 AND cancelled = 0
		ORDER BY fires_at ASC, id ASC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*domain.ScheduledTask, error) {
	var (
		task      domain.ScheduledTask
		kind      string
		firesAt   int64
		payload   string
		fired     int
		cancelled int
		createdAt int64
	)
	if err := row.Scan(&task.ID, &kind, &firesAt, &payload, &fired, &cancelled, &createdAt); err != nil {
		return nil, err
	}
	task.Kind = domain.TaskKind(kind)
	task.FiresAt = fromMillis(firesAt)
	task.Fired = fired == 1
	task.Cancelled = cancelled == 1
	task.CreatedAt = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of task %d: %w", task.ID, err)
	}
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]domain.ScheduledTask, error) {
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
