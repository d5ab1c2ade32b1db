package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

type ticketEventRepository struct {
	db *DB
}

// NewTicketEventRepository returns a SQLite-backed repository.TicketEventRepository.
func NewTicketEventRepository(db *DB) repository.TicketEventRepository {
	return &ticketEventRepository{db: db}
}

func (r *ticketEventRepository) Append(ctx context.Context, event *domain.TicketEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.database.ExecContext(ctx, `INSERT INTO ticket_events
		(ticket_id, kind, actor_id, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.TicketID,
		string(event.Kind),
		nullInt(event.ActorID),
		event.Detail,
		toMillis(event.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = id
	return nil
}

func (r *ticketEventRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.TicketEvent, error) {
	rows, err := r.db.database.QueryContext(ctx, `SELECT id, ticket_id, kind, actor_id, detail, created_at
		FROM ticket_events WHERE ticket_id = ? ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var (
			event     domain.TicketEvent
			kind      string
			actorID   sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.TicketID, &kind, &actorID, &event.Detail, &createdAt); err != nil {
			return nil, err
		}
		event.Kind = domain.TicketEventKind(kind)
		event.ActorID = intPtr(actorID)
		event.CreatedAt = fromMillis(createdAt)
		result = append(result, event)
	}
	return result, rows.Err()
}
