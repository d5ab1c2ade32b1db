package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/repository"
)

type ticketRepository struct {
	db *DB
}

// NewTicketRepository returns a SQLite-backed repository.TicketRepository.
func NewTicketRepository(db *DB) repository.TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, channel_id, ticket_type, owner_id, opener_id, reason, status,
	claimed_by, claimed_at, muted, mute_expires_at, nudge_count, last_nudge_at,
	closed_by, closed_at, created_at`

// Create checks and inserts inside one transaction. The single pooled
// connection serializes concurrent opens.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.db.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE owner_id = ? AND status IN ('open','claimed'))`,
		ticket.OwnerID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 1 {
		return repository.ErrActiveTicketExists
	}

	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	var reason sql.NullString
	if ticket.Reason != nil {
		reason = sql.NullString{String: *ticket.Reason, Valid: true}
	}
	result, err := tx.ExecContext(ctx, `INSERT INTO tickets
		(channel_id, ticket_type, owner_id, opener_id, reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullInt(ticket.ChannelID),
		string(ticket.Type),
		ticket.OwnerID,
		ticket.OpenerID,
		reason,
		string(ticket.Status),
		toMillis(ticket.CreatedAt),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	ticket.ID = id
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE channel_id = ?`, channelID)
}

func (r *ticketRepository) GetActiveForOwner(ctx context.Context, ownerID int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE owner_id = ? AND status IN ('open','claimed') ORDER BY id LIMIT 1`, ownerID)
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.db.database.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE status IN ('open','claimed') ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) SetChannel(ctx context.Context, id, channelID int64) error {
	ok, err := affectedOne(r.db.database.ExecContext(ctx,
		`UPDATE tickets SET channel_id = ? WHERE id = ?`, channelID, id))
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Claim(ctx context.Context, id, staffID int64, at time.Time) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET status = 'claimed', claimed_by = ?, claimed_at = ?
		WHERE id = ? AND status = 'open'`, staffID, toMillis(at), id))
}

func (r *ticketRepository) Unclaim(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET status = 'open', claimed_by = NULL, claimed_at = NULL
		WHERE id = ? AND status = 'claimed'`, id))
}

func (r *ticketRepository) Close(ctx context.Context, id, closedBy int64, at time.Time) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET status = 'closed', closed_by = ?, closed_at = ?,
			claimed_by = NULL, muted = 0, mute_expires_at = NULL
		WHERE id = ? AND status IN ('open','claimed')`, closedBy, toMillis(at), id))
}

func (r *ticketRepository) Discard(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx,
		`DELETE FROM tickets WHERE id = ? AND status = 'open' AND channel_id IS NULL`, id))
}

func (r *ticketRepository) Archive(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx,
		`UPDATE tickets SET status = 'archived' WHERE id = ? AND status = 'closed'`, id))
}

func (r *ticketRepository) Mute(ctx context.Context, id int64, expiresAt time.Time) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET muted = 1, mute_expires_at = ?
		WHERE id = ? AND muted = 0 AND status IN ('open','claimed')`, toMillis(expiresAt), id))
}

func (r *ticketRepository) Unmute(ctx context.Context, id int64) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET muted = 0, mute_expires_at = NULL
		WHERE id = ? AND muted = 1`, id))
}

func (r *ticketRepository) IncrementNudge(ctx context.Context, id int64, at time.Time) (bool, error) {
	return affectedOne(r.db.database.ExecContext(ctx, `
		UPDATE tickets SET nudge_count = nudge_count + 1, last_nudge_at = ?
		WHERE id = ? AND status = 'open'`, toMillis(at), id))
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.database.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return ticket, err
}

func scanTicket(row scanner) (*domain.Ticket, error) {
	var (
		ticket        domain.Ticket
		channelID     sql.NullInt64
		ticketType    string
		reason        sql.NullString
		status        string
		claimedBy     sql.NullInt64
		claimedAt     sql.NullInt64
		muted         int
		muteExpiresAt sql.NullInt64
		lastNudgeAt   sql.NullInt64
		closedBy      sql.NullInt64
		closedAt      sql.NullInt64
		createdAt     int64
	)
	if err := row.Scan(
		&ticket.ID,
		&channelID,
		&ticketType,
		&ticket.OwnerID,
		&ticket.OpenerID,
		&reason,
		&status,
		&claimedBy,
		&claimedAt,
		&muted,
		&muteExpiresAt,
		&ticket.NudgeCount,
		&lastNudgeAt,
		&closedBy,
		&closedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}
	ticket.ChannelID = intPtr(channelID)
	ticket.Type = domain.TicketType(ticketType)
	if reason.Valid {
		r := reason.String
		ticket.Reason = &r
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.ClaimedBy = intPtr(claimedBy)
	ticket.ClaimedAt = timePtr(claimedAt)
	ticket.Muted = muted == 1
	ticket.MuteExpiresAt = timePtr(muteExpiresAt)
	ticket.LastNudgeAt = timePtr(lastNudgeAt)
	ticket.ClosedBy = intPtr(closedBy)
	ticket.ClosedAt = timePtr(closedAt)
	ticket.CreatedAt = fromMillis(createdAt)
	return &ticket, nil
}
