package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketRepository encapsulates ticket persistence. Every state-changing
// method is a conditional update guarded by the state it transitions from;
// the boolean result reports whether this caller won the transition.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error)
	GetActiveForOwner(ctx context.Context, ownerID int64) (*domain.Ticket, error)
	ListActive(ctx context.Context) ([]domain.Ticket, error)
	SetChannel(ctx context.Context, id, channelID int64) error
	// Discard removes a just-created ticket that never got a channel.
	Discard(ctx context.Context, id int64) (bool, error)
	Claim(ctx context.Context, id, staffID int64, at time.Time) (bool, error)
	Unclaim(ctx context.Context, id int64) (bool, error)
	Close(ctx context.Context, id, closedBy int64, at time.Time) (bool, error)
	Archive(ctx context.Context, id int64) (bool, error)
	Mute(ctx context.Context, id int64, expiresAt time.Time) (bool, error)
	Unmute(ctx context.Context, id int64) (bool, error)
	IncrementNudge(ctx context.Context, id int64, at time.Time) (bool, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, channel_id, ticket_type, owner_id, opener_id, reason, status,
               claimed_by, claimed_at, muted, mute_expires_at, nudge_count, last_nudge_at,
               closed_by, closed_at, created_at`

// Create inserts the ticket unless the owner already has an active one. The
// per-owner advisory lock serializes concurrent opens for the same member.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticket.OwnerID); err != nil {
		return err
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE owner_id=$1 AND status IN ('open','claimed'))`,
		ticket.OwnerID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrActiveTicketExists
	}

	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	const query = `
        INSERT INTO tickets (channel_id, ticket_type, owner_id, opener_id, reason, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	if err := tx.QueryRow(ctx, query,
		ticket.ChannelID,
		ticket.Type,
		ticket.OwnerID,
		ticket.OpenerID,
		ticket.Reason,
		ticket.Status,
		ticket.CreatedAt.UTC(),
	).Scan(&ticket.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByChannel(ctx context.Context, channelID int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE channel_id=$1`, channelID)
}

func (r *ticketRepository) GetActiveForOwner(ctx context.Context, ownerID int64) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets
        WHERE owner_id=$1 AND status IN ('open','claimed') ORDER BY id LIMIT 1`, ownerID)
}

func (r *ticketRepository) ListActive(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ticketColumns+` FROM tickets
        WHERE status IN ('open','claimed') ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SetChannel(ctx context.Context, id, channelID int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET channel_id=$2 WHERE id=$1`, id, channelID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Claim(ctx context.Context, id, staffID int64, at time.Time) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET status='claimed', claimed_by=$2, claimed_at=$3
        WHERE id=$1 AND status='open'`, id, staffID, at.UTC())
}

func (r *ticketRepository) Unclaim(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET status='open', claimed_by=NULL, claimed_at=NULL
        WHERE id=$1 AND status='claimed'`, id)
}

func (r *ticketRepository) Close(ctx context.Context, id, closedBy int64, at time.Time) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET status='closed', closed_by=$2, closed_at=$3,
            claimed_by=NULL, muted=FALSE, mute_expires_at=NULL
        WHERE id=$1 AND status IN ('open','claimed')`, id, closedBy, at.UTC())
}

func (r *ticketRepository) Discard(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `DELETE FROM tickets WHERE id=$1 AND status='open' AND channel_id IS NULL`, id)
}

func (r *ticketRepository) Archive(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `UPDATE tickets SET status='archived' WHERE id=$1 AND status='closed'`, id)
}

func (r *ticketRepository) Mute(ctx context.Context, id int64, expiresAt time.Time) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET muted=TRUE, mute_expires_at=$2
        WHERE id=$1 AND muted=FALSE AND status IN ('open','claimed')`, id, expiresAt.UTC())
}

func (r *ticketRepository) Unmute(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET muted=FALSE, mute_expires_at=NULL
        WHERE id=$1 AND muted=TRUE`, id)
}

func (r *ticketRepository) IncrementNudge(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.exec(ctx, `
        UPDATE tickets SET nudge_count=nudge_count+1, last_nudge_at=$2
        WHERE id=$1 AND status='open'`, id, at.UTC())
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) (bool, error) {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ChannelID,
		&ticket.Type,
		&ticket.OwnerID,
		&ticket.OpenerID,
		&ticket.Reason,
		&ticket.Status,
		&ticket.ClaimedBy,
		&ticket.ClaimedAt,
		&ticket.Muted,
		&ticket.MuteExpiresAt,
		&ticket.NudgeCount,
		&ticket.LastNudgeAt,
		&ticket.ClosedBy,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
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
