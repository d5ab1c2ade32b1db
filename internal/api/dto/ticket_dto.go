package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// OpenTicketRequest payload. Staff may open a ticket on behalf of a member
// by setting OwnerID; members always open for themselves.
type OpenTicketRequest struct {
	OwnerID *int64            `json:"owner_id"`
	Type    domain.TicketType `json:"type"`
	Reason  *string           `json:"reason"`
}

// AddMemberRequest payload.
type AddMemberRequest struct {
	MemberID int64 `json:"member_id"`
}

// MessageActivityRequest is posted by the chat adapter for every message in
// a ticket channel.
type MessageActivityRequest struct {
	AuthorID int64 `json:"author_id"`
}

// TicketResponse mirrors the persisted ticket.
type TicketResponse struct {
	ID            int64               `json:"id"`
	ChannelID     *int64              `json:"channel_id"`
	Type          domain.TicketType   `json:"type"`
	OwnerID       int64               `json:"owner_id"`
	OpenerID      int64               `json:"opener_id"`
	Reason        *string             `json:"reason,omitempty"`
	Status        domain.TicketStatus `json:"status"`
	ClaimedBy     *int64              `json:"claimed_by"`
	ClaimedAt     *time.Time          `json:"claimed_at,omitempty"`
	Muted         bool                `json:"muted"`
	MuteExpiresAt *time.Time          `json:"mute_expires_at,omitempty"`
	NudgeCount    int                 `json:"nudge_count"`
	LastNudgeAt   *time.Time          `json:"last_nudge_at,omitempty"`
	ClosedBy      *int64              `json:"closed_by,omitempty"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// TicketEventResponse is one history entry.
type TicketEventResponse struct {
	ID        int64                  `json:"id"`
	Kind      domain.TicketEventKind `json:"kind"`
	ActorID   *int64                 `json:"actor_id"`
	Detail    string                 `json:"detail,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// CommandResponse wraps the outcome of a lifecycle command.
type CommandResponse struct {
	Data            *TicketResponse `json:"data"`
	Notice          string          `json:"notice,omitempty"`
	AlreadyClaimed  bool            `json:"already_claimed,omitempty"`
	CancelledTimers int64           `json:"cancelled_timers,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// NewTicketResponse converts a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) *TicketResponse {
	if ticket == nil {
		return nil
	}
	return &TicketResponse{
		ID:            ticket.ID,
		ChannelID:     ticket.ChannelID,
		Type:          ticket.Type,
		OwnerID:       ticket.OwnerID,
		OpenerID:      ticket.OpenerID,
		Reason:        ticket.Reason,
		Status:        ticket.Status,
		ClaimedBy:     ticket.ClaimedBy,
		ClaimedAt:     ticket.ClaimedAt,
		Muted:         ticket.Muted,
		MuteExpiresAt: ticket.MuteExpiresAt,
		NudgeCount:    ticket.NudgeCount,
		LastNudgeAt:   ticket.LastNudgeAt,
		ClosedBy:      ticket.ClosedBy,
		ClosedAt:      ticket.ClosedAt,
		CreatedAt:     ticket.CreatedAt,
	}
}

// NewTicketEventResponses converts history entries.
func NewTicketEventResponses(entries []domain.TicketEvent) []TicketEventResponse {
	resp := make([]TicketEventResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketEventResponse{
			ID:        entry.ID,
			Kind:      entry.Kind,
			ActorID:   entry.ActorID,
			Detail:    entry.Detail,
			CreatedAt: entry.CreatedAt,
		})
	}
	return resp
}
