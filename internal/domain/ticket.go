package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusClaimed  TicketStatus = "claimed"
	TicketStatusClosed   TicketStatus = "closed"
	TicketStatusArchived TicketStatus = "archived"
)

// Active reports whether the status still takes part in the one-ticket-per-owner rule.
func (s TicketStatus) Active() bool {
	return s == TicketStatusOpen || s == TicketStatusClaimed
}

// TicketType records who initiated the ticket.
type TicketType string

const (
	TicketTypeMember          TicketType = "member"
	TicketTypeStaff           TicketType = "staff"
	TicketTypeAgeVerification TicketType = "age_verify"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeMember, TicketTypeStaff, TicketTypeAgeVerification:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            int64
	ChannelID     *int64
	Type          TicketType
	OwnerID       int64
	OpenerID      int64
	Reason        *string
	Status        TicketStatus
	ClaimedBy     *int64
	ClaimedAt     *time.Time
	Muted         bool
	MuteExpiresAt *time.Time
	NudgeCount    int
	LastNudgeAt   *time.Time
	ClosedBy      *int64
	ClosedAt      *time.Time
	CreatedAt     time.Time
}

// Channel returns the conversation channel id, or zero when none was created.
func (t *Ticket) Channel() int64 {
	if t == nil || t.ChannelID == nil {
		return 0
	}
	return *t.ChannelID
}
