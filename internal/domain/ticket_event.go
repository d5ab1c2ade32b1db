package domain

import "time"

// TicketEventKind captures what happened in a history entry.
type TicketEventKind string

const (
	TicketEventCreated     TicketEventKind = "created"
	TicketEventClaimed     TicketEventKind = "claimed"
	TicketEventUnclaimed   TicketEventKind = "unclaimed"
	TicketEventMuted       TicketEventKind = "muted"
	TicketEventUnmuted     TicketEventKind = "unmuted"
	TicketEventMemberAdded TicketEventKind = "member_added"
	TicketEventClosed      TicketEventKind = "closed"
	TicketEventArchived    TicketEventKind = "archived"
	TicketEventNudgeSent   TicketEventKind = "nudge_sent"
)

// TicketEvent is an immutable audit trail entry. ActorID is nil for
// system-originated events.
type TicketEvent struct {
	ID        int64
	TicketID  int64
	Kind      TicketEventKind
	ActorID   *int64
	Detail    string
	CreatedAt time.Time
}
