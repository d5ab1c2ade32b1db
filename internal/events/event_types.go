package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketClaimed     EventType = "ticket_claimed"
	EventTicketUnclaimed   EventType = "ticket_unclaimed"
	EventTicketMuted       EventType = "ticket_muted"
	EventTicketUnmuted     EventType = "ticket_unmuted"
	EventTicketMemberAdded EventType = "ticket_member_added"
	EventTicketClosed      EventType = "ticket_closed"
	EventTicketArchived    EventType = "ticket_archived"
	EventTicketNudged      EventType = "ticket_nudged"
	EventStaffReminded     EventType = "ticket_staff_reminded"
)

// AllEventTypes lists every type the lifecycle publishes.
var AllEventTypes = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketUnclaimed,
	EventTicketMuted,
	EventTicketUnmuted,
	EventTicketMemberAdded,
	EventTicketClosed,
	EventTicketArchived,
	EventTicketNudged,
	EventStaffReminded,
}

// Actor encapsulates actor metadata for an event. System is set for
// scheduler-originated transitions.
type Actor struct {
	ID     *int64 `json:"id,omitempty"`
	Staff  bool   `json:"staff"`
	System bool   `json:"system"`
}

// ActorFrom converts a domain actor.
func ActorFrom(actor domain.Actor) Actor {
	id := actor.ID
	return Actor{ID: &id, Staff: actor.Staff}
}

// SystemActor marks timer-driven events.
func SystemActor() Actor {
	return Actor{System: true}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  int64       `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Type      domain.TicketType `json:"type"`
	OwnerID   int64             `json:"owner_id"`
	ChannelID *int64            `json:"channel_id,omitempty"`
	Reason    *string           `json:"reason,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Cancelled int64               `json:"cancelled_timers,omitempty"`
}

// TicketMuteChangedPayload payload.
type TicketMuteChangedPayload struct {
	Muted     bool       `json:"muted"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// TicketMemberAddedPayload payload.
type TicketMemberAddedPayload struct {
	MemberID int64 `json:"member_id"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	TaskID     int64 `json:"task_id"`
	NudgeCount int   `json:"nudge_count,omitempty"`
}
