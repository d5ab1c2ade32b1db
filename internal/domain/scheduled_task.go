package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// TaskKind selects the handler a scheduled task is dispatched to.
type TaskKind string

const (
	TaskKindMemberNudge   TaskKind = "ticket_member_nudge"
	TaskKindStaffReminder TaskKind = "ticket_staff_reminder"
	TaskKindMuteExpiry    TaskKind = "ticket_mute_expire"
)

// PayloadTicketID is the correlation key ticket timers carry.
const PayloadTicketID = "ticket_id"

// ScheduledTask is a durable "run handler Kind with Payload no earlier than FiresAt" record.
// Fired and Cancelled are mutually exclusive terminal flags.
type ScheduledTask struct {
	ID        int64
	Kind      TaskKind
	FiresAt   time.Time
	Payload   Payload
	Fired     bool
	Cancelled bool
	CreatedAt time.Time
}

// Pending reports whether the task has reached neither terminal state.
func (t ScheduledTask) Pending() bool {
	return !t.Fired && !t.Cancelled
}

// Payload is the opaque key-value blob a handler interprets.
type Payload map[string]any

// Int64 reads a numeric value, accepting the shapes JSON decoding and callers produce.
func (p Payload) Int64(key string) (int64, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// TicketPayload builds the payload ticket timers are correlated by.
func TicketPayload(ticketID int64) Payload {
	return Payload{PayloadTicketID: ticketID}
}
