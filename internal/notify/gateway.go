// Package notify defines the chat-platform gateway the ticket lifecycle talks
// to and a Redis outbox implementation of it.
package notify

import (
	"context"
	"errors"
)

// Severity tints a structured message.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is a plain or titled message. Rendering is up to the platform.
type Message struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text"`
	Severity Severity `json:"severity,omitempty"`
}

// Text builds an untitled info message.
func Text(text string) Message {
	return Message{Text: text, Severity: SeverityInfo}
}

// ErrPermission signals the platform refused the operation.
var ErrPermission = errors.New("notify: permission denied")

// Gateway performs chat-platform side effects. Every call may fail; callers
// treat failures as non-fatal.
type Gateway interface {
	CreatePrivateChannel(ctx context.Context, ownerID int64, permitted []int64) (int64, error)
	Send(ctx context.Context, channelID int64, msg Message) (int64, error)
	// SetMemberSendCapability sets allowed to true or false, or clears the
	// override when allowed is nil.
	SetMemberSendCapability(ctx context.Context, channelID, memberID int64, allowed *bool) error
	MoveToArchive(ctx context.Context, channelID int64) error
	SendDirect(ctx context.Context, memberID int64, msg Message) error
}

// Bool returns a pointer for SetMemberSendCapability.
func Bool(v bool) *bool {
	return &v
}
