package repository

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrActiveTicketExists is returned when the owner already has an open or claimed ticket.
	ErrActiveTicketExists = errors.New("owner already has an active ticket")
)
