package postgres

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrAlreadyExists    = errors.New("record already exists")
	ErrTicketDeleted    = errors.New("ticket is deleted")
	ErrStatusConflict   = errors.New("ticket status changed concurrently")
	ErrHistoryProtected = errors.New("ticket has history rows that cannot be cascaded")
)
