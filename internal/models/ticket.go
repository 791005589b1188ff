package models

import "time"

// TicketStatus enumerates the lifecycle states for tickets.
type TicketStatus string

const (
	StatusIntake         TicketStatus = "intake"
	StatusInProgress     TicketStatus = "in_progress"
	StatusWaitingOnParts TicketStatus = "waiting_on_parts"
	StatusReadyForPickup TicketStatus = "ready_for_pickup"
	StatusClosed         TicketStatus = "closed"
	StatusArchived       TicketStatus = "archived"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case StatusIntake, StatusInProgress, StatusWaitingOnParts,
		StatusReadyForPickup, StatusClosed, StatusArchived:
		return true
	}
	return false
}

type Ticket struct {
	TicketID         string       `db:"ticket_id" json:"ticket_id"`
	Status           TicketStatus `db:"status" json:"status"`
	CustomerName     string       `db:"customer_name" json:"customer_name"`
	ContactEncrypted []byte       `db:"contact_encrypted" json:"-"`
	ContactKeyID     string       `db:"contact_key_id" json:"-"`
	DeviceModel      string       `db:"device_model" json:"device_model"`
	ProblemSummary   string       `db:"problem_summary" json:"problem_summary"`
	LocationID       *string      `db:"location_id" json:"location_id,omitempty"`
	TakenInBy        string       `db:"taken_in_by" json:"taken_in_by"`
	WorkedBy         *string      `db:"worked_by" json:"worked_by,omitempty"`
	IsRush           bool         `db:"is_rush" json:"is_rush"`
	QuotedAmount     *int64       `db:"quoted_amount" json:"quoted_amount,omitempty"`
	ActualAmount     *int64       `db:"actual_amount" json:"actual_amount,omitempty"`
	DeletedAt        *time.Time   `db:"deleted_at" json:"deleted_at,omitempty"`
	DeletedBy        *string      `db:"deleted_by" json:"deleted_by,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        *time.Time   `db:"updated_at" json:"updated_at,omitempty"`
}

// Deleted reports whether the ticket is soft-deleted. deleted_at and
// deleted_by are set and cleared together.
func (t *Ticket) Deleted() bool {
	return t.DeletedAt != nil
}
