package models

import "time"

type TicketNote struct {
	NoteID    string    `db:"note_id" json:"note_id"`
	TicketID  string    `db:"ticket_id" json:"ticket_id"`
	Body      string    `db:"body" json:"body"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
