package models

import "time"

// StatusHistoryEntry is an immutable, append-only record of one status
// transition. Rows are never updated or deleted while the ticket exists.
type StatusHistoryEntry struct {
	EntryID    string        `db:"entry_id" json:"entry_id"`
	TicketID   string        `db:"ticket_id" json:"ticket_id"`
	FromStatus *TicketStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   TicketStatus  `db:"to_status" json:"to_status"`
	ChangedBy  string        `db:"changed_by" json:"changed_by"`
	ChangedAt  time.Time     `db:"changed_at" json:"changed_at"`
}

// FieldChangeType names an audited non-status change.
type FieldChangeType string

const (
	ChangeNoteAdded    FieldChangeType = "note_added"
	ChangeRushSet      FieldChangeType = "rush_set"
	ChangeRushCleared  FieldChangeType = "rush_cleared"
	ChangePhotoAdded   FieldChangeType = "photo_added"
	ChangePhotoDeleted FieldChangeType = "photo_deleted"
	ChangeReassigned   FieldChangeType = "reassigned"
	ChangeAmountClosed FieldChangeType = "amount_recorded"
	ChangeSoftDeleted  FieldChangeType = "soft_deleted"
	ChangeRestored     FieldChangeType = "restored"
)

// FieldHistoryEntry is the append-only audit row for non-status changes.
type FieldHistoryEntry struct {
	EntryID   string          `db:"entry_id" json:"entry_id"`
	TicketID  string          `db:"ticket_id" json:"ticket_id"`
	Change    FieldChangeType `db:"change_type" json:"change_type"`
	OldValue  *string         `db:"old_value" json:"old_value,omitempty"`
	NewValue  string          `db:"new_value" json:"new_value,omitempty"`
	ChangedBy string          `db:"changed_by" json:"changed_by"`
	ChangedAt time.Time       `db:"changed_at" json:"changed_at"`
}
