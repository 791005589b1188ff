package models

import "time"

type TicketPhoto struct {
	PhotoID     string    `db:"photo_id" json:"photo_id"`
	TicketID    string    `db:"ticket_id" json:"ticket_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	StoragePath string    `db:"storage_path" json:"-"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}
