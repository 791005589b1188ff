package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

// TicketRepository persists tickets together with their status and field
// history. Every mutation that the audit trail must record runs the data
// change and the history insert inside one transaction, so a ticket row can
// never disagree with its trail.
type TicketRepository interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, ticketID string, includeDeleted bool) (*models.Ticket, error)
	ListTickets(ctx context.Context, status *models.TicketStatus, includeDeleted bool) ([]*models.Ticket, error)

	TransitionStatus(ctx context.Context, ticketID string, from, to models.TicketStatus, changedBy string, actualAmount *int64) error
	SoftDelete(ctx context.Context, ticketID, deletedBy string) error
	Restore(ctx context.Context, ticketID, restoredBy string) error
	HardDelete(ctx context.Context, ticketID string, purgeHistory bool) error

	Reassign(ctx context.Context, ticketID string, workedBy *string, changedBy string) error
	SetRush(ctx context.Context, ticketID string, rush bool, changedBy string) error

	AddNote(ctx context.Context, note *models.TicketNote) error
	ListNotes(ctx context.Context, ticketID string) ([]*models.TicketNote, error)

	AddPhoto(ctx context.Context, photo *models.TicketPhoto) error
	GetPhoto(ctx context.Context, ticketID, photoID string) (*models.TicketPhoto, error)
	ListPhotos(ctx context.Context, ticketID string) ([]*models.TicketPhoto, error)
	DeletePhoto(ctx context.Context, ticketID, photoID, deletedBy string) (*models.TicketPhoto, error)

	ListStatusHistory(ctx context.Context, ticketID string) ([]*models.StatusHistoryEntry, error)
	ListFieldHistory(ctx context.Context, ticketID string) ([]*models.FieldHistoryEntry, error)

	HealthCheck(ctx context.Context) error
}

type ticketRepository struct {
	client *client.PostgresClient
}

func NewTicketRepository(pgClient *client.PostgresClient, logger *zap.Logger) TicketRepository {
	return &ticketRepository{client: pgClient}
}

const ticketColumns = `ticket_id, status, customer_name, contact_encrypted, contact_key_id,
	device_model, problem_summary, location_id, taken_in_by, worked_by, is_rush,
	quoted_amount, actual_amount, deleted_at, deleted_by, created_at, updated_at`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(&t.TicketID, &t.Status, &t.CustomerName, &t.ContactEncrypted,
		&t.ContactKeyID, &t.DeviceModel, &t.ProblemSummary, &t.LocationID,
		&t.TakenInBy, &t.WorkedBy, &t.IsRush, &t.QuotedAmount, &t.ActualAmount,
		&t.DeletedAt, &t.DeletedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	return t, nil
}

// CreateTicket inserts the ticket in its initial status and the opening
// status-history row in one transaction.
func (r *ticketRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	now := time.Now().UTC()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.Status = models.StatusIntake

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		ticket.TicketID, ticket.Status, ticket.CustomerName, ticket.ContactEncrypted,
		ticket.ContactKeyID, ticket.DeviceModel, ticket.ProblemSummary, ticket.LocationID,
		ticket.TakenInBy, ticket.WorkedBy, ticket.IsRush,
		ticket.QuotedAmount, ticket.ActualAmount, nil, nil, ticket.CreatedAt, nil)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert ticket: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_status_history (entry_id, ticket_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, NULL, $3, $4, $5)`,
		uuid.NewString(), ticket.TicketID, ticket.Status, ticket.TakenInBy, now)
	if err != nil {
		return fmt.Errorf("failed to insert initial status history: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ticket creation: %w", err)
	}

	util.Info("Ticket created",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("taken_in_by", ticket.TakenInBy))
	return nil
}

func (r *ticketRepository) GetTicket(ctx context.Context, ticketID string, includeDeleted bool) (*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id = $1`
	ticket, err := scanTicket(r.client.Pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, err
	}
	if ticket.Deleted() && !includeDeleted {
		return nil, ErrTicketDeleted
	}
	return ticket, nil
}

func (r *ticketRepository) ListTickets(ctx context.Context, status *models.TicketStatus, includeDeleted bool) ([]*models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.client.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// TransitionStatus moves a ticket from one status to another using a
// compare-and-set on the current status, and appends the history entry in
// the same transaction. actualAmount is written only on the transition into
// closed; the caller validates that it is present there.
func (r *ticketRepository) TransitionStatus(ctx context.Context, ticketID string, from, to models.TicketStatus, changedBy string, actualAmount *int64) error {
	now := time.Now().UTC()

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var tag pgconn.CommandTag
	if actualAmount != nil {
		tag, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $3, actual_amount = $4, updated_at = $5
			WHERE ticket_id = $1 AND status = $2 AND deleted_at IS NULL`,
			ticketID, from, to, *actualAmount, now)
	} else {
		tag, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $3, updated_at = $4
			WHERE ticket_id = $1 AND status = $2 AND deleted_at IS NULL`,
			ticketID, from, to, now)
	}
	if err != nil {
		return fmt.Errorf("failed to update ticket status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = r.classifyMissedUpdate(ctx, tx, ticketID)
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_status_history (entry_id, ticket_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), ticketID, from, to, changedBy, now)
	if err != nil {
		return fmt.Errorf("failed to insert status history: %w", err)
	}

	if actualAmount != nil {
		err = appendFieldHistory(ctx, tx, ticketID, models.ChangeAmountClosed,
			nil, fmt.Sprintf("%d", *actualAmount), changedBy, now)
		if err != nil {
			return err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status transition: %w", err)
	}

	util.Info("Ticket status changed",
		zap.String("ticket_id", ticketID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("changed_by", changedBy))
	return nil
}

// classifyMissedUpdate is called when a guarded UPDATE matched zero rows and
// decides which sentinel to report.
func (r *ticketRepository) classifyMissedUpdate(ctx context.Context, tx pgx.Tx, ticketID string) error {
	var deletedAt *time.Time
	row := tx.QueryRow(ctx, `SELECT deleted_at FROM tickets WHERE ticket_id = $1`, ticketID)
	if err := row.Scan(&deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to inspect ticket after missed update: %w", err)
	}
	if deletedAt != nil {
		return ErrTicketDeleted
	}
	return ErrStatusConflict
}

func appendFieldHistory(ctx context.Context, tx pgx.Tx, ticketID string, change models.FieldChangeType, oldValue *string, newValue, changedBy string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ticket_field_history (entry_id, ticket_id, change_type, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), ticketID, change, oldValue, newValue, changedBy, at)
	if err != nil {
		return fmt.Errorf("failed to insert field history: %w", err)
	}
	return nil
}

// SoftDelete hides the ticket from normal listings. All history rows stay in
// place and the deletion itself is recorded in the trail.
func (r *ticketRepository) SoftDelete(ctx context.Context, ticketID, deletedBy string) error {
	now := time.Now().UTC()

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET deleted_at = $2, deleted_by = $3, updated_at = $2
		WHERE ticket_id = $1 AND deleted_at IS NULL`,
		ticketID, now, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to soft delete ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = r.classifyMissedUpdate(ctx, tx, ticketID)
		return err
	}

	if err = appendFieldHistory(ctx, tx, ticketID, models.ChangeSoftDeleted, nil, deletedBy, deletedBy, now); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit soft delete: %w", err)
	}

	util.Info("Ticket soft deleted",
		zap.String("ticket_id", ticketID),
		zap.String("deleted_by", deletedBy))
	return nil
}

func (r *ticketRepository) Restore(ctx context.Context, ticketID, restoredBy string) error {
	now := time.Now().UTC()

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET deleted_at = NULL, deleted_by = NULL, updated_at = $2
		WHERE ticket_id = $1 AND deleted_at IS NOT NULL`,
		ticketID, now)
	if err != nil {
		return fmt.Errorf("failed to restore ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if scanErr := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id = $1)`, ticketID).Scan(&exists); scanErr != nil {
			err = fmt.Errorf("failed to inspect ticket after missed restore: %w", scanErr)
			return err
		}
		if !exists {
			err = ErrNotFound
			return err
		}
		// Not deleted; restore of a live ticket is a no-op conflict.
		err = ErrStatusConflict
		return err
	}

	if err = appendFieldHistory(ctx, tx, ticketID, models.ChangeRestored, nil, restoredBy, restoredBy, now); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

// HardDelete removes the ticket row. Without purgeHistory the delete is
// expected to fail while history rows reference the ticket; the foreign keys
// are declared RESTRICT so the database enforces it. With purgeHistory the
// history, notes, and photo rows are removed first in the same transaction.
func (r *ticketRepository) HardDelete(ctx context.Context, ticketID string, purgeHistory bool) error {
	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if purgeHistory {
		for _, table := range []string{"ticket_field_history", "ticket_status_history", "ticket_notes", "ticket_photos"} {
			if _, err = tx.Exec(ctx, `DELETE FROM `+table+` WHERE ticket_id = $1`, ticketID); err != nil {
				return fmt.Errorf("failed to purge %s: %w", table, err)
			}
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM tickets WHERE ticket_id = $1`, ticketID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			err = ErrHistoryProtected
			return err
		}
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrNotFound
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit hard delete: %w", err)
	}

	util.Warn("Ticket hard deleted",
		zap.String("ticket_id", ticketID),
		zap.Bool("history_purged", purgeHistory))
	return nil
}

func (r *ticketRepository) Reassign(ctx context.Context, ticketID string, workedBy *string, changedBy string) error {
	now := time.Now().UTC()

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var previous *string
	row := tx.QueryRow(ctx, `
		UPDATE tickets SET worked_by = $2, updated_at = $3
		WHERE ticket_id = $1 AND deleted_at IS NULL
		RETURNING (SELECT worked_by FROM tickets t WHERE t.ticket_id = $1)`,
		ticketID, workedBy, now)
	if err = row.Scan(&previous); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = r.classifyMissedUpdate(ctx, tx, ticketID)
			return err
		}
		return fmt.Errorf("failed to reassign ticket: %w", err)
	}

	newValue := ""
	if workedBy != nil {
		newValue = *workedBy
	}
	if err = appendFieldHistory(ctx, tx, ticketID, models.ChangeReassigned, previous, newValue, changedBy, now); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reassignment: %w", err)
	}
	return nil
}

func (r *ticketRepository) SetRush(ctx context.Context, ticketID string, rush bool, changedBy string) error {
	now := time.Now().UTC()
	change := models.ChangeRushSet
	if !rush {
		change = models.ChangeRushCleared
	}

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE tickets SET is_rush = $2, updated_at = $3
		WHERE ticket_id = $1 AND deleted_at IS NULL AND is_rush <> $2`,
		ticketID, rush, now)
	if err != nil {
		return fmt.Errorf("failed to update rush flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = r.classifyMissedUpdate(ctx, tx, ticketID)
		if errors.Is(err, ErrStatusConflict) {
			// Flag already holds the requested value.
			err = nil
			_ = tx.Rollback(ctx)
			return nil
		}
		return err
	}

	if err = appendFieldHistory(ctx, tx, ticketID, change, nil, fmt.Sprintf("%t", rush), changedBy, now); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rush change: %w", err)
	}
	return nil
}

func (r *ticketRepository) AddNote(ctx context.Context, note *models.TicketNote) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_notes (note_id, ticket_id, body, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		note.NoteID, note.TicketID, note.Body, note.CreatedBy, note.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			err = ErrNotFound
			return err
		}
		return fmt.Errorf("failed to insert note: %w", err)
	}

	if err = appendFieldHistory(ctx, tx, note.TicketID, models.ChangeNoteAdded, nil, note.NoteID, note.CreatedBy, note.CreatedAt); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit note: %w", err)
	}
	return nil
}

func (r *ticketRepository) ListNotes(ctx context.Context, ticketID string) ([]*models.TicketNote, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT note_id, ticket_id, body, created_by, created_at
		FROM ticket_notes WHERE ticket_id = $1 ORDER BY created_at`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*models.TicketNote
	for rows.Next() {
		note := &models.TicketNote{}
		if err := rows.Scan(&note.NoteID, &note.TicketID, &note.Body, &note.CreatedBy, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func (r *ticketRepository) AddPhoto(ctx context.Context, photo *models.TicketPhoto) error {
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO ticket_photos (photo_id, ticket_id, file_name, content_type, size_bytes, storage_path, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		photo.PhotoID, photo.TicketID, photo.FileName, photo.ContentType,
		photo.SizeBytes, photo.StoragePath, photo.UploadedBy, photo.UploadedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			err = ErrNotFound
			return err
		}
		return fmt.Errorf("failed to insert photo: %w", err)
	}

	if err = appendFieldHistory(ctx, tx, photo.TicketID, models.ChangePhotoAdded, nil, photo.FileName, photo.UploadedBy, photo.UploadedAt); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit photo: %w", err)
	}
	return nil
}

func (r *ticketRepository) GetPhoto(ctx context.Context, ticketID, photoID string) (*models.TicketPhoto, error) {
	photo := &models.TicketPhoto{}
	row := r.client.Pool.QueryRow(ctx, `
		SELECT photo_id, ticket_id, file_name, content_type, size_bytes, storage_path, uploaded_by, uploaded_at
		FROM ticket_photos WHERE ticket_id = $1 AND photo_id = $2`,
		ticketID, photoID)
	if err := row.Scan(&photo.PhotoID, &photo.TicketID, &photo.FileName, &photo.ContentType,
		&photo.SizeBytes, &photo.StoragePath, &photo.UploadedBy, &photo.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return photo, nil
}

func (r *ticketRepository) ListPhotos(ctx context.Context, ticketID string) ([]*models.TicketPhoto, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT photo_id, ticket_id, file_name, content_type, size_bytes, storage_path, uploaded_by, uploaded_at
		FROM ticket_photos WHERE ticket_id = $1 ORDER BY uploaded_at`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.TicketPhoto
	for rows.Next() {
		photo := &models.TicketPhoto{}
		if err := rows.Scan(&photo.PhotoID, &photo.TicketID, &photo.FileName, &photo.ContentType,
			&photo.SizeBytes, &photo.StoragePath, &photo.UploadedBy, &photo.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// DeletePhoto removes the metadata row and records the deletion in field
// history. The returned photo carries the storage path so the caller can
// remove the file after the transaction commits.
func (r *ticketRepository) DeletePhoto(ctx context.Context, ticketID, photoID, deletedBy string) (*models.TicketPhoto, error) {
	now := time.Now().UTC()

	tx, err := r.client.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	photo := &models.TicketPhoto{}
	row := tx.QueryRow(ctx, `
		DELETE FROM ticket_photos WHERE ticket_id = $1 AND photo_id = $2
		RETURNING photo_id, ticket_id, file_name, content_type, size_bytes, storage_path, uploaded_by, uploaded_at`,
		ticketID, photoID)
	if err = row.Scan(&photo.PhotoID, &photo.TicketID, &photo.FileName, &photo.ContentType,
		&photo.SizeBytes, &photo.StoragePath, &photo.UploadedBy, &photo.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = ErrNotFound
			return nil, err
		}
		return nil, fmt.Errorf("failed to delete photo: %w", err)
	}

	if err = appendFieldHistory(ctx, tx, ticketID, models.ChangePhotoDeleted, nil, photo.FileName, deletedBy, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit photo deletion: %w", err)
	}
	return photo, nil
}

// ListStatusHistory returns the full trail, including entries for tickets
// that have since been soft deleted.
func (r *ticketRepository) ListStatusHistory(ctx context.Context, ticketID string) ([]*models.StatusHistoryEntry, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT entry_id, ticket_id, from_status, to_status, changed_by, changed_at
		FROM ticket_status_history WHERE ticket_id = $1 ORDER BY changed_at`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status history: %w", err)
	}
	defer rows.Close()

	var entries []*models.StatusHistoryEntry
	for rows.Next() {
		entry := &models.StatusHistoryEntry{}
		if err := rows.Scan(&entry.EntryID, &entry.TicketID, &entry.FromStatus,
			&entry.ToStatus, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *ticketRepository) ListFieldHistory(ctx context.Context, ticketID string) ([]*models.FieldHistoryEntry, error) {
	rows, err := r.client.Pool.Query(ctx, `
		SELECT entry_id, ticket_id, change_type, old_value, new_value, changed_by, changed_at
		FROM ticket_field_history WHERE ticket_id = $1 ORDER BY changed_at`,
		ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list field history: %w", err)
	}
	defer rows.Close()

	var entries []*models.FieldHistoryEntry
	for rows.Next() {
		entry := &models.FieldHistoryEntry{}
		if err := rows.Scan(&entry.EntryID, &entry.TicketID, &entry.Change,
			&entry.OldValue, &entry.NewValue, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *ticketRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
