package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shopfloor-service/internal/audit"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/encryption"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/permission"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/search"
	"shopfloor-service/internal/util"
)

// allowedTransitions is the generic status graph. Entering closed is not in
// this map; closing is a separate privileged operation.
var allowedTransitions = map[models.TicketStatus][]models.TicketStatus{
	models.StatusIntake:         {models.StatusInProgress},
	models.StatusInProgress:     {models.StatusWaitingOnParts, models.StatusReadyForPickup},
	models.StatusWaitingOnParts: {models.StatusInProgress, models.StatusReadyForPickup},
	models.StatusReadyForPickup: {models.StatusInProgress, models.StatusWaitingOnParts},
	models.StatusClosed:         {models.StatusArchived},
	models.StatusArchived:       {},
}

func transitionAllowed(from, to models.TicketStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateTicketRequest is the intake payload.
type CreateTicketRequest struct {
	CustomerName   string  `json:"customer_name"`
	CustomerPhone  string  `json:"customer_phone"`
	DeviceModel    string  `json:"device_model"`
	ProblemSummary string  `json:"problem_summary"`
	LocationID     *string `json:"location_id,omitempty"`
	IsRush         bool    `json:"is_rush"`
	QuotedAmount   *int64  `json:"quoted_amount,omitempty"`
}

// TicketService enforces the lifecycle rules. Every operation first gates on
// the role's permission, then on ownership for staff, then mutates through
// the repository so the audit trail moves with the data.
type TicketService struct {
	tickets   postgres.TicketRepository
	employees postgres.EmployeeRepository
	crypto    *encryption.Manager
	auditor   *audit.Publisher
	indexer   *search.Indexer
	uploads   config.UploadConfig
}

func NewTicketService(
	tickets postgres.TicketRepository,
	employees postgres.EmployeeRepository,
	crypto *encryption.Manager,
	auditor *audit.Publisher,
	indexer *search.Indexer,
	uploads config.UploadConfig,
) *TicketService {
	return &TicketService{
		tickets:   tickets,
		employees: employees,
		crypto:    crypto,
		auditor:   auditor,
		indexer:   indexer,
		uploads:   uploads,
	}
}

func requirePermission(p *models.Principal, perm permission.Permission) error {
	if p == nil {
		return ErrSessionInvalid
	}
	if !permission.Has(p.Role, perm) {
		return ErrInsufficientPermission
	}
	return nil
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, postgres.ErrTicketDeleted):
		return ErrTicketDeleted
	case errors.Is(err, postgres.ErrStatusConflict):
		return ErrConflict
	case errors.Is(err, postgres.ErrAlreadyExists):
		return ErrAlreadyExists
	case errors.Is(err, postgres.ErrHistoryProtected):
		return ErrHistoryProtected
	default:
		return err
	}
}

// loadOwned fetches the ticket and checks the acting principal may touch it.
// Admins act on any ticket; staff only on tickets they took in or work.
func (s *TicketService) loadOwned(ctx context.Context, p *models.Principal, ticketID string) (*models.Ticket, error) {
	ticket, err := s.tickets.GetTicket(ctx, ticketID, p.IsAdmin())
	if err != nil {
		return nil, mapRepoError(err)
	}
	if !permission.CanAct(p, ticket) {
		return nil, ErrNotOwner
	}
	return ticket, nil
}

func (s *TicketService) CreateTicket(ctx context.Context, p *models.Principal, req *CreateTicketRequest) (*models.Ticket, error) {
	if err := requirePermission(p, permission.CreateTicket); err != nil {
		return nil, err
	}

	req.CustomerName = util.SanitizeAuditField(req.CustomerName)
	req.DeviceModel = util.SanitizeAuditField(req.DeviceModel)
	req.ProblemSummary = util.SanitizeAuditField(req.ProblemSummary)
	if req.CustomerName == "" || req.DeviceModel == "" || req.ProblemSummary == "" {
		return nil, fmt.Errorf("%w: customer_name, device_model, and problem_summary are required", ErrValidation)
	}

	for _, field := range []string{req.CustomerName, req.DeviceModel, req.ProblemSummary} {
		if util.ContainsSuspicious(field) {
			s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
				EventType:  models.EventSuspiciousData,
				Kind:       string(p.Kind),
				EmployeeID: p.EmployeeID,
				Details:    "ticket intake field",
			})
			return nil, fmt.Errorf("%w: field contains disallowed content", ErrValidation)
		}
	}

	takenInBy := p.EmployeeID
	if takenInBy == "" {
		// Admin sessions have no employee identity; intake needs one.
		return nil, fmt.Errorf("%w: ticket intake requires an employee session", ErrValidation)
	}

	ticket := &models.Ticket{
		TicketID:       uuid.NewString(),
		CustomerName:   req.CustomerName,
		DeviceModel:    req.DeviceModel,
		ProblemSummary: req.ProblemSummary,
		LocationID:     req.LocationID,
		TakenInBy:      takenInBy,
		IsRush:         req.IsRush,
		QuotedAmount:   req.QuotedAmount,
	}

	if req.CustomerPhone != "" {
		encrypted, keyID, err := s.crypto.EncryptContact(ctx, req.CustomerPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to protect contact info: %w", err)
		}
		ticket.ContactEncrypted = encrypted
		ticket.ContactKeyID = keyID
	}

	if err := s.tickets.CreateTicket(ctx, ticket); err != nil {
		return nil, mapRepoError(err)
	}

	s.auditor.PublishTicketEvent(ctx, "ticket_created", ticket.TicketID, takenInBy, map[string]string{
		"device_model": ticket.DeviceModel,
	})
	s.indexer.IndexTicket(ctx, ticket)
	return ticket, nil
}

func (s *TicketService) GetTicket(ctx context.Context, p *models.Principal, ticketID string) (*models.Ticket, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	ticket, err := s.tickets.GetTicket(ctx, ticketID, p.IsAdmin())
	if err != nil {
		return nil, mapRepoError(err)
	}
	return ticket, nil
}

// GetCustomerContact decrypts the stored contact info. Admin only; staff see
// tickets without the phone number.
func (s *TicketService) GetCustomerContact(ctx context.Context, p *models.Principal, ticketID string) (string, error) {
	if p == nil || !p.IsAdmin() {
		return "", ErrInsufficientPermission
	}
	ticket, err := s.tickets.GetTicket(ctx, ticketID, true)
	if err != nil {
		return "", mapRepoError(err)
	}
	if len(ticket.ContactEncrypted) == 0 {
		return "", nil
	}
	return s.crypto.DecryptContact(ctx, ticket.ContactEncrypted)
}

func (s *TicketService) ListTickets(ctx context.Context, p *models.Principal, status *models.TicketStatus, includeDeleted bool) ([]*models.Ticket, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	if includeDeleted && !p.IsAdmin() {
		includeDeleted = false
	}
	tickets, err := s.tickets.ListTickets(ctx, status, includeDeleted)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return tickets, nil
}

// ChangeStatus performs a generic transition. Entering closed is rejected
// here; CloseTicket is the only way in.
func (s *TicketService) ChangeStatus(ctx context.Context, p *models.Principal, ticketID string, to models.TicketStatus) (*models.Ticket, error) {
	if err := requirePermission(p, permission.ModifyOwnTicket); err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if to == models.StatusClosed {
		return nil, fmt.Errorf("%w: closing requires the close operation", ErrValidation)
	}

	ticket, err := s.loadOwned(ctx, p, ticketID)
	if err != nil {
		return nil, err
	}
	if !transitionAllowed(ticket.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ticket.Status, to)
	}

	if err := s.tickets.TransitionStatus(ctx, ticketID, ticket.Status, to, s.actor(p), nil); err != nil {
		return nil, mapRepoError(err)
	}

	s.auditor.PublishTicketEvent(ctx, "status_changed", ticketID, s.actor(p), map[string]string{
		"from": string(ticket.Status),
		"to":   string(to),
	})

	updated, err := s.tickets.GetTicket(ctx, ticketID, true)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.indexer.IndexTicket(ctx, updated)
	return updated, nil
}

// CloseTicket is the privileged transition into closed. Admin only, and the
// actual amount is mandatory and recorded alongside the history entry.
func (s *TicketService) CloseTicket(ctx context.Context, p *models.Principal, ticketID string, actualAmount *int64) (*models.Ticket, error) {
	if err := requirePermission(p, permission.CloseAnyTicket); err != nil {
		return nil, err
	}
	if actualAmount == nil {
		return nil, fmt.Errorf("%w: actual_amount is required to close", ErrValidation)
	}
	if *actualAmount < 0 {
		return nil, fmt.Errorf("%w: actual_amount must not be negative", ErrValidation)
	}

	ticket, err := s.tickets.GetTicket(ctx, ticketID, false)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if ticket.Status == models.StatusClosed || ticket.Status == models.StatusArchived {
		return nil, fmt.Errorf("%w: ticket already %s", ErrInvalidTransition, ticket.Status)
	}

	if err := s.tickets.TransitionStatus(ctx, ticketID, ticket.Status, models.StatusClosed, s.actor(p), actualAmount); err != nil {
		return nil, mapRepoError(err)
	}

	s.auditor.PublishTicketEvent(ctx, "ticket_closed", ticketID, s.actor(p), map[string]string{
		"from": string(ticket.Status),
	})

	updated, err := s.tickets.GetTicket(ctx, ticketID, true)
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.indexer.IndexTicket(ctx, updated)
	return updated, nil
}

func (s *TicketService) SoftDelete(ctx context.Context, p *models.Principal, ticketID string) error {
	if p == nil || !p.IsAdmin() {
		return ErrInsufficientPermission
	}
	if err := s.tickets.SoftDelete(ctx, ticketID, s.actor(p)); err != nil {
		return mapRepoError(err)
	}
	s.auditor.PublishTicketEvent(ctx, "ticket_soft_deleted", ticketID, s.actor(p), nil)
	s.indexer.RemoveTicket(ctx, ticketID)
	return nil
}

func (s *TicketService) Restore(ctx context.Context, p *models.Principal, ticketID string) error {
	if p == nil || !p.IsAdmin() {
		return ErrInsufficientPermission
	}
	if err := s.tickets.Restore(ctx, ticketID, s.actor(p)); err != nil {
		return mapRepoError(err)
	}
	s.auditor.PublishTicketEvent(ctx, "ticket_restored", ticketID, s.actor(p), nil)

	ticket, err := s.tickets.GetTicket(ctx, ticketID, false)
	if err != nil {
		return mapRepoError(err)
	}
	s.indexer.IndexTicket(ctx, ticket)
	return nil
}

// HardDelete destroys a ticket. It fails while history rows exist unless the
// caller explicitly asks for the history to be purged with it.
func (s *TicketService) HardDelete(ctx context.Context, p *models.Principal, ticketID string, purgeHistory bool) error {
	if p == nil || !p.IsAdmin() {
		return ErrInsufficientPermission
	}
	if err := s.tickets.HardDelete(ctx, ticketID, purgeHistory); err != nil {
		return mapRepoError(err)
	}
	s.auditor.PublishTicketEvent(ctx, "ticket_hard_deleted", ticketID, s.actor(p), map[string]string{
		"history_purged": fmt.Sprintf("%t", purgeHistory),
	})
	s.indexer.RemoveTicket(ctx, ticketID)
	return nil
}

// Reassign changes worked_by. Admin only, recorded as an audited change
// rather than a plain field update.
func (s *TicketService) Reassign(ctx context.Context, p *models.Principal, ticketID string, workedBy *string) error {
	if p == nil || !p.IsAdmin() {
		return ErrInsufficientPermission
	}

	if workedBy != nil {
		employee, err := s.employees.GetEmployee(ctx, *workedBy)
		if err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return fmt.Errorf("%w: unknown employee %s", ErrValidation, *workedBy)
			}
			return err
		}
		if !employee.IsActive {
			return fmt.Errorf("%w: employee %s is inactive", ErrValidation, *workedBy)
		}
	}

	if err := s.tickets.Reassign(ctx, ticketID, workedBy, s.actor(p)); err != nil {
		return mapRepoError(err)
	}

	target := ""
	if workedBy != nil {
		target = *workedBy
	}
	s.auditor.PublishTicketEvent(ctx, "ticket_reassigned", ticketID, s.actor(p), map[string]string{
		"worked_by": target,
	})

	ticket, err := s.tickets.GetTicket(ctx, ticketID, true)
	if err != nil {
		return mapRepoError(err)
	}
	s.indexer.IndexTicket(ctx, ticket)
	return nil
}

func (s *TicketService) SetRush(ctx context.Context, p *models.Principal, ticketID string, rush bool) error {
	if err := requirePermission(p, permission.ModifyOwnTicket); err != nil {
		return err
	}
	if _, err := s.loadOwned(ctx, p, ticketID); err != nil {
		return err
	}
	if err := s.tickets.SetRush(ctx, ticketID, rush, s.actor(p)); err != nil {
		return mapRepoError(err)
	}
	s.auditor.PublishTicketEvent(ctx, "rush_changed", ticketID, s.actor(p), map[string]string{
		"is_rush": fmt.Sprintf("%t", rush),
	})
	return nil
}

func (s *TicketService) AddNote(ctx context.Context, p *models.Principal, ticketID, body string) (*models.TicketNote, error) {
	if err := requirePermission(p, permission.AddNotes); err != nil {
		return nil, err
	}
	if _, err := s.loadOwned(ctx, p, ticketID); err != nil {
		return nil, err
	}

	body = util.SanitizeAuditField(body)
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", ErrValidation)
	}
	if util.ContainsSuspicious(body) {
		s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
			EventType:  models.EventSuspiciousData,
			Kind:       string(p.Kind),
			EmployeeID: p.EmployeeID,
			Details:    "ticket note",
		})
		return nil, fmt.Errorf("%w: note contains disallowed content", ErrValidation)
	}

	note := &models.TicketNote{
		NoteID:    uuid.NewString(),
		TicketID:  ticketID,
		Body:      body,
		CreatedBy: s.actor(p),
	}
	if err := s.tickets.AddNote(ctx, note); err != nil {
		return nil, mapRepoError(err)
	}

	s.auditor.PublishTicketEvent(ctx, "note_added", ticketID, s.actor(p), nil)
	return note, nil
}

func (s *TicketService) ListNotes(ctx context.Context, p *models.Principal, ticketID string) ([]*models.TicketNote, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	notes, err := s.tickets.ListNotes(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return notes, nil
}

// AddPhoto records photo metadata after validating the upload constraints.
// The handler writes the bytes; this layer owns the gate.
func (s *TicketService) AddPhoto(ctx context.Context, p *models.Principal, ticketID, fileName, contentType string, sizeBytes int64, storagePath string) (*models.TicketPhoto, error) {
	if err := requirePermission(p, permission.UploadPhotos); err != nil {
		return nil, err
	}
	if _, err := s.loadOwned(ctx, p, ticketID); err != nil {
		return nil, err
	}

	if sizeBytes <= 0 || sizeBytes > s.uploads.MaxPhotoBytes {
		return nil, fmt.Errorf("%w: photo size out of bounds", ErrValidation)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unsupported content type %s", ErrValidation, contentType)
	}

	photo := &models.TicketPhoto{
		PhotoID:     uuid.NewString(),
		TicketID:    ticketID,
		FileName:    util.SanitizeAuditField(fileName),
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		StoragePath: storagePath,
		UploadedBy:  s.actor(p),
	}
	if err := s.tickets.AddPhoto(ctx, photo); err != nil {
		return nil, mapRepoError(err)
	}

	s.auditor.PublishTicketEvent(ctx, "photo_added", ticketID, s.actor(p), map[string]string{
		"file_name": photo.FileName,
	})
	return photo, nil
}

func (s *TicketService) ListPhotos(ctx context.Context, p *models.Principal, ticketID string) ([]*models.TicketPhoto, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	photos, err := s.tickets.ListPhotos(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return photos, nil
}

func (s *TicketService) GetPhoto(ctx context.Context, p *models.Principal, ticketID, photoID string) (*models.TicketPhoto, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	photo, err := s.tickets.GetPhoto(ctx, ticketID, photoID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return photo, nil
}

// DeletePhoto removes the metadata row and returns it so the caller can
// delete the stored file. Admin only; the deletion stays in field history.
func (s *TicketService) DeletePhoto(ctx context.Context, p *models.Principal, ticketID, photoID string) (*models.TicketPhoto, error) {
	if err := requirePermission(p, permission.DeletePhotos); err != nil {
		return nil, err
	}
	photo, err := s.tickets.DeletePhoto(ctx, ticketID, photoID, s.actor(p))
	if err != nil {
		return nil, mapRepoError(err)
	}
	s.auditor.PublishTicketEvent(ctx, "photo_deleted", ticketID, s.actor(p), map[string]string{
		"file_name": photo.FileName,
	})
	return photo, nil
}

// StatusHistory is readable for soft-deleted tickets too; the trail outlives
// the listing.
func (s *TicketService) StatusHistory(ctx context.Context, p *models.Principal, ticketID string) ([]*models.StatusHistoryEntry, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	entries, err := s.tickets.ListStatusHistory(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return entries, nil
}

func (s *TicketService) FieldHistory(ctx context.Context, p *models.Principal, ticketID string) ([]*models.FieldHistoryEntry, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}
	entries, err := s.tickets.ListFieldHistory(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return entries, nil
}

// Search resolves a free-text query to tickets via the search index. Hits
// are hydrated from Postgres in parallel, keeping relevance order.
func (s *TicketService) Search(ctx context.Context, p *models.Principal, query string, limit int) ([]*models.Ticket, error) {
	if err := requirePermission(p, permission.ViewTicket); err != nil {
		return nil, err
	}

	ids, err := s.indexer.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*models.Ticket, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ticket, err := s.tickets.GetTicket(ctx, id, false)
			if err != nil {
				// Stale index entries are expected after deletes.
				if errors.Is(err, postgres.ErrNotFound) || errors.Is(err, postgres.ErrTicketDeleted) {
					return nil
				}
				return mapRepoError(err)
			}
			results[i] = ticket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tickets := make([]*models.Ticket, 0, len(results))
	for _, t := range results {
		if t != nil {
			tickets = append(tickets, t)
		}
	}
	return tickets, nil
}

// actor names the acting principal for history rows. Admin sessions have no
// employee id.
func (s *TicketService) actor(p *models.Principal) string {
	if p.EmployeeID != "" {
		return p.EmployeeID
	}
	return "admin"
}
