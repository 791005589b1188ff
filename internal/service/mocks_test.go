package service

import (
	"context"
	"fmt"
	"time"

	"shopfloor-service/internal/models"
	"shopfloor-service/internal/ratelimit"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/repository/redis"
)

// fakeLimiter answers every check with a fixed decision and counts the
// outcome callbacks.
type fakeLimiter struct {
	decision  ratelimit.Decision
	checkErr  error
	checks    int
	failures  int
	successes int
}

func (l *fakeLimiter) Check(ctx context.Context, sourceKey string) (ratelimit.Decision, error) {
	l.checks++
	return l.decision, l.checkErr
}

func (l *fakeLimiter) RecordFailure(ctx context.Context, sourceKey string) error {
	l.failures++
	return nil
}

func (l *fakeLimiter) RecordSuccess(ctx context.Context, sourceKey string) error {
	l.successes++
	return nil
}

// fakeSessionStore keeps sessions in a map keyed by token.
type fakeSessionStore struct {
	sessions map[string]*models.Session
	issued   int
	revoked  []string
	swept    int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *fakeSessionStore) Issue(ctx context.Context, kind models.PrincipalKind, employeeID string) (string, *models.Session, error) {
	s.issued++
	token := fmt.Sprintf("token-%d", s.issued)
	session := &models.Session{
		SessionID:  fmt.Sprintf("session-%d", s.issued),
		Kind:       kind,
		EmployeeID: employeeID,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	s.sessions[token] = session
	return token, session, nil
}

func (s *fakeSessionStore) ValidateAndTouch(ctx context.Context, kind models.PrincipalKind, token string) (*models.Session, error) {
	session, ok := s.sessions[token]
	if !ok || session.Kind != kind {
		return nil, redis.ErrSessionNotFound
	}
	session.LastActivityAt = time.Now().UTC()
	return session, nil
}

func (s *fakeSessionStore) Revoke(ctx context.Context, kind models.PrincipalKind, token string) error {
	s.revoked = append(s.revoked, token)
	delete(s.sessions, token)
	return nil
}

func (s *fakeSessionStore) RevokeAllForEmployee(ctx context.Context, employeeID string) error {
	for token, session := range s.sessions {
		if session.EmployeeID == employeeID {
			s.revoked = append(s.revoked, token)
			delete(s.sessions, token)
		}
	}
	return nil
}

func (s *fakeSessionStore) SweepExpired(ctx context.Context) error {
	s.swept++
	return nil
}

// fakeEmployeeRepo serves employees out of a map.
type fakeEmployeeRepo struct {
	employees map[string]*models.Employee
}

func newFakeEmployeeRepo(employees ...*models.Employee) *fakeEmployeeRepo {
	repo := &fakeEmployeeRepo{employees: make(map[string]*models.Employee)}
	for _, e := range employees {
		repo.employees[e.EmployeeID] = e
	}
	return repo
}

func (r *fakeEmployeeRepo) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	if _, ok := r.employees[employee.EmployeeID]; ok {
		return postgres.ErrAlreadyExists
	}
	r.employees[employee.EmployeeID] = employee
	return nil
}

func (r *fakeEmployeeRepo) GetEmployee(ctx context.Context, employeeID string) (*models.Employee, error) {
	employee, ok := r.employees[employeeID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return employee, nil
}

func (r *fakeEmployeeRepo) ListEmployees(ctx context.Context, includeInactive bool) ([]*models.Employee, error) {
	var out []*models.Employee
	for _, e := range r.employees {
		if e.IsActive || includeInactive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeEmployeeRepo) UpdateEmployee(ctx context.Context, employeeID, name string, role models.Role) error {
	employee, ok := r.employees[employeeID]
	if !ok {
		return postgres.ErrNotFound
	}
	employee.Name = name
	employee.Role = role
	return nil
}

func (r *fakeEmployeeRepo) SetActive(ctx context.Context, employeeID string, active bool) error {
	employee, ok := r.employees[employeeID]
	if !ok {
		return postgres.ErrNotFound
	}
	employee.IsActive = active
	return nil
}

func (r *fakeEmployeeRepo) UpdatePinHash(ctx context.Context, employeeID, pinHash string) error {
	employee, ok := r.employees[employeeID]
	if !ok {
		return postgres.ErrNotFound
	}
	employee.PinHash = pinHash
	return nil
}

func (r *fakeEmployeeRepo) IsActive(ctx context.Context, employeeID string) (bool, error) {
	employee, ok := r.employees[employeeID]
	if !ok {
		return false, postgres.ErrNotFound
	}
	return employee.IsActive, nil
}

func (r *fakeEmployeeRepo) HealthCheck(ctx context.Context) error { return nil }

// fakeSettingsRepo holds one settings row in memory.
type fakeSettingsRepo struct {
	settings     models.Settings
	adminPinHash string
	locations    map[string]*models.Location
}

func newFakeSettingsRepo(adminPinHash string) *fakeSettingsRepo {
	return &fakeSettingsRepo{
		adminPinHash: adminPinHash,
		locations:    make(map[string]*models.Location),
	}
}

func (r *fakeSettingsRepo) GetSettings(ctx context.Context) (*models.Settings, error) {
	settings := r.settings
	return &settings, nil
}

func (r *fakeSettingsRepo) UpdateSettings(ctx context.Context, shopName, currency, labelPrinter string) error {
	r.settings.ShopName = shopName
	r.settings.Currency = currency
	r.settings.LabelPrinter = labelPrinter
	return nil
}

func (r *fakeSettingsRepo) GetAdminPinHash(ctx context.Context) (string, error) {
	if r.adminPinHash == "" {
		return "", postgres.ErrNotFound
	}
	return r.adminPinHash, nil
}

func (r *fakeSettingsRepo) UpdateAdminPinHash(ctx context.Context, pinHash string) error {
	r.adminPinHash = pinHash
	return nil
}

func (r *fakeSettingsRepo) CreateLocation(ctx context.Context, location *models.Location) error {
	r.locations[location.LocationID] = location
	return nil
}

func (r *fakeSettingsRepo) ListLocations(ctx context.Context) ([]*models.Location, error) {
	out := make([]*models.Location, 0, len(r.locations))
	for _, l := range r.locations {
		out = append(out, l)
	}
	return out, nil
}

func (r *fakeSettingsRepo) DeleteLocation(ctx context.Context, locationID string) error {
	if _, ok := r.locations[locationID]; !ok {
		return postgres.ErrNotFound
	}
	delete(r.locations, locationID)
	return nil
}

func (r *fakeSettingsRepo) HealthCheck(ctx context.Context) error { return nil }

// fakeTicketRepo mirrors the transactional repository semantics in memory:
// status transitions are compare-and-set against the stored status, and every
// transition appends a history row.
type fakeTicketRepo struct {
	tickets       map[string]*models.Ticket
	statusHistory map[string][]*models.StatusHistoryEntry
	fieldHistory  map[string][]*models.FieldHistoryEntry
	notes         map[string][]*models.TicketNote
	photos        map[string][]*models.TicketPhoto
}

func newFakeTicketRepo(tickets ...*models.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{
		tickets:       make(map[string]*models.Ticket),
		statusHistory: make(map[string][]*models.StatusHistoryEntry),
		fieldHistory:  make(map[string][]*models.FieldHistoryEntry),
		notes:         make(map[string][]*models.TicketNote),
		photos:        make(map[string][]*models.TicketPhoto),
	}
	for _, t := range tickets {
		repo.tickets[t.TicketID] = t
	}
	return repo
}

func (r *fakeTicketRepo) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if _, ok := r.tickets[ticket.TicketID]; ok {
		return postgres.ErrAlreadyExists
	}
	ticket.Status = models.StatusIntake
	ticket.CreatedAt = time.Now().UTC()
	r.tickets[ticket.TicketID] = ticket
	r.statusHistory[ticket.TicketID] = append(r.statusHistory[ticket.TicketID], &models.StatusHistoryEntry{
		TicketID:  ticket.TicketID,
		ToStatus:  models.StatusIntake,
		ChangedBy: ticket.TakenInBy,
		ChangedAt: ticket.CreatedAt,
	})
	return nil
}

func (r *fakeTicketRepo) GetTicket(ctx context.Context, ticketID string, includeDeleted bool) (*models.Ticket, error) {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	if ticket.Deleted() && !includeDeleted {
		return nil, postgres.ErrTicketDeleted
	}
	return ticket, nil
}

func (r *fakeTicketRepo) ListTickets(ctx context.Context, status *models.TicketStatus, includeDeleted bool) ([]*models.Ticket, error) {
	var out []*models.Ticket
	for _, t := range r.tickets {
		if t.Deleted() && !includeDeleted {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeTicketRepo) TransitionStatus(ctx context.Context, ticketID string, from, to models.TicketStatus, changedBy string, actualAmount *int64) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return postgres.ErrNotFound
	}
	if ticket.Deleted() {
		return postgres.ErrTicketDeleted
	}
	if ticket.Status != from {
		return postgres.ErrStatusConflict
	}
	ticket.Status = to
	if actualAmount != nil {
		ticket.ActualAmount = actualAmount
	}
	fromCopy := from
	r.statusHistory[ticketID] = append(r.statusHistory[ticketID], &models.StatusHistoryEntry{
		TicketID:   ticketID,
		FromStatus: &fromCopy,
		ToStatus:   to,
		ChangedBy:  changedBy,
		ChangedAt:  time.Now().UTC(),
	})
	return nil
}

func (r *fakeTicketRepo) SoftDelete(ctx context.Context, ticketID, deletedBy string) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return postgres.ErrNotFound
	}
	if ticket.Deleted() {
		return postgres.ErrTicketDeleted
	}
	now := time.Now().UTC()
	ticket.DeletedAt = &now
	ticket.DeletedBy = &deletedBy
	return nil
}

func (r *fakeTicketRepo) Restore(ctx context.Context, ticketID, restoredBy string) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return postgres.ErrNotFound
	}
	ticket.DeletedAt = nil
	ticket.DeletedBy = nil
	return nil
}

func (r *fakeTicketRepo) HardDelete(ctx context.Context, ticketID string, purgeHistory bool) error {
	if _, ok := r.tickets[ticketID]; !ok {
		return postgres.ErrNotFound
	}
	if len(r.statusHistory[ticketID]) > 0 && !purgeHistory {
		return postgres.ErrHistoryProtected
	}
	delete(r.tickets, ticketID)
	delete(r.statusHistory, ticketID)
	delete(r.fieldHistory, ticketID)
	delete(r.notes, ticketID)
	delete(r.photos, ticketID)
	return nil
}

func (r *fakeTicketRepo) Reassign(ctx context.Context, ticketID string, workedBy *string, changedBy string) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return postgres.ErrNotFound
	}
	if ticket.Deleted() {
		return postgres.ErrTicketDeleted
	}
	ticket.WorkedBy = workedBy
	return nil
}

func (r *fakeTicketRepo) SetRush(ctx context.Context, ticketID string, rush bool, changedBy string) error {
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return postgres.ErrNotFound
	}
	ticket.IsRush = rush
	return nil
}

func (r *fakeTicketRepo) AddNote(ctx context.Context, note *models.TicketNote) error {
	r.notes[note.TicketID] = append(r.notes[note.TicketID], note)
	return nil
}

func (r *fakeTicketRepo) ListNotes(ctx context.Context, ticketID string) ([]*models.TicketNote, error) {
	return r.notes[ticketID], nil
}

func (r *fakeTicketRepo) AddPhoto(ctx context.Context, photo *models.TicketPhoto) error {
	r.photos[photo.TicketID] = append(r.photos[photo.TicketID], photo)
	return nil
}

func (r *fakeTicketRepo) GetPhoto(ctx context.Context, ticketID, photoID string) (*models.TicketPhoto, error) {
	for _, p := range r.photos[ticketID] {
		if p.PhotoID == photoID {
			return p, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (r *fakeTicketRepo) ListPhotos(ctx context.Context, ticketID string) ([]*models.TicketPhoto, error) {
	return r.photos[ticketID], nil
}

func (r *fakeTicketRepo) DeletePhoto(ctx context.Context, ticketID, photoID, deletedBy string) (*models.TicketPhoto, error) {
	for i, p := range r.photos[ticketID] {
		if p.PhotoID == photoID {
			r.photos[ticketID] = append(r.photos[ticketID][:i], r.photos[ticketID][i+1:]...)
			return p, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (r *fakeTicketRepo) ListStatusHistory(ctx context.Context, ticketID string) ([]*models.StatusHistoryEntry, error) {
	return r.statusHistory[ticketID], nil
}

func (r *fakeTicketRepo) ListFieldHistory(ctx context.Context, ticketID string) ([]*models.FieldHistoryEntry, error) {
	return r.fieldHistory[ticketID], nil
}

func (r *fakeTicketRepo) HealthCheck(ctx context.Context) error { return nil }
