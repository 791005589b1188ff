package service

import (
	"context"
	"errors"
	"testing"

	"shopfloor-service/internal/config"
	"shopfloor-service/internal/models"
)

func staffPrincipal(employeeID string) *models.Principal {
	return &models.Principal{
		Kind:       models.KindEmployee,
		EmployeeID: employeeID,
		Role:       models.RoleStaff,
	}
}

func adminPrincipal() *models.Principal {
	return &models.Principal{
		Kind: models.KindAdmin,
		Name: "admin",
		Role: models.RoleAdmin,
	}
}

func newTestTicketService(tickets ...*models.Ticket) (*TicketService, *fakeTicketRepo) {
	repo := newFakeTicketRepo(tickets...)
	employees := newFakeEmployeeRepo(
		&models.Employee{EmployeeID: "emp-1", Name: "Dana", Role: models.RoleStaff, IsActive: true},
		&models.Employee{EmployeeID: "emp-2", Name: "Riley", Role: models.RoleStaff, IsActive: true},
		&models.Employee{EmployeeID: "emp-3", Name: "Sam", Role: models.RoleStaff, IsActive: false},
	)
	svc := NewTicketService(repo, employees, nil, nil, nil, config.UploadConfig{MaxPhotoBytes: 5 << 20})
	return svc, repo
}

func intakeTicket(ticketID, takenInBy string) *models.Ticket {
	return &models.Ticket{
		TicketID:       ticketID,
		Status:         models.StatusIntake,
		CustomerName:   "Pat Doe",
		DeviceModel:    "ThinkPad T14",
		ProblemSummary: "no boot",
		TakenInBy:      takenInBy,
	}
}

func TestCreateTicket(t *testing.T) {
	svc, repo := newTestTicketService()
	ctx := context.Background()

	ticket, err := svc.CreateTicket(ctx, staffPrincipal("emp-1"), &CreateTicketRequest{
		CustomerName:   "Pat Doe",
		DeviceModel:    "ThinkPad T14",
		ProblemSummary: "no boot",
	})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.Status != models.StatusIntake {
		t.Errorf("status = %s, want intake", ticket.Status)
	}
	if ticket.TakenInBy != "emp-1" {
		t.Errorf("taken_in_by = %s, want emp-1", ticket.TakenInBy)
	}

	history := repo.statusHistory[ticket.TicketID]
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].FromStatus != nil || history[0].ToStatus != models.StatusIntake {
		t.Errorf("initial history row = %+v, want nil -> intake", history[0])
	}
}

func TestCreateTicketValidation(t *testing.T) {
	svc, _ := newTestTicketService()
	ctx := context.Background()

	tests := []struct {
		name string
		p    *models.Principal
		req  CreateTicketRequest
		want error
	}{
		{
			"missing fields",
			staffPrincipal("emp-1"),
			CreateTicketRequest{CustomerName: "Pat"},
			ErrValidation,
		},
		{
			"suspicious input",
			staffPrincipal("emp-1"),
			CreateTicketRequest{CustomerName: "<script>alert(1)</script>", DeviceModel: "X", ProblemSummary: "y"},
			ErrValidation,
		},
		{
			"admin session has no employee identity",
			adminPrincipal(),
			CreateTicketRequest{CustomerName: "Pat", DeviceModel: "X", ProblemSummary: "y"},
			ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateTicket(ctx, tt.p, &tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChangeStatusByOwner(t *testing.T) {
	svc, repo := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	ticket, err := svc.ChangeStatus(ctx, staffPrincipal("emp-1"), "t-1", models.StatusInProgress)
	if err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}
	if ticket.Status != models.StatusInProgress {
		t.Errorf("status = %s, want in_progress", ticket.Status)
	}
	if len(repo.statusHistory["t-1"]) != 1 {
		t.Errorf("history rows = %d, want 1", len(repo.statusHistory["t-1"]))
	}
}

func TestChangeStatusRejectsUnrelatedStaff(t *testing.T) {
	svc, _ := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	_, err := svc.ChangeStatus(ctx, staffPrincipal("emp-2"), "t-1", models.StatusInProgress)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("err = %v, want ErrNotOwner", err)
	}
}

func TestWorkedByGrantsOwnership(t *testing.T) {
	ticket := intakeTicket("t-1", "emp-1")
	ticket.Status = models.StatusInProgress
	worker := "emp-2"
	ticket.WorkedBy = &worker

	svc, _ := newTestTicketService(ticket)
	ctx := context.Background()

	if _, err := svc.ChangeStatus(ctx, staffPrincipal("emp-2"), "t-1", models.StatusWaitingOnParts); err != nil {
		t.Fatalf("assigned worker rejected: %v", err)
	}
}

func TestChangeStatusTransitionGraph(t *testing.T) {
	tests := []struct {
		name string
		from models.TicketStatus
		to   models.TicketStatus
		want error
	}{
		{"intake to in_progress", models.StatusIntake, models.StatusInProgress, nil},
		{"intake skips to ready", models.StatusIntake, models.StatusReadyForPickup, ErrInvalidTransition},
		{"in_progress to waiting", models.StatusInProgress, models.StatusWaitingOnParts, nil},
		{"waiting back to in_progress", models.StatusWaitingOnParts, models.StatusInProgress, nil},
		{"ready back to waiting", models.StatusReadyForPickup, models.StatusWaitingOnParts, nil},
		{"closed cannot reopen", models.StatusClosed, models.StatusInProgress, ErrInvalidTransition},
		{"closed to archived", models.StatusClosed, models.StatusArchived, nil},
		{"archived is terminal", models.StatusArchived, models.StatusInProgress, ErrInvalidTransition},
		{"generic close is refused", models.StatusReadyForPickup, models.StatusClosed, ErrValidation},
		{"unknown status", models.StatusIntake, models.TicketStatus("lost"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := intakeTicket("t-1", "emp-1")
			ticket.Status = tt.from
			svc, _ := newTestTicketService(ticket)

			_, err := svc.ChangeStatus(context.Background(), adminPrincipal(), "t-1", tt.to)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ChangeStatus: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCloseTicket(t *testing.T) {
	ticket := intakeTicket("t-1", "emp-1")
	ticket.Status = models.StatusReadyForPickup
	svc, repo := newTestTicketService(ticket)
	ctx := context.Background()

	amount := int64(12500)

	// Staff cannot close, even their own ticket.
	if _, err := svc.CloseTicket(ctx, staffPrincipal("emp-1"), "t-1", &amount); !errors.Is(err, ErrInsufficientPermission) {
		t.Fatalf("staff close: err = %v, want ErrInsufficientPermission", err)
	}

	// The actual amount is mandatory.
	if _, err := svc.CloseTicket(ctx, adminPrincipal(), "t-1", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("close without amount: err = %v, want ErrValidation", err)
	}
	negative := int64(-1)
	if _, err := svc.CloseTicket(ctx, adminPrincipal(), "t-1", &negative); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative amount: err = %v, want ErrValidation", err)
	}

	closed, err := svc.CloseTicket(ctx, adminPrincipal(), "t-1", &amount)
	if err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}
	if closed.Status != models.StatusClosed {
		t.Errorf("status = %s, want closed", closed.Status)
	}
	if closed.ActualAmount == nil || *closed.ActualAmount != amount {
		t.Errorf("actual_amount = %v, want %d", closed.ActualAmount, amount)
	}
	if len(repo.statusHistory["t-1"]) != 1 {
		t.Errorf("history rows = %d, want 1", len(repo.statusHistory["t-1"]))
	}

	// A closed ticket cannot be closed again.
	if _, err := svc.CloseTicket(ctx, adminPrincipal(), "t-1", &amount); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double close: err = %v, want ErrInvalidTransition", err)
	}
}

func TestSoftDeleteAndRestore(t *testing.T) {
	svc, repo := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	if err := svc.SoftDelete(ctx, staffPrincipal("emp-1"), "t-1"); !errors.Is(err, ErrInsufficientPermission) {
		t.Fatalf("staff soft delete: err = %v, want ErrInsufficientPermission", err)
	}

	if err := svc.SoftDelete(ctx, adminPrincipal(), "t-1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	// Hidden from staff, visible to admin.
	if _, err := svc.GetTicket(ctx, staffPrincipal("emp-1"), "t-1"); !errors.Is(err, ErrTicketDeleted) {
		t.Errorf("staff get deleted: err = %v, want ErrTicketDeleted", err)
	}
	if _, err := svc.GetTicket(ctx, adminPrincipal(), "t-1"); err != nil {
		t.Errorf("admin get deleted: %v", err)
	}

	// The audit trail survives the deletion.
	history, err := svc.StatusHistory(ctx, adminPrincipal(), "t-1")
	if err != nil {
		t.Fatalf("StatusHistory: %v", err)
	}
	if len(history) == 0 && len(repo.statusHistory["t-1"]) != 0 {
		t.Error("history lost after soft delete")
	}

	if err := svc.Restore(ctx, adminPrincipal(), "t-1"); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := svc.GetTicket(ctx, staffPrincipal("emp-1"), "t-1"); err != nil {
		t.Errorf("staff get restored: %v", err)
	}
}

func TestHardDeleteProtectsHistory(t *testing.T) {
	svc, repo := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	// Seed a history row the way the repository would.
	if _, err := svc.ChangeStatus(ctx, adminPrincipal(), "t-1", models.StatusInProgress); err != nil {
		t.Fatalf("ChangeStatus: %v", err)
	}

	if err := svc.HardDelete(ctx, adminPrincipal(), "t-1", false); !errors.Is(err, ErrHistoryProtected) {
		t.Fatalf("err = %v, want ErrHistoryProtected", err)
	}
	if _, ok := repo.tickets["t-1"]; !ok {
		t.Fatal("refused hard delete must leave the ticket in place")
	}

	if err := svc.HardDelete(ctx, adminPrincipal(), "t-1", true); err != nil {
		t.Fatalf("HardDelete with purge: %v", err)
	}
	if _, ok := repo.tickets["t-1"]; ok {
		t.Error("ticket still present after purge")
	}
	if len(repo.statusHistory["t-1"]) != 0 {
		t.Error("history still present after purge")
	}
}

func TestReassign(t *testing.T) {
	svc, repo := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	worker := "emp-2"
	if err := svc.Reassign(ctx, staffPrincipal("emp-1"), "t-1", &worker); !errors.Is(err, ErrInsufficientPermission) {
		t.Fatalf("staff reassign: err = %v, want ErrInsufficientPermission", err)
	}

	unknown := "ghost"
	if err := svc.Reassign(ctx, adminPrincipal(), "t-1", &unknown); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown target: err = %v, want ErrValidation", err)
	}
	inactive := "emp-3"
	if err := svc.Reassign(ctx, adminPrincipal(), "t-1", &inactive); !errors.Is(err, ErrValidation) {
		t.Fatalf("inactive target: err = %v, want ErrValidation", err)
	}

	if err := svc.Reassign(ctx, adminPrincipal(), "t-1", &worker); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if repo.tickets["t-1"].WorkedBy == nil || *repo.tickets["t-1"].WorkedBy != "emp-2" {
		t.Errorf("worked_by = %v, want emp-2", repo.tickets["t-1"].WorkedBy)
	}

	// Clearing the assignment is valid.
	if err := svc.Reassign(ctx, adminPrincipal(), "t-1", nil); err != nil {
		t.Fatalf("clear assignment: %v", err)
	}
	if repo.tickets["t-1"].WorkedBy != nil {
		t.Errorf("worked_by = %v, want nil", repo.tickets["t-1"].WorkedBy)
	}
}

func TestNotesAndPhotos(t *testing.T) {
	svc, _ := newTestTicketService(intakeTicket("t-1", "emp-1"))
	ctx := context.Background()

	note, err := svc.AddNote(ctx, staffPrincipal("emp-1"), "t-1", "ordered replacement fan")
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if note.CreatedBy != "emp-1" {
		t.Errorf("created_by = %s, want emp-1", note.CreatedBy)
	}
	if _, err := svc.AddNote(ctx, staffPrincipal("emp-2"), "t-1", "drive-by note"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("unrelated staff note: err = %v, want ErrNotOwner", err)
	}
	if _, err := svc.AddNote(ctx, staffPrincipal("emp-1"), "t-1", "   "); !errors.Is(err, ErrValidation) {
		t.Errorf("blank note: err = %v, want ErrValidation", err)
	}

	photo, err := svc.AddPhoto(ctx, staffPrincipal("emp-1"), "t-1", "intake.jpg", "image/jpeg", 1024, "/photos/t-1/intake.jpg")
	if err != nil {
		t.Fatalf("AddPhoto: %v", err)
	}
	if _, err := svc.AddPhoto(ctx, staffPrincipal("emp-1"), "t-1", "huge.jpg", "image/jpeg", 50<<20, "p"); !errors.Is(err, ErrValidation) {
		t.Errorf("oversized photo: err = %v, want ErrValidation", err)
	}
	if _, err := svc.AddPhoto(ctx, staffPrincipal("emp-1"), "t-1", "doc.pdf", "application/pdf", 1024, "p"); !errors.Is(err, ErrValidation) {
		t.Errorf("non-image upload: err = %v, want ErrValidation", err)
	}

	fetched, err := svc.GetPhoto(ctx, staffPrincipal("emp-2"), "t-1", photo.PhotoID)
	if err != nil {
		t.Fatalf("GetPhoto: %v", err)
	}
	if fetched.PhotoID != photo.PhotoID || fetched.StoragePath != photo.StoragePath {
		t.Errorf("GetPhoto = %+v, want the uploaded photo", fetched)
	}
	if _, err := svc.GetPhoto(ctx, staffPrincipal("emp-1"), "t-1", "no-such-photo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown photo: err = %v, want ErrNotFound", err)
	}

	// Photo deletion is an admin operation.
	if _, err := svc.DeletePhoto(ctx, staffPrincipal("emp-1"), "t-1", photo.PhotoID); !errors.Is(err, ErrInsufficientPermission) {
		t.Errorf("staff delete photo: err = %v, want ErrInsufficientPermission", err)
	}
	deleted, err := svc.DeletePhoto(ctx, adminPrincipal(), "t-1", photo.PhotoID)
	if err != nil {
		t.Fatalf("DeletePhoto: %v", err)
	}
	if deleted.StoragePath != photo.StoragePath {
		t.Errorf("returned photo path = %s, want %s", deleted.StoragePath, photo.StoragePath)
	}
}

func TestListTicketsHidesDeletedFromStaff(t *testing.T) {
	live := intakeTicket("t-1", "emp-1")
	gone := intakeTicket("t-2", "emp-1")
	svc, _ := newTestTicketService(live, gone)
	ctx := context.Background()

	if err := svc.SoftDelete(ctx, adminPrincipal(), "t-2"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	tickets, err := svc.ListTickets(ctx, staffPrincipal("emp-1"), nil, true)
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Errorf("staff listing = %d tickets, want 1 (deleted hidden despite include flag)", len(tickets))
	}

	tickets, err = svc.ListTickets(ctx, adminPrincipal(), nil, true)
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Errorf("admin listing = %d tickets, want 2", len(tickets))
	}
}
