package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/models"
)

func TestTransitionStatusAppendsHistoryAtomically(t *testing.T) {
	ctx := context.Background()
	repo, pool, cleanup := setupTicketRepo(t, ctx)
	t.Cleanup(cleanup)

	employeeID := seedEmployee(t, ctx, pool)
	ticketID := seedIntakeTicket(t, ctx, repo, employeeID)

	if err := repo.TransitionStatus(ctx, ticketID, models.StatusIntake, models.StatusInProgress, employeeID, nil); err != nil {
		t.Fatalf("transition: %v", err)
	}

	ticket, err := repo.GetTicket(ctx, ticketID, false)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Status != models.StatusInProgress {
		t.Errorf("status = %s, want in_progress", ticket.Status)
	}

	entries, err := repo.ListStatusHistory(ctx, ticketID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history rows = %d, want 2 (intake + transition)", len(entries))
	}
	last := entries[len(entries)-1]
	if last.FromStatus == nil || *last.FromStatus != models.StatusIntake || last.ToStatus != models.StatusInProgress {
		t.Errorf("last entry = %+v, want intake -> in_progress", last)
	}
	if last.ChangedBy != employeeID {
		t.Errorf("changed_by = %s, want %s", last.ChangedBy, employeeID)
	}
}

func TestTransitionStatusConcurrentCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo, pool, cleanup := setupTicketRepo(t, ctx)
	t.Cleanup(cleanup)

	employeeID := seedEmployee(t, ctx, pool)
	ticketID := seedIntakeTicket(t, ctx, repo, employeeID)
	if err := repo.TransitionStatus(ctx, ticketID, models.StatusIntake, models.StatusInProgress, employeeID, nil); err != nil {
		t.Fatalf("setup transition: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.TransitionStatus(ctx, ticketID, models.StatusInProgress, models.StatusWaitingOnParts, employeeID, nil)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrStatusConflict):
			conflicted++
		default:
			t.Fatalf("unexpected transition error: %v", err)
		}
	}
	if succeeded != 1 || conflicted != 1 {
		t.Fatalf("succeeded = %d, conflicted = %d, want exactly one of each", succeeded, conflicted)
	}

	entries, err := repo.ListStatusHistory(ctx, ticketID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("history rows = %d, want 3 (losing update must not append)", len(entries))
	}
}

func TestTransitionStatusClassifiesMissedUpdates(t *testing.T) {
	ctx := context.Background()
	repo, pool, cleanup := setupTicketRepo(t, ctx)
	t.Cleanup(cleanup)

	employeeID := seedEmployee(t, ctx, pool)

	err := repo.TransitionStatus(ctx, uuid.NewString(), models.StatusIntake, models.StatusInProgress, employeeID, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing ticket: err = %v, want ErrNotFound", err)
	}

	ticketID := seedIntakeTicket(t, ctx, repo, employeeID)
	if err := repo.SoftDelete(ctx, ticketID, employeeID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	err = repo.TransitionStatus(ctx, ticketID, models.StatusIntake, models.StatusInProgress, employeeID, nil)
	if !errors.Is(err, ErrTicketDeleted) {
		t.Errorf("deleted ticket: err = %v, want ErrTicketDeleted", err)
	}
}

func TestCloseTransitionRecordsAmountInOneTransaction(t *testing.T) {
	ctx := context.Background()
	repo, pool, cleanup := setupTicketRepo(t, ctx)
	t.Cleanup(cleanup)

	employeeID := seedEmployee(t, ctx, pool)
	ticketID := seedIntakeTicket(t, ctx, repo, employeeID)
	if err := repo.TransitionStatus(ctx, ticketID, models.StatusIntake, models.StatusInProgress, employeeID, nil); err != nil {
		t.Fatalf("setup transition: %v", err)
	}

	amount := int64(12500)
	if err := repo.TransitionStatus(ctx, ticketID, models.StatusInProgress, models.StatusClosed, employeeID, &amount); err != nil {
		t.Fatalf("close transition: %v", err)
	}

	ticket, err := repo.GetTicket(ctx, ticketID, false)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if ticket.Status != models.StatusClosed {
		t.Errorf("status = %s, want closed", ticket.Status)
	}
	if ticket.ActualAmount == nil || *ticket.ActualAmount != amount {
		t.Errorf("actual_amount = %v, want %d", ticket.ActualAmount, amount)
	}

	fields, err := repo.ListFieldHistory(ctx, ticketID)
	if err != nil {
		t.Fatalf("list field history: %v", err)
	}
	var recorded bool
	for _, entry := range fields {
		if entry.Change == models.ChangeAmountClosed && entry.NewValue == "12500" {
			recorded = true
		}
	}
	if !recorded {
		t.Errorf("field history %+v is missing the amount_recorded entry", fields)
	}
}

func setupTicketRepo(t *testing.T, ctx context.Context) (TicketRepository, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewTicketRepository(&client.PostgresClient{Pool: pool}, zap.NewNop())
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return repo, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedEmployee(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	employeeID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO employees (employee_id, name, role, is_active, pin_hash, created_at)
		VALUES ($1, 'Test Tech', 'staff', TRUE, 'unused', $2)
	`, employeeID, time.Now().UTC()); err != nil {
		t.Fatalf("insert employee: %v", err)
	}
	return employeeID
}

func seedIntakeTicket(t *testing.T, ctx context.Context, repo TicketRepository, employeeID string) string {
	t.Helper()
	ticket := &models.Ticket{
		TicketID:       uuid.NewString(),
		CustomerName:   "Pat Doe",
		DeviceModel:    "ThinkPad T14",
		ProblemSummary: "no power",
		TakenInBy:      employeeID,
	}
	if err := repo.CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket.TicketID
}
