package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

// EmployeeRepository is the durable store for employees. The PIN hash is
// written at creation and on PIN change only; it is never returned to HTTP
// callers.
type EmployeeRepository interface {
	CreateEmployee(ctx context.Context, employee *models.Employee) error
	GetEmployee(ctx context.Context, employeeID string) (*models.Employee, error)
	ListEmployees(ctx context.Context, includeInactive bool) ([]*models.Employee, error)
	UpdateEmployee(ctx context.Context, employeeID, name string, role models.Role) error
	SetActive(ctx context.Context, employeeID string, active bool) error
	UpdatePinHash(ctx context.Context, employeeID, pinHash string) error
	IsActive(ctx context.Context, employeeID string) (bool, error)
	HealthCheck(ctx context.Context) error
}

type employeeRepository struct {
	client *client.PostgresClient
}

func NewEmployeeRepository(pgClient *client.PostgresClient, logger *zap.Logger) EmployeeRepository {
	return &employeeRepository{client: pgClient}
}

const employeeColumns = `employee_id, name, role, is_active, pin_hash, created_at, updated_at`

func (r *employeeRepository) CreateEmployee(ctx context.Context, employee *models.Employee) error {
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}

	_, err := r.client.Pool.Exec(ctx, `
		INSERT INTO employees (employee_id, name, role, is_active, pin_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		employee.EmployeeID, employee.Name, employee.Role, employee.IsActive,
		employee.PinHash, employee.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		util.Error("Failed to create employee",
			zap.String("employee_id", employee.EmployeeID),
			zap.Error(err))
		return fmt.Errorf("failed to create employee: %w", err)
	}

	util.Info("Employee created",
		zap.String("employee_id", employee.EmployeeID),
		zap.String("role", string(employee.Role)))
	return nil
}

func (r *employeeRepository) GetEmployee(ctx context.Context, employeeID string) (*models.Employee, error) {
	employee := &models.Employee{}
	row := r.client.Pool.QueryRow(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE employee_id = $1`, employeeID)
	if err := row.Scan(&employee.EmployeeID, &employee.Name, &employee.Role,
		&employee.IsActive, &employee.PinHash, &employee.CreatedAt, &employee.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return employee, nil
}

func (r *employeeRepository) ListEmployees(ctx context.Context, includeInactive bool) ([]*models.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees`
	if !includeInactive {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name`

	rows, err := r.client.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []*models.Employee
	for rows.Next() {
		employee := &models.Employee{}
		if err := rows.Scan(&employee.EmployeeID, &employee.Name, &employee.Role,
			&employee.IsActive, &employee.PinHash, &employee.CreatedAt, &employee.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, employee)
	}
	return employees, rows.Err()
}

func (r *employeeRepository) UpdateEmployee(ctx context.Context, employeeID, name string, role models.Role) error {
	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE employees SET name = $2, role = $3, updated_at = $4
		WHERE employee_id = $1`,
		employeeID, name, role, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *employeeRepository) SetActive(ctx context.Context, employeeID string, active bool) error {
	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE employees SET is_active = $2, updated_at = $3
		WHERE employee_id = $1`,
		employeeID, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update employee active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	util.Info("Employee active flag updated",
		zap.String("employee_id", employeeID),
		zap.Bool("is_active", active))
	return nil
}

func (r *employeeRepository) UpdatePinHash(ctx context.Context, employeeID, pinHash string) error {
	tag, err := r.client.Pool.Exec(ctx, `
		UPDATE employees SET pin_hash = $2, updated_at = $3
		WHERE employee_id = $1`,
		employeeID, pinHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update pin hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsActive reads the current flag, bypassing any cache. Session validation
// depends on this being the live value.
func (r *employeeRepository) IsActive(ctx context.Context, employeeID string) (bool, error) {
	var active bool
	row := r.client.Pool.QueryRow(ctx,
		`SELECT is_active FROM employees WHERE employee_id = $1`, employeeID)
	if err := row.Scan(&active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("failed to read employee active flag: %w", err)
	}
	return active, nil
}

func (r *employeeRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}
