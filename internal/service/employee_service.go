package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/permission"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/util"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4,8}$`)

// CreateEmployeeRequest is the admin payload for adding a staff member.
type CreateEmployeeRequest struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	Pin  string      `json:"pin"`
}

// EmployeeService manages the roster. Deactivation revokes every live
// session of the employee before returning.
type EmployeeService struct {
	employees postgres.EmployeeRepository
	hasher    *hashing.Hasher
	auth      *AuthService
}

func NewEmployeeService(employees postgres.EmployeeRepository, hasher *hashing.Hasher, auth *AuthService) *EmployeeService {
	return &EmployeeService{
		employees: employees,
		hasher:    hasher,
		auth:      auth,
	}
}

func (s *EmployeeService) CreateEmployee(ctx context.Context, p *models.Principal, req *CreateEmployeeRequest) (*models.Employee, error) {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return nil, err
	}

	req.Name = util.SanitizeAuditField(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, req.Role)
	}
	if !pinPattern.MatchString(req.Pin) {
		return nil, fmt.Errorf("%w: pin must be 4 to 8 digits", ErrValidation)
	}

	pinHash, err := s.hasher.Hash(req.Pin)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}

	employee := &models.Employee{
		EmployeeID: uuid.NewString(),
		Name:       req.Name,
		Role:       req.Role,
		IsActive:   true,
		PinHash:    pinHash,
	}
	if err := s.employees.CreateEmployee(ctx, employee); err != nil {
		return nil, mapRepoError(err)
	}
	return employee, nil
}

func (s *EmployeeService) GetEmployee(ctx context.Context, p *models.Principal, employeeID string) (*models.Employee, error) {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return nil, err
	}
	employee, err := s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return employee, nil
}

func (s *EmployeeService) ListEmployees(ctx context.Context, p *models.Principal, includeInactive bool) ([]*models.Employee, error) {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return nil, err
	}
	employees, err := s.employees.ListEmployees(ctx, includeInactive)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return employees, nil
}

func (s *EmployeeService) UpdateEmployee(ctx context.Context, p *models.Principal, employeeID, name string, role models.Role) error {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return err
	}

	name = util.SanitizeAuditField(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	if err := s.employees.UpdateEmployee(ctx, employeeID, name, role); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// Deactivate flips is_active off and revokes every session the employee
// holds. The ordering matters: once this returns, no token of theirs
// validates again.
func (s *EmployeeService) Deactivate(ctx context.Context, p *models.Principal, employeeID string) error {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return err
	}

	if err := s.employees.SetActive(ctx, employeeID, false); err != nil {
		return mapRepoError(err)
	}

	if err := s.auth.RevokeAllForEmployee(ctx, employeeID); err != nil {
		// The active flag is already off, so validation rechecks will
		// reject these sessions anyway. Log and surface it.
		util.Error("Failed to revoke sessions on deactivation",
			zap.String("employee_id", employeeID),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *EmployeeService) Reactivate(ctx context.Context, p *models.Principal, employeeID string) error {
	if err := requirePermission(p, permission.ManageEmployees); err != nil {
		return err
	}
	if err := s.employees.SetActive(ctx, employeeID, true); err != nil {
		return mapRepoError(err)
	}
	return nil
}

// ChangePin sets a new PIN. Admins change anyone's; employees only their own.
func (s *EmployeeService) ChangePin(ctx context.Context, p *models.Principal, employeeID, newPin string) error {
	if p == nil {
		return ErrSessionInvalid
	}
	if !p.IsAdmin() && p.EmployeeID != employeeID {
		return ErrInsufficientPermission
	}
	if !pinPattern.MatchString(newPin) {
		return fmt.Errorf("%w: pin must be 4 to 8 digits", ErrValidation)
	}

	pinHash, err := s.hasher.Hash(newPin)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}
	if err := s.employees.UpdatePinHash(ctx, employeeID, pinHash); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
