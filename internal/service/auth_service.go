package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"shopfloor-service/internal/audit"
	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/ratelimit"
	"shopfloor-service/internal/repository/postgres"
	"shopfloor-service/internal/repository/redis"
	"shopfloor-service/internal/util"
)

// SessionStore is the session backend contract. Satisfied by the Redis
// implementation; tests supply an in-memory one.
type SessionStore interface {
	Issue(ctx context.Context, kind models.PrincipalKind, employeeID string) (string, *models.Session, error)
	ValidateAndTouch(ctx context.Context, kind models.PrincipalKind, token string) (*models.Session, error)
	Revoke(ctx context.Context, kind models.PrincipalKind, token string) error
	RevokeAllForEmployee(ctx context.Context, employeeID string) error
	SweepExpired(ctx context.Context) error
}

// AuthService verifies PINs, issues sessions, and resolves tokens back to
// principals. Every verification attempt passes through the rate limiter
// before any credential is compared.
type AuthService struct {
	sessions  SessionStore
	limiter   ratelimit.Limiter
	hasher    *hashing.Hasher
	employees postgres.EmployeeRepository
	settings  postgres.SettingsRepository
	auditor   *audit.Publisher
}

func NewAuthService(
	sessions SessionStore,
	limiter ratelimit.Limiter,
	hasher *hashing.Hasher,
	employees postgres.EmployeeRepository,
	settings postgres.SettingsRepository,
	auditor *audit.Publisher,
) *AuthService {
	return &AuthService{
		sessions:  sessions,
		limiter:   limiter,
		hasher:    hasher,
		employees: employees,
		settings:  settings,
		auditor:   auditor,
	}
}

// gate consults the rate limiter before any hash comparison. A denied
// attempt never reaches credential verification.
func (s *AuthService) gate(ctx context.Context, sourceKey string, kind models.PrincipalKind) error {
	decision, err := s.limiter.Check(ctx, sourceKey)
	if err != nil {
		return fmt.Errorf("rate limit check failed: %w", err)
	}
	if !decision.Allowed {
		s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
			EventType: models.EventRateLimited,
			SourceKey: sourceKey,
			Kind:      string(kind),
		})
		return &RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, sourceKey string, kind models.PrincipalKind, employeeID string) {
	if err := s.limiter.RecordFailure(ctx, sourceKey); err != nil {
		util.Error("Failed to record verification failure", zap.Error(err))
	}
	s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
		EventType:  models.EventPinFailed,
		SourceKey:  sourceKey,
		Kind:       string(kind),
		EmployeeID: employeeID,
	})
}

func (s *AuthService) recordSuccess(ctx context.Context, sourceKey string, kind models.PrincipalKind, employeeID, sessionID string) {
	if err := s.limiter.RecordSuccess(ctx, sourceKey); err != nil {
		util.Error("Failed to reset verification failures", zap.Error(err))
	}
	s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
		EventType:  models.EventPinVerified,
		SourceKey:  sourceKey,
		Kind:       string(kind),
		EmployeeID: employeeID,
		SessionID:  sessionID,
	})
}

// AdminLogin verifies the shop admin PIN and issues an admin session.
func (s *AuthService) AdminLogin(ctx context.Context, sourceKey, pin string) (string, *models.Session, error) {
	if err := s.gate(ctx, sourceKey, models.KindAdmin); err != nil {
		return "", nil, err
	}

	pinHash, err := s.settings.GetAdminPinHash(ctx)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.recordFailure(ctx, sourceKey, models.KindAdmin, "")
			return "", nil, ErrInvalidCredential
		}
		return "", nil, fmt.Errorf("failed to load admin pin: %w", err)
	}

	if !s.hasher.Verify(pin, pinHash) {
		s.recordFailure(ctx, sourceKey, models.KindAdmin, "")
		return "", nil, ErrInvalidCredential
	}

	token, session, err := s.sessions.Issue(ctx, models.KindAdmin, "")
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue admin session: %w", err)
	}

	s.recordSuccess(ctx, sourceKey, models.KindAdmin, "", session.SessionID)
	util.Info("Admin session issued", zap.String("session_id", session.SessionID))
	return token, session, nil
}

// EmployeeLogin verifies an employee PIN. Inactive or unknown employees fail
// with the same error as a wrong PIN; the response never reveals which.
func (s *AuthService) EmployeeLogin(ctx context.Context, sourceKey, employeeID, pin string) (string, *models.Session, error) {
	if err := s.gate(ctx, sourceKey, models.KindEmployee); err != nil {
		return "", nil, err
	}

	employee, err := s.employees.GetEmployee(ctx, employeeID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.recordFailure(ctx, sourceKey, models.KindEmployee, employeeID)
			return "", nil, ErrInvalidCredential
		}
		return "", nil, fmt.Errorf("failed to load employee: %w", err)
	}

	if !employee.IsActive || !s.hasher.Verify(pin, employee.PinHash) {
		s.recordFailure(ctx, sourceKey, models.KindEmployee, employeeID)
		return "", nil, ErrInvalidCredential
	}

	token, session, err := s.sessions.Issue(ctx, models.KindEmployee, employeeID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue employee session: %w", err)
	}

	s.recordSuccess(ctx, sourceKey, models.KindEmployee, employeeID, session.SessionID)
	util.Info("Employee session issued",
		zap.String("employee_id", employeeID),
		zap.String("session_id", session.SessionID))
	return token, session, nil
}

// ResolvePrincipal validates a token, slides its expiry, and returns the
// acting principal. Employee sessions recheck the live is_active flag, so a
// deactivation takes effect on the next request even for issued tokens.
func (s *AuthService) ResolvePrincipal(ctx context.Context, kind models.PrincipalKind, token string) (*models.Principal, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}

	session, err := s.sessions.ValidateAndTouch(ctx, kind, token)
	if err != nil {
		if errors.Is(err, redis.ErrSessionNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("session validation failed: %w", err)
	}

	if kind == models.KindAdmin {
		return &models.Principal{
			Kind: models.KindAdmin,
			Name: "admin",
			Role: models.RoleAdmin,
		}, nil
	}

	employee, err := s.employees.GetEmployee(ctx, session.EmployeeID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("failed to load employee for session: %w", err)
	}
	if !employee.IsActive {
		// Deactivated since issue; drop the session now.
		if revokeErr := s.sessions.Revoke(ctx, kind, token); revokeErr != nil {
			util.Error("Failed to revoke session of inactive employee", zap.Error(revokeErr))
		}
		return nil, ErrSessionInvalid
	}

	return &models.Principal{
		Kind:       models.KindEmployee,
		EmployeeID: employee.EmployeeID,
		Name:       employee.Name,
		Role:       employee.Role,
	}, nil
}

// Logout revokes one session token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, kind models.PrincipalKind, token string) error {
	if token == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, kind, token)
}

// RevokeAllForEmployee drops every live session of one employee. Called on
// deactivation.
func (s *AuthService) RevokeAllForEmployee(ctx context.Context, employeeID string) error {
	if err := s.sessions.RevokeAllForEmployee(ctx, employeeID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	s.auditor.RecordSecurityEvent(ctx, &models.SecurityEvent{
		EventType:  models.EventSessionRevoked,
		Kind:       string(models.KindEmployee),
		EmployeeID: employeeID,
	})
	return nil
}

// SweepExpiredSessions clears stale session index entries.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) error {
	return s.sessions.SweepExpired(ctx)
}
