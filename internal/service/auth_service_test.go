package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor-service/internal/config"
	"shopfloor-service/internal/hashing"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/ratelimit"
)

func testHasher() *hashing.Hasher {
	// Low cost parameters keep the test fast; the blob format is the same.
	return hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func mustHash(t *testing.T, hasher *hashing.Hasher, pin string) string {
	t.Helper()
	blob, err := hasher.Hash(pin)
	if err != nil {
		t.Fatalf("Hash(%q): %v", pin, err)
	}
	return blob
}

func newTestAuthService(t *testing.T) (*AuthService, *fakeSessionStore, *fakeLimiter, *fakeEmployeeRepo) {
	t.Helper()
	hasher := testHasher()
	sessions := newFakeSessionStore()
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	employees := newFakeEmployeeRepo(
		&models.Employee{
			EmployeeID: "emp-1",
			Name:       "Dana",
			Role:       models.RoleStaff,
			IsActive:   true,
			PinHash:    mustHash(t, hasher, "4321"),
		},
		&models.Employee{
			EmployeeID: "emp-2",
			Name:       "Riley",
			Role:       models.RoleStaff,
			IsActive:   false,
			PinHash:    mustHash(t, hasher, "8765"),
		},
	)
	settings := newFakeSettingsRepo(mustHash(t, hasher, "1234"))
	svc := NewAuthService(sessions, limiter, hasher, employees, settings, nil)
	return svc, sessions, limiter, employees
}

func TestAdminLogin(t *testing.T) {
	svc, _, limiter, _ := newTestAuthService(t)
	ctx := context.Background()

	token, session, err := svc.AdminLogin(ctx, "10.0.0.1:4000", "1234")
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	if token == "" || session == nil {
		t.Fatal("expected a token and session on success")
	}
	if session.Kind != models.KindAdmin {
		t.Errorf("session kind = %s, want %s", session.Kind, models.KindAdmin)
	}
	if limiter.successes != 1 {
		t.Errorf("successes recorded = %d, want 1", limiter.successes)
	}

	if _, _, err := svc.AdminLogin(ctx, "10.0.0.1:4000", "9999"); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("wrong PIN: err = %v, want ErrInvalidCredential", err)
	}
	if limiter.failures != 1 {
		t.Errorf("failures recorded = %d, want 1", limiter.failures)
	}
}

func TestRateLimitBlocksBeforeVerification(t *testing.T) {
	svc, sessions, limiter, _ := newTestAuthService(t)
	limiter.decision = ratelimit.Decision{Allowed: false, RetryAfter: 30 * time.Second}
	ctx := context.Background()

	// Even the correct PIN is refused while the gate is closed.
	_, _, err := svc.EmployeeLogin(ctx, "10.0.0.1:4000", "emp-1", "4321")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatal("expected a *RateLimitedError")
	}
	if rl.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", rl.RetryAfter)
	}
	if limiter.failures != 0 || limiter.successes != 0 {
		t.Error("denied attempt must not reach credential verification")
	}
	if sessions.issued != 0 {
		t.Error("denied attempt must not issue a session")
	}
}

func TestEmployeeLoginFailuresAreUniform(t *testing.T) {
	svc, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		employeeID string
		pin        string
	}{
		{"wrong pin", "emp-1", "0000"},
		{"unknown employee", "ghost", "4321"},
		{"deactivated employee", "emp-2", "8765"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.EmployeeLogin(ctx, "10.0.0.1:4000", tt.employeeID, tt.pin)
			if !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("err = %v, want ErrInvalidCredential", err)
			}
		})
	}
}

func TestResolvePrincipal(t *testing.T) {
	svc, _, _, _ := newTestAuthService(t)
	ctx := context.Background()

	token, _, err := svc.EmployeeLogin(ctx, "10.0.0.1:4000", "emp-1", "4321")
	if err != nil {
		t.Fatalf("EmployeeLogin: %v", err)
	}

	principal, err := svc.ResolvePrincipal(ctx, models.KindEmployee, token)
	if err != nil {
		t.Fatalf("ResolvePrincipal: %v", err)
	}
	if principal.EmployeeID != "emp-1" || principal.Role != models.RoleStaff {
		t.Errorf("principal = %+v, want emp-1 with staff role", principal)
	}

	// An employee token never resolves in the admin namespace.
	if _, err := svc.ResolvePrincipal(ctx, models.KindAdmin, token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("cross-kind resolve: err = %v, want ErrSessionInvalid", err)
	}

	if _, err := svc.ResolvePrincipal(ctx, models.KindEmployee, ""); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("empty token: err = %v, want ErrSessionInvalid", err)
	}
	if _, err := svc.ResolvePrincipal(ctx, models.KindEmployee, "bogus"); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("unknown token: err = %v, want ErrSessionInvalid", err)
	}
}

func TestResolvePrincipalRejectsDeactivatedEmployee(t *testing.T) {
	svc, sessions, _, employees := newTestAuthService(t)
	ctx := context.Background()

	token, _, err := svc.EmployeeLogin(ctx, "10.0.0.1:4000", "emp-1", "4321")
	if err != nil {
		t.Fatalf("EmployeeLogin: %v", err)
	}

	// Deactivation after issue must invalidate the live token.
	if err := employees.SetActive(ctx, "emp-1", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if _, err := svc.ResolvePrincipal(ctx, models.KindEmployee, token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("err = %v, want ErrSessionInvalid", err)
	}
	if len(sessions.revoked) != 1 {
		t.Errorf("revoked sessions = %d, want 1", len(sessions.revoked))
	}
}

func TestRevokeAllForEmployee(t *testing.T) {
	svc, sessions, _, _ := newTestAuthService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.EmployeeLogin(ctx, "10.0.0.1:4000", "emp-1", "4321"); err != nil {
			t.Fatalf("EmployeeLogin: %v", err)
		}
	}

	if err := svc.RevokeAllForEmployee(ctx, "emp-1"); err != nil {
		t.Fatalf("RevokeAllForEmployee: %v", err)
	}
	if len(sessions.revoked) != 3 {
		t.Errorf("revoked sessions = %d, want 3", len(sessions.revoked))
	}
	if len(sessions.sessions) != 0 {
		t.Errorf("live sessions = %d, want 0", len(sessions.sessions))
	}
}

func TestLogout(t *testing.T) {
	svc, sessions, _, _ := newTestAuthService(t)
	ctx := context.Background()

	token, _, err := svc.AdminLogin(ctx, "10.0.0.1:4000", "1234")
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	if err := svc.Logout(ctx, models.KindAdmin, token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.ResolvePrincipal(ctx, models.KindAdmin, token); !errors.Is(err, ErrSessionInvalid) {
		t.Errorf("revoked token resolved: err = %v, want ErrSessionInvalid", err)
	}

	// Logging out without a token is a no-op, not an error.
	if err := svc.Logout(ctx, models.KindAdmin, ""); err != nil {
		t.Errorf("empty token logout: %v", err)
	}
	if len(sessions.revoked) != 1 {
		t.Errorf("revoked sessions = %d, want 1", len(sessions.revoked))
	}
}
