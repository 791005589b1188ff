package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shopfloor-service/internal/client"
	"shopfloor-service/internal/config"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/util"
)

const (
	adminSessionPrefix    = "adm_session:"
	employeeSessionPrefix = "emp_session:"
	employeeIndexPrefix   = "emp_sessions:"

	tokenBytes = 32
)

var ErrSessionNotFound = errors.New("session not found or expired")

// touchScript is the single authorization choke point on the storage side:
// lookup, expiry check, sliding-window extension and last-activity update
// happen in one atomic step, so two racing requests cannot corrupt the
// expiration. The per-employee index set slides together with the session;
// otherwise a session kept alive past its first window would outlive its
// index entry and escape RevokeAllForEmployee.
const touchScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local index_prefix = ARGV[3]

if redis.call('EXISTS', key) == 0 then
    return false
end

local expires = tonumber(redis.call('HGET', key, 'expires_at') or '0')
if expires <= now_ms then
    redis.call('DEL', key)
    return false
end

redis.call('HSET', key, 'last_activity_at', now_ms, 'expires_at', now_ms + window_ms)
redis.call('PEXPIRE', key, window_ms)

if index_prefix ~= '' then
    local employee_id = redis.call('HGET', key, 'employee_id')
    if employee_id and employee_id ~= '' then
        redis.call('PEXPIRE', index_prefix .. employee_id, window_ms)
    end
end

return redis.call('HGETALL', key)
`

// SessionStore issues and validates opaque session tokens for both
// principal kinds. The kinds share mechanics but live in separate key
// namespaces, so an admin token can never validate as an employee token.
type SessionStore struct {
	client *client.RedisClient
	cfg    config.SessionConfig
}

func NewSessionStore(redisClient *client.RedisClient, cfg *config.Config) *SessionStore {
	return &SessionStore{
		client: redisClient,
		cfg:    cfg.Sessions,
	}
}

func (s *SessionStore) window(kind models.PrincipalKind) time.Duration {
	if kind == models.KindAdmin {
		return s.cfg.AdminWindow
	}
	return s.cfg.EmployeeWindow
}

func sessionKey(kind models.PrincipalKind, token string) string {
	if kind == models.KindAdmin {
		return adminSessionPrefix + token
	}
	return employeeSessionPrefix + token
}

// Issue creates a session and returns its opaque 256-bit token. For
// employee sessions the token is bound to exactly one employee.
func (s *SessionStore) Issue(ctx context.Context, kind models.PrincipalKind, employeeID string) (string, *models.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := time.Now().UTC()
	window := s.window(kind)
	session := &models.Session{
		SessionID:      uuid.New().String(),
		Kind:           kind,
		EmployeeID:     employeeID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(window),
	}

	key := sessionKey(kind, token)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"session_id", session.SessionID,
		"kind", string(kind),
		"employee_id", employeeID,
		"created_at", now.UnixMilli(),
		"last_activity_at", now.UnixMilli(),
		"expires_at", session.ExpiresAt.UnixMilli(),
	)
	pipe.PExpire(ctx, key, window)
	if kind == models.KindEmployee && employeeID != "" {
		indexKey := employeeIndexPrefix + employeeID
		pipe.SAdd(ctx, indexKey, token)
		pipe.Expire(ctx, indexKey, window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to store session",
			zap.String("kind", string(kind)),
			zap.String("session_id", session.SessionID),
			zap.Error(err))
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}

	util.Info("Session issued",
		zap.String("kind", string(kind)),
		zap.String("session_id", session.SessionID),
		zap.String("employee_id", employeeID))

	return token, session, nil
}

// ValidateAndTouch resolves a token to its session, sliding the expiration
// forward. Absent or expired tokens yield ErrSessionNotFound. The caller is
// responsible for re-checking the bound employee's active flag against
// current state.
func (s *SessionStore) ValidateAndTouch(ctx context.Context, kind models.PrincipalKind, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	indexPrefix := ""
	if kind == models.KindEmployee {
		indexPrefix = employeeIndexPrefix
	}
	result, err := s.client.Eval(ctx, touchScript,
		[]string{sessionKey(kind, token)},
		time.Now().UnixMilli(), s.window(kind).Milliseconds(), indexPrefix)
	if err != nil {
		if strings.Contains(err.Error(), "redis: nil") {
			return nil, ErrSessionNotFound
		}
		util.Error("Session validation failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, fmt.Errorf("session validation failed: %w", err)
	}

	fields, ok := result.([]interface{})
	if !ok || len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	session, err := sessionFromFields(fields)
	if err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	session.Kind = kind
	return session, nil
}

// Revoke deletes a session by token. Deleting a token that is already gone
// is not an error.
func (s *SessionStore) Revoke(ctx context.Context, kind models.PrincipalKind, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := sessionKey(kind, token)

	if kind == models.KindEmployee {
		fields, err := s.client.HGetAll(ctx, key)
		if err == nil {
			if employeeID := fields["employee_id"]; employeeID != "" {
				_ = s.client.SRem(ctx, employeeIndexPrefix+employeeID, token)
			}
		}
	}

	if err := s.client.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllForEmployee deletes every session bound to the employee. Called
// synchronously when an employee is deactivated.
func (s *SessionStore) RevokeAllForEmployee(ctx context.Context, employeeID string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexKey := employeeIndexPrefix + employeeID
	tokens, err := s.client.SMembers(ctx, indexKey)
	if err != nil {
		return fmt.Errorf("failed to list sessions for employee: %w", err)
	}

	keys := []string{indexKey}
	for _, token := range tokens {
		keys = append(keys, employeeSessionPrefix+token)
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		return fmt.Errorf("failed to revoke employee sessions: %w", err)
	}

	util.Info("All sessions revoked for employee",
		zap.String("employee_id", employeeID),
		zap.Int("session_count", len(tokens)))

	return nil
}

// SweepExpired removes index entries whose session keys have already
// expired. Session records themselves expire via TTL; this only trims the
// per-employee index sets. Idempotent and safe to run concurrently with
// live validation.
func (s *SessionStore) SweepExpired(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexKeys, err := s.client.Scan(ctx, employeeIndexPrefix+"*", 100)
	if err != nil {
		return fmt.Errorf("failed to scan session indexes: %w", err)
	}

	removed := 0
	for _, indexKey := range indexKeys {
		tokens, err := s.client.SMembers(ctx, indexKey)
		if err != nil {
			continue
		}
		for _, token := range tokens {
			exists, err := s.client.Exists(ctx, employeeSessionPrefix+token)
			if err != nil || exists {
				continue
			}
			if err := s.client.SRem(ctx, indexKey, token); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		util.Debug("Session sweep completed", zap.Int("stale_entries_removed", removed))
	}
	return nil
}

func sessionFromFields(fields []interface{}) (*models.Session, error) {
	values := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		k, kok := fields[i].(string)
		v, vok := fields[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("unexpected field type")
		}
		values[k] = v
	}

	session := &models.Session{
		SessionID:  values["session_id"],
		EmployeeID: values["employee_id"],
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("missing session_id")
	}

	for _, field := range []struct {
		name string
		dst  *time.Time
	}{
		{"created_at", &session.CreatedAt},
		{"last_activity_at", &session.LastActivityAt},
		{"expires_at", &session.ExpiresAt},
	} {
		ms, err := strconv.ParseInt(values[field.name], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", field.name, err)
		}
		*field.dst = time.UnixMilli(ms).UTC()
	}

	return session, nil
}
