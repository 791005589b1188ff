package handler

import (
	"context"
	"errors"
	"net/http"

	"shopfloor-service/internal/models"
	"shopfloor-service/internal/service"
)

type contextKey string

const principalKey contextKey = "principal"

// Token headers. A request carries exactly one; when both are present the
// admin token wins.
const (
	headerAdminToken    = "X-Admin-Token"
	headerEmployeeToken = "X-Employee-Token"
)

// RequireSession resolves the session token into a principal and rejects
// the request when neither header validates. Resolution slides the session
// window as a side effect.
func RequireSession(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			kind := models.KindAdmin
			token := r.Header.Get(headerAdminToken)
			if token == "" {
				kind = models.KindEmployee
				token = r.Header.Get(headerEmployeeToken)
			}

			principal, err := auth.ResolvePrincipal(r.Context(), kind, token)
			if err != nil {
				if errors.Is(err, service.ErrSessionInvalid) {
					respondWithServiceError(w, service.ErrSessionInvalid, "Authentication required")
					return
				}
				respondWithServiceError(w, err, "Session validation failed")
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom returns the principal placed by RequireSession, or nil on
// routes that skipped it.
func PrincipalFrom(ctx context.Context) *models.Principal {
	principal, _ := ctx.Value(principalKey).(*models.Principal)
	return principal
}
