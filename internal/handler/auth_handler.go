package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shopfloor-service/internal/models"
	"shopfloor-service/internal/service"
	"shopfloor-service/internal/util"
)

// AuthHandler exposes login and logout. The source key for rate limiting is
// the client IP as resolved by middleware.RealIP.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/admin/login", h.AdminLogin)
		r.Post("/employee/login", h.EmployeeLogin)
		r.Post("/admin/logout", h.AdminLogout)
		r.Post("/employee/logout", h.EmployeeLogout)
	})
}

type adminLoginRequest struct {
	Pin string `json:"pin"`
}

type employeeLoginRequest struct {
	EmployeeID string `json:"employee_id"`
	Pin        string `json:"pin"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func sourceKey(r *http.Request) string {
	// RemoteAddr has already been rewritten by middleware.RealIP.
	return r.RemoteAddr
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	token, session, err := h.authService.AdminLogin(r.Context(), sourceKey(r), req.Pin)
	if err != nil {
		respondWithServiceError(w, err, "Login failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
		Token:     token,
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt,
	}, "Admin session issued"))
}

func (h *AuthHandler) EmployeeLogin(w http.ResponseWriter, r *http.Request) {
	var req employeeLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	token, session, err := h.authService.EmployeeLogin(r.Context(), sourceKey(r), req.EmployeeID, req.Pin)
	if err != nil {
		respondWithServiceError(w, err, "Login failed")
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
		Token:     token,
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt,
	}, "Employee session issued"))
}

func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.KindAdmin, r.Header.Get(headerAdminToken))
}

func (h *AuthHandler) EmployeeLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, models.KindEmployee, r.Header.Get(headerEmployeeToken))
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request, kind models.PrincipalKind, token string) {
	if err := h.authService.Logout(r.Context(), kind, token); err != nil {
		util.Error("Logout failed", util.ErrorField(err))
		respondWithServiceError(w, err, "Logout failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Logged out"))
}
