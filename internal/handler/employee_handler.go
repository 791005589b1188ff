package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopfloor-service/internal/models"
	"shopfloor-service/internal/service"
)

type EmployeeHandler struct {
	employeeService *service.EmployeeService
}

func NewEmployeeHandler(employeeService *service.EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{employeeService: employeeService}
}

func (h *EmployeeHandler) RegisterRoutes(router chi.Router) {
	router.Route("/employees", func(r chi.Router) {
		r.Post("/", h.CreateEmployee)
		r.Get("/", h.ListEmployees)
		r.Get("/{employeeID}", h.GetEmployee)
		r.Put("/{employeeID}", h.UpdateEmployee)
		r.Post("/{employeeID}/deactivate", h.Deactivate)
		r.Post("/{employeeID}/reactivate", h.Reactivate)
		r.Post("/{employeeID}/pin", h.ChangePin)
	})
}

func (h *EmployeeHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req service.CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	employee, err := h.employeeService.CreateEmployee(r.Context(), PrincipalFrom(r.Context()), &req)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create employee")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(employee, "Employee created"))
}

func (h *EmployeeHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	employees, err := h.employeeService.ListEmployees(r.Context(), PrincipalFrom(r.Context()), includeInactive)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list employees")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(employees, ""))
}

func (h *EmployeeHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := h.employeeService.GetEmployee(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "employeeID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(employee, ""))
}

type updateEmployeeRequest struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
}

func (h *EmployeeHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req updateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.employeeService.UpdateEmployee(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "employeeID"), req.Name, req.Role); err != nil {
		respondWithServiceError(w, err, "Failed to update employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Employee updated"))
}

func (h *EmployeeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.employeeService.Deactivate(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "employeeID")); err != nil {
		respondWithServiceError(w, err, "Failed to deactivate employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Employee deactivated and sessions revoked"))
}

func (h *EmployeeHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.employeeService.Reactivate(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "employeeID")); err != nil {
		respondWithServiceError(w, err, "Failed to reactivate employee")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Employee reactivated"))
}

type changePinRequest struct {
	Pin string `json:"pin"`
}

func (h *EmployeeHandler) ChangePin(w http.ResponseWriter, r *http.Request) {
	var req changePinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.employeeService.ChangePin(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "employeeID"), req.Pin); err != nil {
		respondWithServiceError(w, err, "Failed to change pin")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "PIN updated"))
}
