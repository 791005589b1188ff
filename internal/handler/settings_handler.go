package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopfloor-service/internal/service"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
}

func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) RegisterRoutes(router chi.Router) {
	router.Route("/settings", func(r chi.Router) {
		r.Get("/", h.GetSettings)
		r.Put("/", h.UpdateSettings)
		r.Post("/admin-pin", h.ChangeAdminPin)
	})

	router.Route("/locations", func(r chi.Router) {
		r.Post("/", h.CreateLocation)
		r.Get("/", h.ListLocations)
		r.Delete("/{locationID}", h.DeleteLocation)
	})
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get settings")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(settings, ""))
}

type updateSettingsRequest struct {
	ShopName     string `json:"shop_name"`
	Currency     string `json:"currency"`
	LabelPrinter string `json:"label_printer"`
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.settingsService.UpdateSettings(r.Context(), PrincipalFrom(r.Context()),
		req.ShopName, req.Currency, req.LabelPrinter); err != nil {
		respondWithServiceError(w, err, "Failed to update settings")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Settings updated"))
}

type adminPinRequest struct {
	Pin string `json:"pin"`
}

func (h *SettingsHandler) ChangeAdminPin(w http.ResponseWriter, r *http.Request) {
	var req adminPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.settingsService.ChangeAdminPin(r.Context(), PrincipalFrom(r.Context()), req.Pin); err != nil {
		respondWithServiceError(w, err, "Failed to change admin pin")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Admin PIN updated"))
}

type createLocationRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

func (h *SettingsHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	location, err := h.settingsService.CreateLocation(r.Context(), PrincipalFrom(r.Context()), req.Name, req.Notes)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create location")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(location, "Location created"))
}

func (h *SettingsHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.settingsService.ListLocations(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		respondWithServiceError(w, err, "Failed to list locations")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(locations, ""))
}

func (h *SettingsHandler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.settingsService.DeleteLocation(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "locationID")); err != nil {
		respondWithServiceError(w, err, "Failed to delete location")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Location deleted"))
}
