package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shopfloor-service/internal/config"
	"shopfloor-service/internal/models"
	"shopfloor-service/internal/service"
	"shopfloor-service/internal/util"
)

// TicketHandler exposes the ticket lifecycle. Every route here sits behind
// RequireSession; the service layer does permission and ownership checks.
type TicketHandler struct {
	ticketService *service.TicketService
	uploads       config.UploadConfig
}

func NewTicketHandler(ticketService *service.TicketService, uploads config.UploadConfig) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		uploads:       uploads,
	}
}

func (h *TicketHandler) RegisterRoutes(router chi.Router) {
	router.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.CreateTicket)
		r.Get("/", h.ListTickets)
		r.Get("/search", h.SearchTickets)

		r.Route("/{ticketID}", func(r chi.Router) {
			r.Get("/", h.GetTicket)
			r.Delete("/", h.DeleteTicket)
			r.Get("/contact", h.GetContact)
			r.Post("/status", h.ChangeStatus)
			r.Post("/close", h.CloseTicket)
			r.Post("/rush", h.SetRush)
			r.Post("/reassign", h.Reassign)
			r.Post("/restore", h.Restore)
			r.Get("/history", h.StatusHistory)
			r.Get("/field-history", h.FieldHistory)
			r.Post("/notes", h.AddNote)
			r.Get("/notes", h.ListNotes)
			r.Post("/photos", h.UploadPhoto)
			r.Get("/photos", h.ListPhotos)
			r.Get("/photos/{photoID}", h.GetPhoto)
			r.Delete("/photos/{photoID}", h.DeletePhoto)
		})
	})
}

func (h *TicketHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	ticket, err := h.ticketService.CreateTicket(r.Context(), PrincipalFrom(r.Context()), &req)
	if err != nil {
		respondWithServiceError(w, err, "Failed to create ticket")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(ticket, "Ticket created"))
}

func (h *TicketHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	var status *models.TicketStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.TicketStatus(raw)
		if !s.Valid() {
			respondWithServiceError(w, fmt.Errorf("%w: unknown status %q", service.ErrValidation, raw), "Invalid status filter")
			return
		}
		status = &s
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	tickets, err := h.ticketService.ListTickets(r.Context(), PrincipalFrom(r.Context()), status, includeDeleted)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list tickets")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(tickets, ""))
}

func (h *TicketHandler) SearchTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondWithServiceError(w, fmt.Errorf("%w: q is required", service.ErrValidation), "Missing query")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tickets, err := h.ticketService.Search(r.Context(), PrincipalFrom(r.Context()), query, limit)
	if err != nil {
		respondWithServiceError(w, err, "Search failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(tickets, ""))
}

func (h *TicketHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ticketService.GetTicket(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get ticket")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(ticket, ""))
}

func (h *TicketHandler) GetContact(w http.ResponseWriter, r *http.Request) {
	contact, err := h.ticketService.GetCustomerContact(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get contact info")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"customer_phone": contact}, ""))
}

type changeStatusRequest struct {
	To models.TicketStatus `json:"to"`
}

func (h *TicketHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req changeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	ticket, err := h.ticketService.ChangeStatus(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"), req.To)
	if err != nil {
		respondWithServiceError(w, err, "Failed to change status")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(ticket, "Status changed"))
}

type closeTicketRequest struct {
	ActualAmount *int64 `json:"actual_amount"`
}

func (h *TicketHandler) CloseTicket(w http.ResponseWriter, r *http.Request) {
	var req closeTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	ticket, err := h.ticketService.CloseTicket(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"), req.ActualAmount)
	if err != nil {
		respondWithServiceError(w, err, "Failed to close ticket")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(ticket, "Ticket closed"))
}

type rushRequest struct {
	IsRush bool `json:"is_rush"`
}

func (h *TicketHandler) SetRush(w http.ResponseWriter, r *http.Request) {
	var req rushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.ticketService.SetRush(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"), req.IsRush); err != nil {
		respondWithServiceError(w, err, "Failed to update rush flag")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Rush flag updated"))
}

type reassignRequest struct {
	WorkedBy *string `json:"worked_by"`
}

func (h *TicketHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	if err := h.ticketService.Reassign(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"), req.WorkedBy); err != nil {
		respondWithServiceError(w, err, "Failed to reassign ticket")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Ticket reassigned"))
}

// DeleteTicket soft deletes by default. hard=true removes the row, which
// only succeeds with purge_history=true while audit rows exist.
func (h *TicketHandler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")
	principal := PrincipalFrom(r.Context())

	if r.URL.Query().Get("hard") == "true" {
		purge := r.URL.Query().Get("purge_history") == "true"
		if err := h.ticketService.HardDelete(r.Context(), principal, ticketID, purge); err != nil {
			respondWithServiceError(w, err, "Failed to delete ticket")
			return
		}
		respondWithJSON(w, http.StatusOK, successResponse(nil, "Ticket permanently deleted"))
		return
	}

	if err := h.ticketService.SoftDelete(r.Context(), principal, ticketID); err != nil {
		respondWithServiceError(w, err, "Failed to delete ticket")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Ticket deleted"))
}

func (h *TicketHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if err := h.ticketService.Restore(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID")); err != nil {
		respondWithServiceError(w, err, "Failed to restore ticket")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Ticket restored"))
}

func (h *TicketHandler) StatusHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ticketService.StatusHistory(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get history")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(entries, ""))
}

func (h *TicketHandler) FieldHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ticketService.FieldHistory(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get history")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(entries, ""))
}

type addNoteRequest struct {
	Body string `json:"body"`
}

func (h *TicketHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid request body"))
		return
	}

	note, err := h.ticketService.AddNote(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"), req.Body)
	if err != nil {
		respondWithServiceError(w, err, "Failed to add note")
		return
	}
	respondWithJSON(w, http.StatusCreated, successResponse(note, "Note added"))
}

func (h *TicketHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.ticketService.ListNotes(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to list notes")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(notes, ""))
}

// UploadPhoto streams the multipart file to disk, then records the metadata.
// The file is removed again if the metadata write is rejected.
func (h *TicketHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	if err := r.ParseMultipartForm(h.uploads.MaxPhotoBytes); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Invalid multipart body"))
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse(err, "Missing photo field"))
		return
	}
	defer file.Close()

	dir := filepath.Join(h.uploads.PhotoDir, ticketID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		respondWithServiceError(w, err, "Failed to store photo")
		return
	}

	storagePath := filepath.Join(dir, uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(storagePath)
	if err != nil {
		respondWithServiceError(w, err, "Failed to store photo")
		return
	}

	size, err := io.Copy(out, io.LimitReader(file, h.uploads.MaxPhotoBytes+1))
	out.Close()
	if err != nil {
		_ = os.Remove(storagePath)
		respondWithServiceError(w, err, "Failed to store photo")
		return
	}

	contentType := header.Header.Get("Content-Type")
	photo, err := h.ticketService.AddPhoto(r.Context(), PrincipalFrom(r.Context()), ticketID,
		header.Filename, contentType, size, storagePath)
	if err != nil {
		_ = os.Remove(storagePath)
		respondWithServiceError(w, err, "Failed to record photo")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(photo, "Photo uploaded"))
}

func (h *TicketHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.ticketService.ListPhotos(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to list photos")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(photos, ""))
}

func (h *TicketHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.ticketService.GetPhoto(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "ticketID"), chi.URLParam(r, "photoID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to get photo")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(photo, ""))
}

func (h *TicketHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.ticketService.DeletePhoto(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "ticketID"), chi.URLParam(r, "photoID"))
	if err != nil {
		respondWithServiceError(w, err, "Failed to delete photo")
		return
	}

	if photo.StoragePath != "" {
		if err := os.Remove(photo.StoragePath); err != nil && !os.IsNotExist(err) {
			util.Warn("Failed to remove photo file", util.ErrorField(err))
		}
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Photo deleted"))
}
