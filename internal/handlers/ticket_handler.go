package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eventpay/backend/internal/ledger"
	"github.com/eventpay/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

type TicketHandler struct {
	service   *services.TicketService
	validator *services.ValidationHelper
}

func NewTicketHandler(service *services.TicketService) *TicketHandler {
	return &TicketHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateTicket issues a QR entry ticket for a joined paid event
// @Summary Generate event ticket
// @Description Generate a QR ticket backed by the caller's active event charge
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {object} object{ticketCode=string,ticketImage=string}
// @Failure 404 {object} services.ErrorResponse "Event not joined"
// @Router /events/{eventId}/ticket [post]
func (h *TicketHandler) GenerateTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, ok := r.Context().Value("accountID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	eventID := chi.URLParam(r, "eventId")

	ticketCode, ticketImage, err := h.service.GenerateTicket(r.Context(), userID, accountID, eventID)
	if err != nil {
		if errors.Is(err, ledger.ErrNoChargeFound) {
			services.SendErrorResponse(w, "No ticket available: event not joined", http.StatusNotFound, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"ticketCode":  ticketCode,
		"ticketImage": ticketImage,
	})
}

// ValidateTicket validates and consumes a scanned ticket
// @Summary Validate event ticket
// @Description Validate a scanned QR ticket; tickets are single use
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{ticketCode=string} true "Ticket validation request"
// @Success 200 {object} object{userId=string,eventId=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /tickets/validate [post]
func (h *TicketHandler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketCode string `json:"ticketCode" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.ValidateTicket(r.Context(), req.TicketCode)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    result,
	})
}
