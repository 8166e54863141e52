package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/eventpay/backend/internal/ledger"
	"github.com/eventpay/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EventService owns the events table and decides join eligibility. Paid joins
// are charged through the ledger engine; the active event-charge transaction
// doubles as the membership record, which is what makes joins idempotent.
type EventService struct {
	db        *sql.DB
	engine    *ledger.Engine
	validator *ValidationHelper
}

func NewEventService(db *sql.DB, engine *ledger.Engine) *EventService {
	return &EventService{
		db:        db,
		engine:    engine,
		validator: NewValidationHelper(),
	}
}

// CreateEventRequest is the event creation payload
// @Description Event creation request, cost in cents
type CreateEventRequest struct {
	Title           string     `json:"title" validate:"required,min=3,max=120"`
	Description     string     `json:"description" validate:"max=2000"`
	Cost            int64      `json:"cost" validate:"gte=0"` // cents, 0 = free
	MaxParticipants int        `json:"max_participants" validate:"gte=0"`
	EventDate       *time.Time `json:"event_date,omitempty"`
}

type joinResponse struct {
	Message     string              `json:"message"`
	Event       models.Event        `json:"event"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

func userIDFrom(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	return userID, ok && userID != ""
}

// CreateEvent creates a draft event owned by the caller
// @Summary Create an event
// @Tags events
// @Accept json
// @Produce json
// @Param request body CreateEventRequest true "Event data"
// @Success 201 {object} models.Event
// @Router /events [post]
func (s *EventService) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateEventRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	event := models.Event{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Description:     req.Description,
		Cost:            req.Cost,
		MaxParticipants: req.MaxParticipants,
		Status:          models.EventDraft,
		CreatorID:       userID,
		EventDate:       req.EventDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO events (id, title, description, cost, max_participants, current_participants, status, creator_id, event_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10)`,
		event.ID, event.Title, event.Description, event.Cost, event.MaxParticipants,
		event.Status, event.CreatorID, event.EventDate, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		log.Printf("[EVENT] Failed to create event: %v", err)
		SendErrorResponse(w, "Failed to create event", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[EVENT] Created event %s (%s) by user %s", event.ID, event.Title, userID)
	SendJSON(w, http.StatusCreated, event)
}

// ActivateEvent opens a draft event for joining
// @Summary Activate an event
// @Tags events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} models.Event
// @Router /events/{eventId}/activate [put]
func (s *EventService) ActivateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	eventID := chi.URLParam(r, "eventId")

	result, err := s.db.ExecContext(r.Context(), `
		UPDATE events SET status = $1, updated_at = $2
		WHERE id = $3 AND creator_id = $4 AND status = $5`,
		models.EventActive, time.Now(), eventID, userID, models.EventDraft)
	if err != nil {
		log.Printf("[EVENT] Failed to activate event %s: %v", eventID, err)
		SendErrorResponse(w, "Failed to activate event", http.StatusInternalServerError, nil)
		return
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Event not found, not yours, or not a draft", http.StatusConflict, nil)
		return
	}

	event, err := s.getEvent(r, eventID)
	if err != nil {
		SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		return
	}
	SendJSON(w, http.StatusOK, event)
}

// ListEvents lists events, optionally filtered by status
// @Summary List events
// @Tags events
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.Event
// @Router /events [get]
func (s *EventService) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT id, title, description, cost, max_participants, current_participants, status, creator_id, event_date, created_at, updated_at
		FROM events`
	args := []any{}
	if status := r.URL.Query().Get("status"); status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[EVENT] Failed to list events: %v", err)
		SendErrorResponse(w, "Failed to list events", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.Cost, &e.MaxParticipants,
			&e.CurrentParticipants, &e.Status, &e.CreatorID, &e.EventDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			SendErrorResponse(w, "Failed to list events", http.StatusInternalServerError, nil)
			return
		}
		events = append(events, e)
	}

	SendJSON(w, http.StatusOK, events)
}

// GetEvent returns one event
// @Summary Get an event
// @Tags events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} ErrorResponse
// @Router /events/{eventId} [get]
func (s *EventService) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.getEvent(r, chi.URLParam(r, "eventId"))
	if err != nil {
		SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		return
	}
	SendJSON(w, http.StatusOK, event)
}

// JoinEvent joins the caller to an event, charging the fee for paid events.
// Joining a paid event twice returns the original charge and does not deduct
// again.
// @Summary Join an event
// @Tags events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} joinResponse
// @Failure 409 {object} ErrorResponse "Event full or inactive"
// @Failure 422 {object} ErrorResponse "Insufficient funds"
// @Router /events/{eventId}/join [post]
func (s *EventService) JoinEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	eventID := chi.URLParam(r, "eventId")
	event, err := s.getEvent(r, eventID)
	if err != nil {
		SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		return
	}
	if event.CreatorID == userID {
		SendErrorResponse(w, "Cannot join your own event", http.StatusBadRequest, nil)
		return
	}

	if event.Paid() {
		if existing, err := s.engine.EventCharge(r.Context(), accountID, eventID); err == nil {
			SendJSON(w, http.StatusOK, joinResponse{
				Message:     "Already joined",
				Event:       event,
				Transaction: &existing,
			})
			return
		}
	}

	if !event.CanJoin() {
		SendErrorResponse(w, "Event is full or not active", http.StatusConflict, nil)
		return
	}

	var charge *models.Transaction
	if event.Paid() {
		txn, err := s.engine.ChargeForEvent(r.Context(), accountID, eventID, event.Cost)
		if err != nil {
			log.Printf("[EVENT] Charge failed for user %s on event %s: %v", userID, eventID, err)
			SendLedgerError(w, err)
			return
		}
		charge = &txn
	}

	// Capacity-safe increment without locking the row.
	result, err := s.db.ExecContext(r.Context(), `
		UPDATE events
		SET current_participants = current_participants + 1, updated_at = $1
		WHERE id = $2 AND status = $3
		  AND (max_participants = 0 OR current_participants < max_participants)`,
		time.Now(), eventID, models.EventActive)
	if err == nil {
		if rows, raErr := result.RowsAffected(); raErr == nil && rows == 0 {
			err = errors.New("event filled up")
		}
	}
	if err != nil {
		// The seat race was lost after charging; compensate with a refund.
		if charge != nil {
			if _, refundErr := s.engine.RefundEventCharge(r.Context(), accountID, eventID); refundErr != nil {
				log.Printf("[EVENT] Refund after failed join errored for user %s on event %s: %v", userID, eventID, refundErr)
			}
		}
		SendErrorResponse(w, "Event is full or not active", http.StatusConflict, nil)
		return
	}

	event.CurrentParticipants++
	log.Printf("[EVENT] User %s joined event %s", userID, eventID)
	SendJSON(w, http.StatusOK, joinResponse{
		Message:     "Successfully joined event",
		Event:       event,
		Transaction: charge,
	})
}

// LeaveEvent removes the caller from an event, refunding the fee for paid
// events. Leaving a paid event that was never joined fails with 404.
// @Summary Leave an event
// @Tags events
// @Produce json
// @Param eventId path string true "Event ID"
// @Success 200 {object} joinResponse
// @Failure 404 {object} ErrorResponse "No charge found"
// @Router /events/{eventId}/leave [post]
func (s *EventService) LeaveEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	accountID, ok := accountIDFrom(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	eventID := chi.URLParam(r, "eventId")
	event, err := s.getEvent(r, eventID)
	if err != nil {
		SendErrorResponse(w, "Event not found", http.StatusNotFound, nil)
		return
	}

	var refund *models.Transaction
	if event.Paid() {
		txn, err := s.engine.RefundEventCharge(r.Context(), accountID, eventID)
		if err != nil {
			log.Printf("[EVENT] Refund failed for user %s on event %s: %v", userID, eventID, err)
			SendLedgerError(w, err)
			return
		}
		refund = &txn
	}

	_, err = s.db.ExecContext(r.Context(), `
		UPDATE events
		SET current_participants = current_participants - 1, updated_at = $1
		WHERE id = $2 AND current_participants > 0`,
		time.Now(), eventID)
	if err != nil {
		log.Printf("[EVENT] Failed to decrement participants on event %s: %v", eventID, err)
	}

	if event.CurrentParticipants > 0 {
		event.CurrentParticipants--
	}
	log.Printf("[EVENT] User %s left event %s", userID, eventID)
	SendJSON(w, http.StatusOK, joinResponse{
		Message:     "Successfully left event",
		Event:       event,
		Transaction: refund,
	})
}

func (s *EventService) getEvent(r *http.Request, eventID string) (models.Event, error) {
	var e models.Event
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, title, description, cost, max_participants, current_participants, status, creator_id, event_date, created_at, updated_at
		FROM events
		WHERE id = $1`, eventID).
		Scan(&e.ID, &e.Title, &e.Description, &e.Cost, &e.MaxParticipants,
			&e.CurrentParticipants, &e.Status, &e.CreatorID, &e.EventDate, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
