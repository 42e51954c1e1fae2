package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"templeops/internal/clock"
	"templeops/internal/model"
	"templeops/internal/service"
)

const dateLayout = "2006-01-02"

// EventService is the part of service.EventManager the HTTP layer uses.
type EventService interface {
	CreateEvent(ctx context.Context, in service.EventInput) (*model.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	ListEvents(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error)
	UpdateEvent(ctx context.Context, id uuid.UUID, patch service.EventPatch, actorID string) (*model.Event, error)
	Schedule(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error)
	Publish(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error)
	Cancel(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error)
	Archive(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error)
	AddBooking(ctx context.Context, eventID uuid.UUID, in service.BookingInput, actorID string) (*model.Booking, error)
	ResolveBooking(ctx context.Context, eventID, bookingID uuid.UUID, actorID string) (*model.Booking, error)
	ListBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error)
	Refresh(ctx context.Context, id uuid.UUID, now time.Time) (*model.Event, *service.Warning, error)
	GetEventStatus(ctx context.Context, id uuid.UUID) (*service.EventStatusView, error)
}

type EventHandler struct {
	events   EventService
	clock    clock.Clock
	location *time.Location
}

func NewEventHandler(events EventService, clk clock.Clock, loc *time.Location) *EventHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &EventHandler{events: events, clock: clk, location: loc}
}

// EventRequest представляет запрос на создание мероприятия.
// Даты в формате YYYY-MM-DD, дата окончания включительно
type EventRequest struct {
	Name            string  `json:"name" binding:"required"`
	Description     string  `json:"description"`
	Venue           string  `json:"venue"`
	StartDate       string  `json:"start_date" binding:"required"`
	EndDate         string  `json:"end_date" binding:"required"`
	EstimatedBudget float64 `json:"estimated_budget" binding:"min=0"`
}

// EventUpdateRequest представляет частичное обновление мероприятия
type EventUpdateRequest struct {
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	Venue           *string  `json:"venue"`
	StartDate       *string  `json:"start_date"`
	EndDate         *string  `json:"end_date"`
	EstimatedBudget *float64 `json:"estimated_budget"`
}

// BookingRequest представляет бронирование ресурса (зал, слот севы, жрец)
type BookingRequest struct {
	Resource string    `json:"resource" binding:"required"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
	Note     string    `json:"note"`
}

// Create godoc
// @Summary      Create an event in draft
// @Tags         Events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        event  body      EventRequest  true  "Event"
// @Success      201    {object}  EventResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}
	start, ok := h.parseDate(c, "start_date", req.StartDate)
	if !ok {
		return
	}
	end, ok := h.parseDate(c, "end_date", req.EndDate)
	if !ok {
		return
	}

	event, err := h.events.CreateEvent(c.Request.Context(), service.EventInput{
		Name:            req.Name,
		Description:     req.Description,
		Venue:           req.Venue,
		StartDate:       start,
		EndDate:         end,
		EstimatedBudget: req.EstimatedBudget,
		CreatedBy:       actor.ID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newEventResponse(event, h.location))
}

// List godoc
// @Summary      List events
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  []string  false  "Statuses"  collectionFormat(multi)
// @Success      200  {array}  EventResponse
// @Router       /events [get]
func (h *EventHandler) List(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}

	var statuses []model.EventStatus
	for _, s := range c.QueryArray("status") {
		statuses = append(statuses, model.EventStatus(s))
	}

	events, err := h.events.ListEvents(c.Request.Context(), statuses...)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]EventResponse, 0, len(events))
	for i := range events {
		out = append(out, newEventResponse(&events[i], h.location))
	}
	c.JSON(http.StatusOK, out)
}

// GetByID godoc
// @Summary      Get an event as stored
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventResponse
// @Router       /events/{id} [get]
func (h *EventHandler) GetByID(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	event, err := h.events.GetEvent(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEventResponse(event, h.location))
}

// Update godoc
// @Summary      Update event details
// @Description  Venue and dates are frozen once published. Archived and cancelled events are read-only.
// @Tags         Events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id     path      string              true  "Event ID"
// @Param        event  body      EventUpdateRequest  true  "Changed fields"
// @Success      200    {object}  EventResponse
// @Failure      423    {object}  ErrorResponse
// @Router       /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req EventUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}

	patch := service.EventPatch{
		Name:            req.Name,
		Description:     req.Description,
		Venue:           req.Venue,
		EstimatedBudget: req.EstimatedBudget,
	}
	if req.StartDate != nil {
		start, ok := h.parseDate(c, "start_date", *req.StartDate)
		if !ok {
			return
		}
		patch.StartDate = &start
	}
	if req.EndDate != nil {
		end, ok := h.parseDate(c, "end_date", *req.EndDate)
		if !ok {
			return
		}
		patch.EndDate = &end
	}

	event, err := h.events.UpdateEvent(c.Request.Context(), id, patch, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEventResponse(event, h.location))
}

// Status godoc
// @Summary      Status the event should have now
// @Description  Evaluated against the clock without writing.
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventStatusResponse
// @Router       /events/{id}/status [get]
func (h *EventHandler) Status(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	view, err := h.events.GetEventStatus(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, EventStatusResponse{
		Event:         newEventResponse(view.Event, h.location),
		Status:        string(view.Status),
		LinkedTaskIDs: nonNil(view.LinkedTaskIDs),
		OpenTaskIDs:   nonNil(view.OpenTaskIDs),
	})
}

// Refresh godoc
// @Summary      Apply clock-driven transitions to one event
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  RefreshResponse
// @Router       /events/{id}/refresh [post]
func (h *EventHandler) Refresh(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	event, warning, err := h.events.Refresh(c.Request.Context(), id, h.clock.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, RefreshResponse{Event: newEventResponse(event, h.location), Warning: warning})
}

// Schedule godoc
// @Summary      Move a draft event to scheduled
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /events/{id}/schedule [post]
func (h *EventHandler) Schedule(c *gin.Context) { h.move(c, h.events.Schedule) }

// Publish godoc
// @Summary      Publish a draft event
// @Description  Refused with the conflicting ids while bookings or linked tasks clash.
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventResponse
// @Failure      409  {object}  ErrorResponse
// @Router       /events/{id}/publish [post]
func (h *EventHandler) Publish(c *gin.Context) { h.move(c, h.events.Publish) }

// Cancel godoc
// @Summary      Cancel a draft or scheduled event
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventResponse
// @Router       /events/{id}/cancel [post]
func (h *EventHandler) Cancel(c *gin.Context) { h.move(c, h.events.Cancel) }

// Archive godoc
// @Summary      Archive a completed event
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {object}  EventResponse
// @Router       /events/{id}/archive [post]
func (h *EventHandler) Archive(c *gin.Context) { h.move(c, h.events.Archive) }

func (h *EventHandler) move(c *gin.Context, apply func(context.Context, uuid.UUID, string) (*model.Event, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	event, err := apply(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEventResponse(event, h.location))
}

// AddBooking godoc
// @Summary      Book a resource for an event
// @Description  Overlapping bookings of the same resource are flagged as conflicts.
// @Tags         Events
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string          true  "Event ID"
// @Param        booking  body      BookingRequest  true  "Booking"
// @Success      201      {object}  BookingResponse
// @Router       /events/{id}/bookings [post]
func (h *EventHandler) AddBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}

	booking, err := h.events.AddBooking(c.Request.Context(), id, service.BookingInput{
		Resource: req.Resource,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Note:     req.Note,
	}, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newBookingResponse(booking))
}

// ListBookings godoc
// @Summary      Bookings of an event
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Event ID"
// @Success      200  {array}   BookingResponse
// @Router       /events/{id}/bookings [get]
func (h *EventHandler) ListBookings(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	bookings, err := h.events.ListBookings(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, newBookingResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, out)
}

// ResolveBooking godoc
// @Summary      Clear the conflict flag of a booking
// @Tags         Events
// @Security     BearerAuth
// @Produce      json
// @Param        id          path      string  true  "Event ID"
// @Param        booking_id  path      string  true  "Booking ID"
// @Success      200         {object}  BookingResponse
// @Router       /events/{id}/bookings/{booking_id}/resolve [post]
func (h *EventHandler) ResolveBooking(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	bookingID, ok := parseID(c, "booking_id")
	if !ok {
		return
	}

	booking, err := h.events.ResolveBooking(c.Request.Context(), id, bookingID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newBookingResponse(booking))
}

// parseDate читает календарный день в часовом поясе храма
func (h *EventHandler) parseDate(c *gin.Context, field, raw string) (time.Time, bool) {
	day, err := time.ParseInLocation(dateLayout, raw, h.location)
	if err != nil {
		badRequest(c, field, field+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}
