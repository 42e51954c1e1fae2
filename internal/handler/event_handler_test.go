package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"templeops/internal/handler"
	"templeops/internal/model"
	"templeops/internal/service"
)

// Мок сервиса мероприятий
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) event(args mock.Arguments) (*model.Event, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Event), args.Error(1)
}

func (m *MockEventService) CreateEvent(ctx context.Context, in service.EventInput) (*model.Event, error) {
	return m.event(m.Called(ctx, in))
}

func (m *MockEventService) GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	return m.event(m.Called(ctx, id))
}

func (m *MockEventService) ListEvents(ctx context.Context, statuses ...model.EventStatus) ([]model.Event, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).([]model.Event), args.Error(1)
}

func (m *MockEventService) UpdateEvent(ctx context.Context, id uuid.UUID, patch service.EventPatch, actorID string) (*model.Event, error) {
	return m.event(m.Called(ctx, id, patch, actorID))
}

func (m *MockEventService) Schedule(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.event(m.Called(ctx, id, actorID))
}

func (m *MockEventService) Publish(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.event(m.Called(ctx, id, actorID))
}

func (m *MockEventService) Cancel(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.event(m.Called(ctx, id, actorID))
}

func (m *MockEventService) Archive(ctx context.Context, id uuid.UUID, actorID string) (*model.Event, error) {
	return m.event(m.Called(ctx, id, actorID))
}

func (m *MockEventService) AddBooking(ctx context.Context, eventID uuid.UUID, in service.BookingInput, actorID string) (*model.Booking, error) {
	args := m.Called(ctx, eventID, in, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockEventService) ResolveBooking(ctx context.Context, eventID, bookingID uuid.UUID, actorID string) (*model.Booking, error) {
	args := m.Called(ctx, eventID, bookingID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *MockEventService) ListBookings(ctx context.Context, eventID uuid.UUID) ([]model.Booking, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *MockEventService) Refresh(ctx context.Context, id uuid.UUID, now time.Time) (*model.Event, *service.Warning, error) {
	args := m.Called(ctx, id, now)
	var warning *service.Warning
	if w := args.Get(1); w != nil {
		warning = w.(*service.Warning)
	}
	event, _ := args.Get(0).(*model.Event)
	return event, warning, args.Error(2)
}

func (m *MockEventService) GetEventStatus(ctx context.Context, id uuid.UUID) (*service.EventStatusView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EventStatusView), args.Error(1)
}

func newEventRouter(events handler.EventService, actor *model.Actor) *gin.Engine {
	r := newRouter(actor)
	h := handler.NewEventHandler(events, testClock(), time.UTC)
	r.POST("/events", h.Create)
	r.GET("/events", h.List)
	r.GET("/events/:id", h.GetByID)
	r.PUT("/events/:id", h.Update)
	r.GET("/events/:id/status", h.Status)
	r.POST("/events/:id/refresh", h.Refresh)
	r.POST("/events/:id/schedule", h.Schedule)
	r.POST("/events/:id/publish", h.Publish)
	r.POST("/events/:id/cancel", h.Cancel)
	r.POST("/events/:id/archive", h.Archive)
	r.POST("/events/:id/bookings", h.AddBooking)
	r.GET("/events/:id/bookings", h.ListBookings)
	r.POST("/events/:id/bookings/:booking_id/resolve", h.ResolveBooking)
	return r
}

func sampleEvent(status model.EventStatus) *model.Event {
	return &model.Event{
		ID:        uuid.New(),
		Name:      "Brahmotsavam",
		Venue:     "Main hall",
		StartDate: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Status:    status,
		CreatedBy: managerActor.ID,
	}
}

func TestEventCreate_ParsesCalendarDays(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	created := sampleEvent(model.EventDraft)
	events.On("CreateEvent", mock.Anything, mock.MatchedBy(func(in service.EventInput) bool {
		return in.StartDate.Equal(created.StartDate) && in.EndDate.Equal(created.EndDate) &&
			in.CreatedBy == managerActor.ID
	})).Return(created, nil)
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodPost, "/events", handler.EventRequest{
		Name:      "Brahmotsavam",
		Venue:     "Main hall",
		StartDate: "2024-03-10",
		EndDate:   "2024-03-12",
	})

	// Assert
	assert.Equal(t, http.StatusCreated, resp.Code)
	body := decode[handler.EventResponse](resp)
	assert.Equal(t, "2024-03-10", body.StartDate)
	assert.Equal(t, "2024-03-12", body.EndDate)
	assert.Equal(t, "draft", body.Status)
	events.AssertExpectations(t)
}

func TestEventCreate_BadDate(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodPost, "/events", handler.EventRequest{
		Name:      "Brahmotsavam",
		StartDate: "10/03/2024",
		EndDate:   "2024-03-12",
	})

	// Assert
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "start_date", decode[handler.ErrorResponse](resp).Field)
	events.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
}

func TestEventBinding_NamesTheFailingField(t *testing.T) {
	bookings := "/events/" + uuid.New().String() + "/bookings"
	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"event without end date", "/events", `{"name":"Brahmotsavam","start_date":"2024-03-10"}`, "end_date"},
		{"negative budget", "/events", `{"name":"B","start_date":"2024-03-10","end_date":"2024-03-12","estimated_budget":-1}`, "estimated_budget"},
		{"booking without resource", bookings, `{"starts_at":"2024-03-10T10:00:00Z","ends_at":"2024-03-10T12:00:00Z"}`, "resource"},
		{"booking with numeric resource", bookings, `{"resource":42}`, "resource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			events := new(MockEventService)
			router := newEventRouter(events, managerActor)

			// Act
			resp := performRequest(router, http.MethodPost, tt.path, tt.body)

			// Assert
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.field, decode[handler.ErrorResponse](resp).Field)
			events.AssertNotCalled(t, "CreateEvent", mock.Anything, mock.Anything)
			events.AssertNotCalled(t, "AddBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestEventUpdate_PassesOnlyChangedFields(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	event := sampleEvent(model.EventPublished)
	events.On("UpdateEvent", mock.Anything, event.ID, mock.MatchedBy(func(p service.EventPatch) bool {
		return p.Name != nil && *p.Name == "Vasantotsavam" && p.Venue == nil && p.StartDate == nil
	}), managerActor.ID).Return(event, nil)
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodPut, "/events/"+event.ID.String(), `{"name":"Vasantotsavam"}`)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	events.AssertExpectations(t)
}

func TestEventUpdate_FrozenFieldIsLocked(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	id := uuid.New()
	events.On("UpdateEvent", mock.Anything, id, mock.Anything, managerActor.ID).
		Return(nil, &service.ReadOnlyError{Entity: model.EntityEvent, ID: id.String(), Field: "venue", Status: "published"})
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodPut, "/events/"+id.String(), `{"venue":"Annex"}`)

	// Assert
	assert.Equal(t, http.StatusLocked, resp.Code)
	assert.Equal(t, "venue", decode[handler.ErrorResponse](resp).Field)
}

func TestEventStatus_ReturnsEvaluatedStatus(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	event := sampleEvent(model.EventPublished)
	open := uuid.New()
	events.On("GetEventStatus", mock.Anything, event.ID).Return(&service.EventStatusView{
		Event:         event,
		Status:        model.EventOngoing,
		LinkedTaskIDs: []uuid.UUID{open},
		OpenTaskIDs:   []uuid.UUID{open},
	}, nil)
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodGet, "/events/"+event.ID.String()+"/status", nil)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	body := decode[handler.EventStatusResponse](resp)
	assert.Equal(t, "ongoing", body.Status)
	assert.Equal(t, "published", body.Event.Status)
	assert.Equal(t, []uuid.UUID{open}, body.OpenTaskIDs)
}

func TestEventRefresh_WarningInBody(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	event := sampleEvent(model.EventCompleted)
	open := uuid.New()
	events.On("Refresh", mock.Anything, event.ID, testNow).
		Return(event, &service.Warning{Message: "1 linked task still open", OpenTaskIDs: []uuid.UUID{open}}, nil)
	router := newEventRouter(events, managerActor)

	// Act
	resp := performRequest(router, http.MethodPost, "/events/"+event.ID.String()+"/refresh", nil)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	body := decode[handler.RefreshResponse](resp)
	assert.Equal(t, "completed", body.Event.Status)
	if assert.NotNil(t, body.Warning) {
		assert.Equal(t, []uuid.UUID{open}, body.Warning.OpenTaskIDs)
	}
}

func TestEventMoves_CallTheMatchingOperation(t *testing.T) {
	tests := []struct {
		path   string
		method string
		status model.EventStatus
	}{
		{"schedule", "Schedule", model.EventScheduled},
		{"publish", "Publish", model.EventPublished},
		{"cancel", "Cancel", model.EventCancelled},
		{"archive", "Archive", model.EventArchived},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			// Arrange
			events := new(MockEventService)
			event := sampleEvent(tt.status)
			events.On(tt.method, mock.Anything, event.ID, managerActor.ID).Return(event, nil)
			router := newEventRouter(events, managerActor)

			// Act
			resp := performRequest(router, http.MethodPost, "/events/"+event.ID.String()+"/"+tt.path, nil)

			// Assert
			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, string(tt.status), decode[handler.EventResponse](resp).Status)
			events.AssertExpectations(t)
		})
	}
}

func TestEventBookings(t *testing.T) {
	// Arrange
	events := new(MockEventService)
	eventID := uuid.New()
	starts := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	booking := &model.Booking{
		ID:       uuid.New(),
		EventID:  eventID,
		Resource: "main-hall",
		StartsAt: starts,
		EndsAt:   starts.Add(3 * time.Hour),
		Conflict: true,
	}
	resolved := *booking
	resolved.Conflict = false
	events.On("AddBooking", mock.Anything, eventID, service.BookingInput{
		Resource: "main-hall", StartsAt: starts, EndsAt: starts.Add(3 * time.Hour),
	}, managerActor.ID).Return(booking, nil)
	events.On("ListBookings", mock.Anything, eventID).Return([]model.Booking{*booking}, nil)
	events.On("ResolveBooking", mock.Anything, eventID, booking.ID, managerActor.ID).Return(&resolved, nil)
	router := newEventRouter(events, managerActor)
	base := "/events/" + eventID.String() + "/bookings"

	// Act
	added := performRequest(router, http.MethodPost, base, handler.BookingRequest{
		Resource: "main-hall", StartsAt: starts, EndsAt: starts.Add(3 * time.Hour),
	})
	listed := performRequest(router, http.MethodGet, base, nil)
	cleared := performRequest(router, http.MethodPost, base+"/"+booking.ID.String()+"/resolve", nil)

	// Assert
	assert.Equal(t, http.StatusCreated, added.Code)
	assert.True(t, decode[handler.BookingResponse](added).Conflict)
	assert.Len(t, decode[[]handler.BookingResponse](listed), 1)
	assert.Equal(t, http.StatusOK, cleared.Code)
	assert.False(t, decode[handler.BookingResponse](cleared).Conflict)
	events.AssertExpectations(t)
}

func TestEventGet_InvalidID(t *testing.T) {
	// Arrange
	router := newEventRouter(new(MockEventService), managerActor)

	// Act
	resp := performRequest(router, http.MethodGet, "/events/not-a-uuid", nil)

	// Assert
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "id", decode[handler.ErrorResponse](resp).Field)
}
