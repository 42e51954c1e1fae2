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

type MockTemplateService struct {
	mock.Mock
}

func (m *MockTemplateService) template(args mock.Arguments) (*model.RecurringTemplate, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RecurringTemplate), args.Error(1)
}

func (m *MockTemplateService) CreateTemplate(ctx context.Context, in service.TemplateInput) (*model.RecurringTemplate, error) {
	return m.template(m.Called(ctx, in))
}

func (m *MockTemplateService) ListTemplates(ctx context.Context) ([]model.RecurringTemplate, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.RecurringTemplate), args.Error(1)
}

func (m *MockTemplateService) Activate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error) {
	return m.template(m.Called(ctx, id, actorID))
}

func (m *MockTemplateService) Deactivate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error) {
	return m.template(m.Called(ctx, id, actorID))
}

func newTemplateRouter(templates handler.TemplateService) *gin.Engine {
	r := newRouter(managerActor)
	h := handler.NewTemplateHandler(templates)
	r.POST("/templates", h.Create)
	r.GET("/templates", h.List)
	r.POST("/templates/:id/activate", h.Activate)
	r.POST("/templates/:id/deactivate", h.Deactivate)
	return r
}

func sampleTemplate() *model.RecurringTemplate {
	return &model.RecurringTemplate{
		ID:         uuid.New(),
		Name:       "Evening aarti",
		Cadence:    model.IntervalCadence(12 * time.Hour),
		AnchorTime: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC),
		Active:     true,
		CreatedBy:  managerActor.ID,
		Blueprint: model.TaskBlueprint{
			Title:            "Light the lamps",
			AssignedTo:       "priest-1",
			AssignedBy:       managerActor.ID,
			Priority:         model.PriorityMedium,
			Visibility:       model.PublicScope(),
			DueOffsetSeconds: 1800,
		},
	}
}

func TestTemplateCreate_ParsesDurations(t *testing.T) {
	// Arrange
	templates := new(MockTemplateService)
	tmpl := sampleTemplate()
	templates.On("CreateTemplate", mock.Anything, mock.MatchedBy(func(in service.TemplateInput) bool {
		return in.Cadence == model.IntervalCadence(12*time.Hour) &&
			in.Blueprint.DueOffset() == 30*time.Minute &&
			in.Blueprint.AssignedBy == managerActor.ID &&
			in.CreatedBy == managerActor.ID
	})).Return(tmpl, nil)
	router := newTemplateRouter(templates)

	// Act
	resp := performRequest(router, http.MethodPost, "/templates", handler.TemplateRequest{
		Name:       "Evening aarti",
		Cadence:    "interval",
		Interval:   "12h",
		AnchorTime: tmpl.AnchorTime,
		Title:      "Light the lamps",
		AssignedTo: "priest-1",
		Priority:   "medium",
		Visibility: "public",
		DueOffset:  "30m",
	})

	// Assert
	assert.Equal(t, http.StatusCreated, resp.Code)
	body := decode[handler.TemplateResponse](resp)
	assert.Equal(t, "12h0m0s", body.Interval)
	assert.Equal(t, "30m0s", body.DueOffset)
	assert.True(t, body.Active)
	templates.AssertExpectations(t)
}

func TestTemplateCreate_RejectsBadInput(t *testing.T) {
	base := handler.TemplateRequest{
		Name:       "Evening aarti",
		Cadence:    "interval",
		Interval:   "12h",
		AnchorTime: testNow,
		Title:      "Light the lamps",
		AssignedTo: "priest-1",
		Priority:   "medium",
		Visibility: "public",
	}
	tests := []struct {
		name   string
		mutate func(r *handler.TemplateRequest)
		field  string
	}{
		{"unknown cadence", func(r *handler.TemplateRequest) { r.Cadence = "monthly" }, "cadence"},
		{"missing title", func(r *handler.TemplateRequest) { r.Title = "" }, "title"},
		{"bad interval", func(r *handler.TemplateRequest) { r.Interval = "twice a day" }, "cadence.interval"},
		{"bad offset", func(r *handler.TemplateRequest) { r.DueOffset = "soon" }, "blueprint.due_offset"},
		{"bad priority", func(r *handler.TemplateRequest) { r.Priority = "urgent" }, "blueprint.priority"},
		{"bad visibility", func(r *handler.TemplateRequest) { r.Visibility = "everyone" }, "blueprint.visibility"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			templates := new(MockTemplateService)
			router := newTemplateRouter(templates)
			req := base
			tt.mutate(&req)

			// Act
			resp := performRequest(router, http.MethodPost, "/templates", req)

			// Assert
			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.Equal(t, tt.field, decode[handler.ErrorResponse](resp).Field)
			templates.AssertNotCalled(t, "CreateTemplate", mock.Anything, mock.Anything)
		})
	}
}

func TestTemplateActivation(t *testing.T) {
	// Arrange
	templates := new(MockTemplateService)
	tmpl := sampleTemplate()
	inactive := *tmpl
	inactive.Active = false
	templates.On("Deactivate", mock.Anything, tmpl.ID, managerActor.ID).Return(&inactive, nil)
	templates.On("Activate", mock.Anything, tmpl.ID, managerActor.ID).Return(tmpl, nil)
	router := newTemplateRouter(templates)

	// Act
	off := performRequest(router, http.MethodPost, "/templates/"+tmpl.ID.String()+"/deactivate", nil)
	on := performRequest(router, http.MethodPost, "/templates/"+tmpl.ID.String()+"/activate", nil)

	// Assert
	assert.False(t, decode[handler.TemplateResponse](off).Active)
	assert.True(t, decode[handler.TemplateResponse](on).Active)
	templates.AssertExpectations(t)
}

func TestTemplateList(t *testing.T) {
	// Arrange
	templates := new(MockTemplateService)
	templates.On("ListTemplates", mock.Anything).Return([]model.RecurringTemplate{*sampleTemplate()}, nil)
	router := newTemplateRouter(templates)

	// Act
	resp := performRequest(router, http.MethodGet, "/templates", nil)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, decode[[]handler.TemplateResponse](resp), 1)
}

func TestActorMe(t *testing.T) {
	// Arrange
	r := newRouter(managerActor)
	r.GET("/actors/me", handler.NewActorHandler().Me)

	// Act
	resp := performRequest(r, http.MethodGet, "/actors/me", nil)

	// Assert
	assert.Equal(t, http.StatusOK, resp.Code)
	body := decode[handler.ActorResponse](resp)
	assert.Equal(t, "manager-1", body.ID)
	assert.Equal(t, "manager", body.Role)
}
