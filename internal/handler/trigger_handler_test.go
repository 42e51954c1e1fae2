package handler_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"templeops/internal/handler"
	"templeops/internal/model"
	"templeops/internal/service"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, source model.SourceModule, payload []byte) (*model.Task, error) {
	args := m.Called(ctx, source, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func newTriggerRouter(ingestor handler.TriggerIngestor) *gin.Engine {
	r := newRouter(managerActor)
	r.POST("/triggers/:source", handler.NewTriggerHandler(ingestor).Ingest)
	return r
}

func TestTriggerIngest_PassesRawPayload(t *testing.T) {
	// Arrange
	ingestor := new(MockIngestor)
	payload := `{"item_id":"ghee","item_name":"Ghee","on_hand":2,"reorder_level":10}`
	task := &model.Task{ID: uuid.New(), Status: model.TaskOpen}
	ingestor.On("Ingest", mock.Anything, model.SourceInventory, []byte(payload)).Return(task, nil)
	router := newTriggerRouter(ingestor)

	// Act
	resp := performRequest(router, http.MethodPost, "/triggers/inventory", payload)

	// Assert
	assert.Equal(t, http.StatusCreated, resp.Code)
	body := decode[handler.TriggerResponse](resp)
	assert.Equal(t, task.ID.String(), body.TaskID)
	assert.Equal(t, "open", body.Status)
	ingestor.AssertExpectations(t)
}

func TestTriggerIngest_UnknownSource(t *testing.T) {
	// Arrange
	ingestor := new(MockIngestor)
	ingestor.On("Ingest", mock.Anything, model.SourceModule("donations"), mock.Anything).
		Return(nil, &service.ValidationError{Field: "source_module", Reason: "no trigger rule"})
	router := newTriggerRouter(ingestor)

	// Act
	resp := performRequest(router, http.MethodPost, "/triggers/donations", `{}`)

	// Assert
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "source_module", decode[handler.ErrorResponse](resp).Field)
}

func TestTriggerIngest_PayloadTooLarge(t *testing.T) {
	// Arrange
	ingestor := new(MockIngestor)
	router := newTriggerRouter(ingestor)
	huge := `{"note":"` + strings.Repeat("x", 70<<10) + `"}`

	// Act
	resp := performRequest(router, http.MethodPost, "/triggers/event", huge)

	// Assert
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	ingestor.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything, mock.Anything)
}
