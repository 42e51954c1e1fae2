package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"templeops/internal/clock"
	"templeops/internal/config"
	"templeops/internal/model"
	"templeops/internal/repository"
	"templeops/internal/service"
)

// TaskService is the part of service.TaskManager the HTTP layer uses.
type TaskService interface {
	CreateTask(ctx context.Context, in service.TaskInput) (*model.Task, error)
	Transition(ctx context.Context, id uuid.UUID, to model.TaskStatus, actorID, requestID string) (*model.Task, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDueAt time.Time, actorID string) (*model.Task, error)
	ListOverdue(ctx context.Context, asOf time.Time) ([]model.Task, error)
	ListTasksVisibleTo(ctx context.Context, actor *model.Actor, q service.TaskQuery) ([]model.Task, error)
	GetTask(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.Task, error)
	History(ctx context.Context, actor *model.Actor, id uuid.UUID) ([]model.AuditEntry, error)
}

type TaskHandler struct {
	tasks TaskService
	clock clock.Clock
}

func NewTaskHandler(tasks TaskService, clk clock.Clock) *TaskHandler {
	return &TaskHandler{tasks: tasks, clock: clk}
}

// CreateTaskRequest представляет запрос на создание ручной задачи
type CreateTaskRequest struct {
	Title          string    `json:"title" binding:"required"`
	Description    string    `json:"description"`
	LinkedEntityID *string   `json:"linked_entity_id"`
	AssignedTo     string    `json:"assigned_to" binding:"required"`
	DueAt          time.Time `json:"due_at" binding:"required"`
	Priority       string    `json:"priority" binding:"required"`
	// Visibility is "public", "assignee_only" or "role:<role>".
	Visibility     string  `json:"visibility" binding:"required"`
	Conflict       bool    `json:"conflict"`
	IdempotencyKey *string `json:"idempotency_key"`
}

// TransitionRequest представляет запрос на смену статуса задачи
type TransitionRequest struct {
	Status    string `json:"status" binding:"required"`
	RequestID string `json:"request_id"`
}

// RescheduleRequest представляет запрос на перенос срока
type RescheduleRequest struct {
	DueAt time.Time `json:"due_at" binding:"required"`
}

type taskListQuery struct {
	Status         []string `form:"status"`
	SourceModule   string   `form:"source_module"`
	LinkedEntityID string   `form:"linked_entity_id"`
	AssignedTo     string   `form:"assigned_to"`
	Overdue        bool     `form:"overdue"`
	Limit          int      `form:"limit" binding:"omitempty,min=0,max=500"`
	Offset         int      `form:"offset" binding:"omitempty,min=0"`
}

// Create godoc
// @Summary      Create a manual task
// @Tags         Tasks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        task  body      CreateTaskRequest  true  "Task"
// @Success      201   {object}  TaskResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		badRequest(c, "priority", err.Error())
		return
	}
	scope, err := config.ParseVisibility(req.Visibility)
	if err != nil {
		badRequest(c, "visibility", err.Error())
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), service.TaskInput{
		Title:          req.Title,
		Description:    req.Description,
		SourceModule:   model.SourceManual,
		LinkedEntityID: req.LinkedEntityID,
		AssignedTo:     req.AssignedTo,
		AssignedBy:     actor.ID,
		DueAt:          req.DueAt,
		Priority:       priority,
		Visibility:     &scope,
		Conflict:       req.Conflict,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTaskResponse(task, h.clock.Now()))
}

// List godoc
// @Summary      List tasks visible to the caller
// @Tags         Tasks
// @Security     BearerAuth
// @Produce      json
// @Param        status            query  []string  false  "Statuses"  collectionFormat(multi)
// @Param        source_module     query  string    false  "Source module"
// @Param        linked_entity_id  query  string    false  "Linked entity"
// @Param        assigned_to       query  string    false  "Assignee"
// @Param        overdue           query  bool      false  "Only overdue"
// @Param        limit             query  int       false  "Page size"
// @Param        offset            query  int       false  "Page offset"
// @Success      200  {array}   TaskResponse
// @Router       /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var q taskListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "", "Invalid query")
		return
	}

	filter := repository.TaskFilter{
		SourceModule:   model.SourceModule(q.SourceModule),
		LinkedEntityID: q.LinkedEntityID,
		AssignedTo:     q.AssignedTo,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}
	for _, raw := range q.Status {
		for _, s := range strings.Split(raw, ",") {
			status := model.TaskStatus(strings.TrimSpace(s))
			if !status.Valid() {
				badRequest(c, "status", "unknown task status "+string(status))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	tasks, err := h.tasks.ListTasksVisibleTo(c.Request.Context(), actor, service.TaskQuery{
		Filter:      filter,
		OverdueOnly: q.Overdue,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTaskResponses(tasks, h.clock.Now()))
}

// Overdue godoc
// @Summary      List overdue tasks visible to the caller
// @Tags         Tasks
// @Security     BearerAuth
// @Produce      json
// @Param        as_of  query  string  false  "RFC3339 instant, defaults to now"
// @Success      200  {array}   TaskResponse
// @Router       /tasks/overdue [get]
func (h *TaskHandler) Overdue(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	asOf := h.clock.Now()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "as_of", "as_of must be RFC3339")
			return
		}
		asOf = parsed
	}

	tasks, err := h.tasks.ListOverdue(c.Request.Context(), asOf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTaskResponses(service.FilterVisible(actor, tasks), asOf))
}

// GetByID godoc
// @Summary      Get a task
// @Tags         Tasks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {object}  TaskResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
func (h *TaskHandler) GetByID(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTaskResponse(task, h.clock.Now()))
}

// History godoc
// @Summary      Audit trail of a task
// @Tags         Tasks
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Task ID"
// @Success      200  {array}   AuditResponse
// @Router       /tasks/{id}/history [get]
func (h *TaskHandler) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entries, err := h.tasks.History(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newAuditResponses(entries))
}

// Transition godoc
// @Summary      Change task status
// @Description  request_id (or the X-Request-ID header) makes retries safe.
// @Tags         Tasks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Task ID"
// @Param        body  body      TransitionRequest  true  "Target status"
// @Success      200   {object}  TaskResponse
// @Failure      409   {object}  ErrorResponse
// @Router       /tasks/{id}/transition [post]
func (h *TaskHandler) Transition(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = c.GetHeader("X-Request-ID")
	}

	// Невидимая задача для актора не существует
	if _, err := h.tasks.GetTask(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	task, err := h.tasks.Transition(c.Request.Context(), id, model.TaskStatus(req.Status), actor.ID, requestID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTaskResponse(task, h.clock.Now()))
}

// Reschedule godoc
// @Summary      Reschedule a task
// @Description  Creates a replacement task and closes the original.
// @Tags         Tasks
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "Task ID"
// @Param        body  body      RescheduleRequest  true  "New due time"
// @Success      201   {object}  TaskResponse
// @Router       /tasks/{id}/reschedule [post]
func (h *TaskHandler) Reschedule(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "due_at")
		return
	}

	if _, err := h.tasks.GetTask(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	task, err := h.tasks.Reschedule(c.Request.Context(), id, req.DueAt, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTaskResponse(task, h.clock.Now()))
}

// parseID читает UUID из пути запроса
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, param, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}
