package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"templeops/internal/config"
	"templeops/internal/model"
	"templeops/internal/service"
)

// TemplateService is the part of service.Expander the HTTP layer uses.
type TemplateService interface {
	CreateTemplate(ctx context.Context, in service.TemplateInput) (*model.RecurringTemplate, error)
	ListTemplates(ctx context.Context) ([]model.RecurringTemplate, error)
	Activate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error)
	Deactivate(ctx context.Context, id uuid.UUID, actorID string) (*model.RecurringTemplate, error)
}

type TemplateHandler struct {
	templates TemplateService
}

func NewTemplateHandler(templates TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// TemplateRequest представляет запрос на создание шаблона повторяющейся задачи
type TemplateRequest struct {
	Name    string `json:"name" binding:"required"`
	Cadence string `json:"cadence" binding:"required,oneof=daily weekly interval"`
	// Interval is a Go duration ("90m", "6h"), used with the interval cadence.
	Interval       string    `json:"interval"`
	AnchorTime     time.Time `json:"anchor_time" binding:"required"`
	Title          string    `json:"title" binding:"required"`
	Description    string    `json:"description"`
	AssignedTo     string    `json:"assigned_to" binding:"required"`
	Priority       string    `json:"priority" binding:"required"`
	Visibility     string    `json:"visibility" binding:"required"`
	DueOffset      string    `json:"due_offset"`
	LinkedEntityID *string   `json:"linked_entity_id"`
}

// Create godoc
// @Summary      Create a recurring task template
// @Tags         Templates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        template  body      TemplateRequest  true  "Template"
// @Success      201       {object}  TemplateResponse
// @Failure      400       {object}  ErrorResponse
// @Router       /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err, "")
		return
	}

	cadence := model.Cadence{Kind: model.CadenceKind(req.Cadence)}
	if cadence.Kind == model.CadenceInterval {
		every, err := time.ParseDuration(req.Interval)
		if err != nil {
			badRequest(c, "cadence.interval", "interval must be a duration like 90m")
			return
		}
		cadence = model.IntervalCadence(every)
	}

	var offset time.Duration
	if req.DueOffset != "" {
		parsed, err := time.ParseDuration(req.DueOffset)
		if err != nil {
			badRequest(c, "blueprint.due_offset", "due_offset must be a duration like 2h")
			return
		}
		offset = parsed
	}

	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		badRequest(c, "blueprint.priority", err.Error())
		return
	}
	scope, err := config.ParseVisibility(req.Visibility)
	if err != nil {
		badRequest(c, "blueprint.visibility", err.Error())
		return
	}

	tmpl, err := h.templates.CreateTemplate(c.Request.Context(), service.TemplateInput{
		Name:       req.Name,
		Cadence:    cadence,
		AnchorTime: req.AnchorTime,
		CreatedBy:  actor.ID,
		Blueprint: model.TaskBlueprint{
			Title:            req.Title,
			Description:      req.Description,
			AssignedTo:       req.AssignedTo,
			AssignedBy:       actor.ID,
			Priority:         priority,
			Visibility:       scope,
			DueOffsetSeconds: int64(offset / time.Second),
			LinkedEntityID:   req.LinkedEntityID,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTemplateResponse(tmpl))
}

// List godoc
// @Summary      List recurring task templates
// @Tags         Templates
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  TemplateResponse
// @Router       /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}

	tmpls, err := h.templates.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]TemplateResponse, 0, len(tmpls))
	for i := range tmpls {
		out = append(out, newTemplateResponse(&tmpls[i]))
	}
	c.JSON(http.StatusOK, out)
}

// Activate godoc
// @Summary      Resume a template
// @Tags         Templates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Template ID"
// @Success      200  {object}  TemplateResponse
// @Router       /templates/{id}/activate [post]
func (h *TemplateHandler) Activate(c *gin.Context) {
	h.setActive(c, h.templates.Activate)
}

// Deactivate godoc
// @Summary      Stop a template. Tasks already generated are kept
// @Tags         Templates
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Template ID"
// @Success      200  {object}  TemplateResponse
// @Router       /templates/{id}/deactivate [post]
func (h *TemplateHandler) Deactivate(c *gin.Context) {
	h.setActive(c, h.templates.Deactivate)
}

func (h *TemplateHandler) setActive(c *gin.Context, apply func(context.Context, uuid.UUID, string) (*model.RecurringTemplate, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	tmpl, err := apply(c.Request.Context(), id, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTemplateResponse(tmpl))
}
