package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"templeops/internal/model"
)

// maxTriggerPayload bounds the body a collaborator may post.
const maxTriggerPayload = 64 << 10

// TriggerIngestor is satisfied by service.Ingestor.
type TriggerIngestor interface {
	Ingest(ctx context.Context, source model.SourceModule, payload []byte) (*model.Task, error)
}

type TriggerHandler struct {
	ingestor TriggerIngestor
}

func NewTriggerHandler(ingestor TriggerIngestor) *TriggerHandler {
	return &TriggerHandler{ingestor: ingestor}
}

// TriggerResponse is returned for both new and already known triggers.
type TriggerResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// Ingest godoc
// @Summary      Inbound trigger from a collaborator module
// @Description  Runs the rule registered for source. Repeating a payload returns the same task.
// @Tags         Triggers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        source  path      string  true  "freelancer | inventory | volunteer | event"
// @Success      201     {object}  TriggerResponse
// @Failure      400     {object}  ErrorResponse
// @Router       /triggers/{source} [post]
func (h *TriggerHandler) Ingest(c *gin.Context) {
	if _, ok := currentActor(c); !ok {
		return
	}

	// Тело передается правилу как есть, разбор делает сервис
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTriggerPayload+1))
	if err != nil {
		badRequest(c, "payload", "Failed to read body")
		return
	}
	if len(payload) > maxTriggerPayload {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Payload too large", Field: "payload"})
		return
	}

	task, err := h.ingestor.Ingest(c.Request.Context(), model.SourceModule(c.Param("source")), payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, TriggerResponse{TaskID: task.ID.String(), Status: string(task.Status)})
}
