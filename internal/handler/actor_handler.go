package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ActorHandler struct{}

func NewActorHandler() *ActorHandler {
	return &ActorHandler{}
}

// Me godoc
// @Summary      The calling actor
// @Tags         Actors
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  ActorResponse
// @Router       /actors/me [get]
func (h *ActorHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, ActorResponse{ID: actor.ID, Name: actor.Name, Role: string(actor.Role)})
}
