package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"templeops/internal/middleware"
	"templeops/internal/model"
	"templeops/internal/repository"
	"templeops/internal/service"
)

// retryAfterSeconds is sent with 503 so collaborators back off briefly.
const retryAfterSeconds = "2"

// Binding errors name fields by their json tag, as clients send them.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string             `json:"error"`
	Field     string             `json:"field,omitempty"`
	From      string             `json:"from,omitempty"`
	To        string             `json:"to,omitempty"`
	Status    string             `json:"status,omitempty"`
	Conflicts []service.Conflict `json:"conflicts,omitempty"`
}

// respondError переводит ошибки сервиса в HTTP статусы
func respondError(c *gin.Context, err error) {
	var (
		validationErr  *service.ValidationError
		transitionErr  *service.IllegalTransitionError
		conflictErr    *service.ConflictError
		readOnlyErr    *service.ReadOnlyError
		unavailableErr *service.StoreUnavailableError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Field: validationErr.Field})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), From: transitionErr.From, To: transitionErr.To})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Conflicts: conflictErr.Conflicts})
	case errors.As(err, &readOnlyErr):
		c.JSON(http.StatusLocked, ErrorResponse{Error: err.Error(), Field: readOnlyErr.Field, Status: readOnlyErr.Status})
	case errors.As(err, &unavailableErr):
		log.Printf("⚠️ %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Store unavailable, retry later"})
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: notFoundMessage(err)})
	case errors.Is(err, repository.ErrDuplicateKey):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Already exists"})
	default:
		log.Printf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, repository.ErrEventNotFound):
		return "Event not found"
	case errors.Is(err, repository.ErrTemplateNotFound):
		return "Template not found"
	case errors.Is(err, repository.ErrBookingNotFound):
		return "Booking not found"
	}
	return "Actor not found"
}

// currentActor достает актора, загруженного middleware
func currentActor(c *gin.Context) (*model.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Not authenticated"})
		return nil, false
	}
	return actor, true
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Field: field})
}

// bindFailed answers a body that could not be bound. The first failing field
// is reported; fallback is used when the decoder does not name one.
func bindFailed(c *gin.Context, err error, fallback string) {
	var (
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &fieldErrs) && len(fieldErrs) > 0:
		fe := fieldErrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		badRequest(c, fe.Field(), fmt.Sprintf("%s failed %s validation", fe.Field(), rule))
	case errors.As(err, &typeErr) && typeErr.Field != "":
		badRequest(c, typeErr.Field, fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type))
	default:
		badRequest(c, fallback, "Invalid request")
	}
}
