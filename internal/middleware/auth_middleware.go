package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"templeops/internal/auth"
	"templeops/internal/model"
	"templeops/internal/repository"
)

const (
	UserIDKey    = "userID"
	ActorKey     = "actor"
	RequestIDKey = "requestID"

	RequestIDHeader = "X-Request-ID"
)

// ActorLookup resolves the actor named by a token.
type ActorLookup interface {
	GetByID(ctx context.Context, id string) (*model.Actor, error)
}

// JWTAuthMiddleware проверяет Bearer токен и кладет ID актора в контекст
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		actorID, err := auth.ParseToken(parts[1], secret)
		if errors.Is(err, auth.ErrInvalidClaims) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID in token"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(UserIDKey, actorID)
		c.Next()
	}
}

// LoadActor загружает актора по ID из токена. Должен идти после JWTAuthMiddleware
func LoadActor(actors ActorLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetString(UserIDKey)
		if actorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		actor, err := actors.GetByID(c.Request.Context(), actorID)
		if errors.Is(err, repository.ErrActorNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unknown actor"})
			return
		}
		if err != nil {
			log.Printf("⚠️ actor %s not loaded: %v", actorID, err)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to load actor"})
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// RequestID берет X-Request-ID клиента или генерирует новый
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// CurrentActor returns the actor stored by LoadActor.
func CurrentActor(c *gin.Context) (*model.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*model.Actor)
	return actor, ok && actor != nil
}
