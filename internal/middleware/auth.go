package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nobconsult/internal/domain"
	"nobconsult/internal/pkg/jwt"
	"nobconsult/internal/pkg/response"
)

const actorKey = "actor"

// UserLookup loads the stored user behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// JWTAuth validates the bearer token and resolves the caller from the user
// store. The role in the token is ignored in favour of the stored role.
// Browsers cannot set headers on websocket upgrades, so a "token" query
// parameter is accepted when no Authorization header is present.
func JWTAuth(jwtService *jwt.Service, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid Authorization header")
			return
		}

		claims, err := jwtService.ValidateToken(tokenStr)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}

		user, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil || user == nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "User no longer exists")
			return
		}

		actor := domain.ActorFromUser(user)
		c.Set("user_id", actor.UserID)
		c.Set("role", string(actor.Role))
		c.Set(actorKey, actor)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		t := strings.TrimSpace(c.Query("token"))
		return t, t != ""
	}
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return t, t != ""
}

// ActorFrom returns the caller resolved by JWTAuth.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	a, ok := v.(domain.Actor)
	return a, ok
}

// MustActor aborts with 401 when no actor is attached.
func MustActor(c *gin.Context) (domain.Actor, bool) {
	a, ok := ActorFrom(c)
	if !ok {
		response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	return a, ok
}
