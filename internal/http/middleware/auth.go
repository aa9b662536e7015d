// README: Auth middleware; verifies the bearer token and stores the caller as a types.Actor.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/infra"
	"dispatch/internal/types"
)

const actorKey = "dispatch.actor"

// Auth rejects requests without a valid token with 401. Websocket clients that
// cannot set headers may pass the token as ?access_token=.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("access_token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		actor, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole rejects authenticated callers of another role with 403.
func RequireRole(role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Caller(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "requires role " + string(role)})
			return
		}
		c.Next()
	}
}

// Caller returns the actor set by Auth, or the zero Actor.
func Caller(c *gin.Context) types.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return types.Actor{}
	}
	actor, _ := v.(types.Actor)
	return actor
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
