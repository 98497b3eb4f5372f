// README: Bearer-token authentication; puts the verified principal on the context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"sparkle/internal/errorx"
	"sparkle/internal/infra"
)

const (
	principalUIDKey  = "auth.uid"
	principalRoleKey = "auth.role"
)

// Auth verifies the Authorization bearer token and stores the principal for
// CallerUID / CallerRole. Requests without a valid token never reach a
// handler.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthenticated(c, "missing bearer token")
			return
		}
		p, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil || p == nil || p.ID == "" {
			abortUnauthenticated(c, "invalid token")
			return
		}
		c.Set(principalUIDKey, p.ID)
		c.Set(principalRoleKey, p.Role)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      errorx.Kind(errorx.ErrUnauthenticated),
		"message":    msg,
		"request_id": GetRequestID(c),
	})
}

// CallerUID returns the authenticated user id, empty when unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(principalUIDKey)
}

// CallerRole returns the authenticated role claim, empty when absent.
func CallerRole(c *gin.Context) string {
	return c.GetString(principalRoleKey)
}
