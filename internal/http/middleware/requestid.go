// README: Request id middleware; honors X-Request-ID or mints a fresh uuid.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request.id"

// HeaderRequestID is echoed on every response.
const HeaderRequestID = "X-Request-ID"

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned to this request, empty before the
// middleware ran.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
