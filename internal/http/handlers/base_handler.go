// README: Base handler utilities: the error envelope, role checks, binding.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sparkle/internal/errorx"
	"sparkle/internal/http/middleware"
	"sparkle/internal/types"
)

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError maps a service error onto the stable envelope. Errors outside
// the taxonomy stay opaque to the client and land in the access log.
func writeError(c *gin.Context, err error) {
	status := errorx.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(status, errorResponse{
		Error:     errorx.Kind(err),
		Message:   msg,
		RequestID: middleware.GetRequestID(c),
	})
}

func writeInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{
		Error:     errorx.Kind(errorx.ErrInvalidArgument),
		Message:   msg,
		RequestID: middleware.GetRequestID(c),
	})
}

func writeForbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, errorResponse{
		Error:     errorx.Kind(errorx.ErrForbidden),
		Message:   msg,
		RequestID: middleware.GetRequestID(c),
	})
}

// caller is the authenticated principal id.
func caller(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func isAdmin(c *gin.Context) bool {
	return middleware.CallerRole(c) == "admin"
}

// requireRole gates a route on the principal's role claim; admin passes
// everywhere. Ownership stays with the services.
func requireRole(c *gin.Context, role string) bool {
	r := middleware.CallerRole(c)
	if r == role || r == "admin" {
		return true
	}
	writeForbidden(c, "requires "+role+" role")
	return false
}

// bindJSON decodes the body and reports binding failures on the envelope.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeInvalid(c, err.Error())
		return false
	}
	return true
}

func pathID(c *gin.Context) types.ID {
	return types.ID(c.Param("id"))
}
