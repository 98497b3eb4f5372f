// README: Dispatch endpoints; customer status view and the partner offer loop.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/dispatch"
)

type DispatchHandler struct {
	dispatch *dispatch.Service
}

func NewDispatchHandler(svc *dispatch.Service) *DispatchHandler {
	return &DispatchHandler{dispatch: svc}
}

func (h *DispatchHandler) Status(c *gin.Context) {
	who := caller(c)
	if isAdmin(c) {
		who = ""
	}
	view, err := h.dispatch.Status(c.Request.Context(), pathID(c), who)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *DispatchHandler) Poll(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	offers, err := h.dispatch.Poll(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if offers == nil {
		offers = []*dispatch.Offer{}
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

type acceptReq struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *DispatchHandler) Accept(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req acceptReq
	if !bindJSON(c, &req) {
		return
	}
	o, err := h.dispatch.Accept(c.Request.Context(), dispatch.AcceptCommand{
		OfferID:        pathID(c),
		PartnerID:      caller(c),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *DispatchHandler) Decline(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	err := h.dispatch.Decline(c.Request.Context(), dispatch.DeclineCommand{
		OfferID:   pathID(c),
		PartnerID: caller(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}
