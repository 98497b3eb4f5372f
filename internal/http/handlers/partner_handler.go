// README: Partner endpoints; the location heartbeat.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/partner"
	"sparkle/internal/types"
)

type PartnerHandler struct {
	partners *partner.Service
}

func NewPartnerHandler(svc *partner.Service) *PartnerHandler {
	return &PartnerHandler{partners: svc}
}

// Zero is a legal coordinate, so neither field is required; range checks live
// in the service.
type locationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (h *PartnerHandler) UpdateLocation(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	id := pathID(c)
	if !isAdmin(c) && id != caller(c) {
		writeForbidden(c, "cannot report another partner's location")
		return
	}
	var req locationReq
	if !bindJSON(c, &req) {
		return
	}
	err := h.partners.UpdateLocation(c.Request.Context(), partner.UpdateLocationCommand{
		PartnerID: id,
		Position:  types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
