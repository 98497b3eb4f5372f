// README: Quote endpoint.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/pricing"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

type quoteReq struct {
	ServiceType     string     `json:"service_type" binding:"required,servicetype"`
	Bedrooms        int        `json:"bedrooms" binding:"min=0"`
	Bathrooms       int        `json:"bathrooms" binding:"min=0"`
	Masters         int        `json:"masters" binding:"min=0"`
	DwellingType    string     `json:"dwelling_type"`
	AddOns          []string   `json:"addons"`
	ReferencePhotos int        `json:"reference_photos"`
	Zone            string     `json:"zone"`
	When            *time.Time `json:"when"`
}

func (h *PricingHandler) Quote(c *gin.Context) {
	var req quoteReq
	if !bindJSON(c, &req) {
		return
	}
	when := time.Now()
	if req.When != nil {
		when = *req.When
	}
	q, err := h.pricing.Quote(c.Request.Context(), pricing.QuoteCommand{
		ServiceType:     pricing.ServiceType(req.ServiceType),
		Bedrooms:        req.Bedrooms,
		Bathrooms:       req.Bathrooms,
		Masters:         req.Masters,
		DwellingType:    pricing.DwellingType(req.DwellingType),
		AddOns:          req.AddOns,
		ReferencePhotos: req.ReferencePhotos,
		Zone:            req.Zone,
		When:            when,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
