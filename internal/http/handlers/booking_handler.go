// README: Booking endpoints; checkout, fetch, and pre-assignment cancellation.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
}

func NewBookingHandler(svc *booking.Service) *BookingHandler {
	return &BookingHandler{bookings: svc}
}

type checkoutReq struct {
	ServiceType     string     `json:"service_type" binding:"required,servicetype"`
	Bedrooms        int        `json:"bedrooms" binding:"min=0"`
	Bathrooms       int        `json:"bathrooms" binding:"min=0"`
	Masters         int        `json:"masters" binding:"min=0"`
	DwellingType    string     `json:"dwelling_type"`
	AddOns          []string   `json:"addons"`
	ReferencePhotos int        `json:"reference_photos"`
	Line1           string     `json:"line1" binding:"required"`
	City            string     `json:"city"`
	Zone            string     `json:"zone" binding:"required"`
	Lat             float64    `json:"lat"`
	Lng             float64    `json:"lng"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	Instrument      string     `json:"instrument" binding:"required"`
	PromoCode       string     `json:"promo_code"`
	PromoCents      int64      `json:"promo_cents" binding:"min=0"`
	CreditCents     int64      `json:"credit_cents" binding:"min=0"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	if !requireRole(c, "customer") {
		return
	}
	var req checkoutReq
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.bookings.Checkout(c.Request.Context(), booking.CheckoutCommand{
		CustomerID: caller(c),
		Spec: booking.ServiceSpec{
			ServiceType:     pricing.ServiceType(req.ServiceType),
			Bedrooms:        req.Bedrooms,
			Bathrooms:       req.Bathrooms,
			Masters:         req.Masters,
			DwellingType:    pricing.DwellingType(req.DwellingType),
			AddOns:          req.AddOns,
			ReferencePhotos: req.ReferencePhotos,
		},
		Address: booking.Address{
			Line1: req.Line1,
			City:  req.City,
			Zone:  req.Zone,
			Point: types.Point{Lat: req.Lat, Lng: req.Lng},
		},
		ScheduledAt: req.ScheduledAt,
		Instrument:  req.Instrument,
		PromoCode:   req.PromoCode,
		PromoCents:  req.PromoCents,
		CreditCents: req.CreditCents,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.Get(c.Request.Context(), pathID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if !isAdmin(c) && b.CustomerID != caller(c) && (b.PartnerID == nil || *b.PartnerID != caller(c)) {
		writeForbidden(c, "booking belongs to another account")
		return
	}
	c.JSON(http.StatusOK, b)
}

type cancelReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if !bindJSON(c, &req) {
		return
	}
	actor := caller(c)
	if isAdmin(c) {
		actor = ""
	}
	res, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: pathID(c),
		ActorID:   actor,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
