// README: Settlement endpoints; mutual ratings, standalone tips, and the
// partner payout preview.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sparkle/internal/modules/settlement"
	"sparkle/internal/types"
)

type SettlementHandler struct {
	settlement *settlement.Service
}

func NewSettlementHandler(svc *settlement.Service) *SettlementHandler {
	return &SettlementHandler{settlement: svc}
}

type customerRatingReq struct {
	BookingID      string   `json:"booking_id" binding:"required"`
	Stars          int      `json:"stars" binding:"required"`
	Compliments    []string `json:"compliments"`
	Comment        string   `json:"comment"`
	TipCents       int64    `json:"tip_cents" binding:"min=0"`
	IdempotencyKey string   `json:"idempotency_key" binding:"required"`
}

func (h *SettlementHandler) SubmitCustomerRating(c *gin.Context) {
	if !requireRole(c, "customer") {
		return
	}
	var req customerRatingReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.settlement.SubmitCustomerRating(c.Request.Context(), settlement.SubmitCustomerRatingCommand{
		BookingID:      types.ID(req.BookingID),
		RaterID:        caller(c),
		Stars:          req.Stars,
		Compliments:    req.Compliments,
		Comment:        req.Comment,
		TipCents:       req.TipCents,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type partnerRatingReq struct {
	BookingID      string   `json:"booking_id" binding:"required"`
	Stars          int      `json:"stars" binding:"required"`
	Notes          []string `json:"notes"`
	Comment        string   `json:"comment"`
	IdempotencyKey string   `json:"idempotency_key" binding:"required"`
}

func (h *SettlementHandler) SubmitPartnerRating(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req partnerRatingReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.settlement.SubmitPartnerRating(c.Request.Context(), settlement.SubmitPartnerRatingCommand{
		BookingID:      types.ID(req.BookingID),
		RaterID:        caller(c),
		Stars:          req.Stars,
		Notes:          req.Notes,
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type tipReq struct {
	BookingID      string `json:"booking_id" binding:"required"`
	AmountCents    int64  `json:"amount_cents" binding:"required,min=1"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

func (h *SettlementHandler) CaptureTip(c *gin.Context) {
	if !requireRole(c, "customer") {
		return
	}
	var req tipReq
	if !bindJSON(c, &req) {
		return
	}
	tip, err := h.settlement.CaptureTip(c.Request.Context(), settlement.CaptureTipCommand{
		BookingID:      types.ID(req.BookingID),
		CustomerID:     caller(c),
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tip)
}

type payoutCalcReq struct {
	BookingID string `json:"booking_id" binding:"required"`
}

func (h *SettlementHandler) PayoutCalc(c *gin.Context) {
	if !requireRole(c, "partner") {
		return
	}
	var req payoutCalcReq
	if !bindJSON(c, &req) {
		return
	}
	terms, err := h.settlement.PayoutFor(c.Request.Context(), types.ID(req.BookingID), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, terms)
}
