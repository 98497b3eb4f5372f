// README: HTTP router registration; every route, its role gate, and the module
// service behind it.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sparkle/internal/http/handlers"
	"sparkle/internal/http/middleware"
	"sparkle/internal/infra"
	"sparkle/internal/modules/booking"
	"sparkle/internal/modules/dispatch"
	"sparkle/internal/modules/job"
	"sparkle/internal/modules/partner"
	"sparkle/internal/modules/pricing"
	"sparkle/internal/modules/settlement"
)

type ServerDeps struct {
	Pricing    *pricing.Service
	Bookings   *booking.Service
	Dispatch   *dispatch.Service
	Jobs       *job.Service
	Settlement *settlement.Service
	Partners   *partner.Service
	Verifier   infra.TokenVerifier
	Log        *zap.Logger
}

// NewRouter builds the full API surface. Everything under /api sits behind
// bearer auth; role gates live in the handlers and ownership in the services.
func NewRouter(d ServerDeps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logging(log), middleware.Recovery(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", middleware.Auth(d.Verifier))

	pricingHandler := handlers.NewPricingHandler(d.Pricing)
	api.POST("/pricing/quote", pricingHandler.Quote)

	bookingHandler := handlers.NewBookingHandler(d.Bookings)
	api.POST("/bookings", bookingHandler.Create)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	dispatchHandler := handlers.NewDispatchHandler(d.Dispatch)
	api.GET("/dispatch/status/:id", dispatchHandler.Status)
	api.GET("/offers/poll", dispatchHandler.Poll)
	api.POST("/offers/:id/accept", dispatchHandler.Accept)
	api.POST("/offers/:id/decline", dispatchHandler.Decline)

	jobHandler := handlers.NewJobHandler(d.Jobs, d.Partners)
	api.GET("/jobs/:id", jobHandler.Get)
	api.POST("/jobs/:id/enroute", jobHandler.Enroute)
	api.POST("/jobs/:id/arrived", jobHandler.Arrive)
	api.POST("/jobs/:id/verify/start", jobHandler.StartVerification)
	api.POST("/jobs/:id/verify/complete", jobHandler.CompleteVerification)
	api.POST("/jobs/:id/photos", jobHandler.AddPhotos)
	api.POST("/jobs/:id/start", jobHandler.Start)
	api.POST("/jobs/:id/pause", jobHandler.Pause)
	api.POST("/jobs/:id/resume", jobHandler.Resume)
	api.POST("/jobs/:id/complete", jobHandler.Complete)
	api.POST("/jobs/:id/approve", jobHandler.Approve)
	api.POST("/jobs/:id/issue", jobHandler.RaiseIssue)

	settlementHandler := handlers.NewSettlementHandler(d.Settlement)
	api.POST("/ratings/customer", settlementHandler.SubmitCustomerRating)
	api.POST("/ratings/partner", settlementHandler.SubmitPartnerRating)
	api.POST("/billing/tip", settlementHandler.CaptureTip)
	api.POST("/partner/earnings/payout-calc", settlementHandler.PayoutCalc)

	partnerHandler := handlers.NewPartnerHandler(d.Partners)
	api.PUT("/partners/:id/location", partnerHandler.UpdateLocation)

	return r
}
