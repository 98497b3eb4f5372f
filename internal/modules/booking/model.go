// README: Booking aggregate, status flow, and audit events.
package booking

import (
	"time"

	"sparkle/internal/modules/pricing"
	"sparkle/internal/types"
)

type Status string

const (
	StatusNone            Status = "none"
	StatusScheduled       Status = "scheduled"
	StatusPendingDispatch Status = "pending_dispatch"
	StatusSearching       Status = "searching"
	StatusAssigned        Status = "assigned"
	StatusEnroute         Status = "enroute"
	StatusArrived         Status = "arrived"
	StatusVerifying       Status = "verifying"
	StatusInProgress      Status = "in_progress"
	StatusPaused          Status = "paused"
	StatusAwaitingReview  Status = "awaiting_customer_review"
	StatusCompleted       Status = "completed"
	StatusDisputed        Status = "disputed"
	StatusNoMatch         Status = "no_match"
	StatusCancelled       Status = "cancelled"
)

type ServiceSpec struct {
	ServiceType     pricing.ServiceType  `json:"service_type"`
	Bedrooms        int                  `json:"bedrooms"`
	Bathrooms       int                  `json:"bathrooms"`
	Masters         int                  `json:"masters"`
	DwellingType    pricing.DwellingType `json:"dwelling_type"`
	AddOns          []string             `json:"addons,omitempty"`
	ReferencePhotos int                  `json:"reference_photos,omitempty"`
}

type Address struct {
	Line1 string      `json:"line1"`
	City  string      `json:"city"`
	Zone  string      `json:"zone"`
	Point types.Point `json:"point"`
}

// Totals embeds the quote by value; pricing is never re-derived after checkout.
type Totals struct {
	Base               types.Money `json:"base"`
	RoomAdjustment     types.Money `json:"room_adjustment"`
	DwellingAdjustment types.Money `json:"dwelling_adjustment"`
	AddOns             types.Money `json:"addons"`
	Surge              types.Money `json:"surge"`
	Tax                types.Money `json:"tax"`
	Promo              types.Money `json:"promo"`
	Credits            types.Money `json:"credits"`
	Total              types.Money `json:"total"`
}

// FareSubtotal is the service fare the partner is paid against: base plus
// adjustments, add-ons, and surge. Tax, promos, and credits stay out of it;
// discounts are platform-funded and tax is a pass-through.
func (t Totals) FareSubtotal() types.Money {
	return types.Money{
		Amount: t.Base.Amount + t.RoomAdjustment.Amount + t.DwellingAdjustment.Amount +
			t.AddOns.Amount + t.Surge.Amount,
		Currency: t.Total.Currency,
	}
}

type Booking struct {
	ID               types.ID     `json:"id"`
	CustomerID       types.ID     `json:"customer_id"`
	PartnerID        *types.ID    `json:"partner_id,omitempty"`
	Spec             ServiceSpec  `json:"spec"`
	Address          Address      `json:"address"`
	ScheduledAt      *time.Time   `json:"scheduled_at,omitempty"`
	Totals           Totals       `json:"totals"`
	SurgeMultiplier  float64      `json:"surge_multiplier"`
	DurationMins     int          `json:"duration_mins"`
	PaymentIntentRef string       `json:"payment_intent_ref,omitempty"`
	PromoCode        string       `json:"promo_code,omitempty"`
	Status           Status       `json:"status"`
	StatusVersion    int          `json:"status_version"`
	CreatedAt        time.Time    `json:"created_at"`
	DispatchedAt     *time.Time   `json:"dispatched_at,omitempty"`
	AssignedAt       *time.Time   `json:"assigned_at,omitempty"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`
	CancelledAt      *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason     *string      `json:"cancel_reason,omitempty"`
	CancelFee        *types.Money `json:"cancel_fee,omitempty"`
	RefundCredit     *types.Money `json:"refund_credit,omitempty"`
}

type Event struct {
	ID         int64     `json:"id"`
	BookingID  types.ID  `json:"booking_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AllowedTransitions represents the booking state flow (diagram) as code.
// Customer cancellation is legal strictly before a partner is assigned.
var AllowedTransitions = map[Status][]Status{
	StatusScheduled:       {StatusPendingDispatch, StatusCancelled},
	StatusPendingDispatch: {StatusSearching, StatusCancelled},
	StatusSearching:       {StatusAssigned, StatusNoMatch, StatusCancelled},
	StatusAssigned:        {StatusEnroute},
	StatusEnroute:         {StatusArrived},
	StatusArrived:         {StatusVerifying},
	StatusVerifying:       {StatusInProgress},
	StatusInProgress:      {StatusPaused, StatusAwaitingReview},
	StatusPaused:          {StatusInProgress},
	StatusAwaitingReview:  {StatusCompleted, StatusDisputed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// activeStatuses are every non-terminal status; one active booking per customer.
var activeStatuses = []Status{
	StatusScheduled, StatusPendingDispatch, StatusSearching, StatusAssigned,
	StatusEnroute, StatusArrived, StatusVerifying, StatusInProgress,
	StatusPaused, StatusAwaitingReview,
}

func IsActive(s Status) bool {
	for _, a := range activeStatuses {
		if a == s {
			return true
		}
	}
	return false
}
