// README: Post-completion settlement records: ratings, tips, triage flags.
package settlement

import (
	"time"

	"sparkle/internal/types"
)

type RaterType string

const (
	RaterCustomer RaterType = "customer"
	RaterPartner  RaterType = "partner"
)

// Rating is one side's review of a completed booking: the customer rates the
// partner or the partner rates the customer. At most one rating per side per
// booking; IdempotencyKey pins the submission that won the insert.
type Rating struct {
	BookingID      types.ID  `json:"booking_id"`
	RaterType      RaterType `json:"rater_type"`
	RaterID        types.ID  `json:"rater_id"`
	RateeID        types.ID  `json:"ratee_id"`
	Stars          int       `json:"stars"`
	Tags           []string  `json:"tags,omitempty"`
	Comment        string    `json:"comment,omitempty"`
	TipCents       int64     `json:"tip_cents,omitempty"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type TipStatus string

const (
	TipCaptured TipStatus = "captured"
	TipDeclined TipStatus = "declined"
)

// Tip records the outcome of one capture attempt against the booking's
// payment intent. Declined tips are kept so a replay never re-charges.
type Tip struct {
	ID             types.ID    `json:"id"`
	BookingID      types.ID    `json:"booking_id"`
	Amount         types.Money `json:"amount"`
	Status         TipStatus   `json:"status"`
	Ref            string      `json:"ref,omitempty"`
	IdempotencyKey string      `json:"-"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Flags is the per-booking triage read model derived from ratings and tips.
type Flags struct {
	BookingID         types.ID `json:"booking_id"`
	LowCustomerRating bool     `json:"low_customer_rating"`
	LowPartnerRating  bool     `json:"low_partner_rating"`
	HighTip           bool     `json:"high_tip"`
	DetailedFeedback  bool     `json:"detailed_feedback"`
}
