// README: Pricing service computes quotes and splits fares into partner payouts.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"sparkle/internal/errorx"
	"sparkle/internal/types"
)

var (
	ErrInvalidServiceType    = fmt.Errorf("unknown service type: %w", errorx.ErrInvalidArgument)
	ErrInvalidDwellingType   = fmt.Errorf("unknown dwelling type: %w", errorx.ErrInvalidArgument)
	ErrPhotoRequirementUnmet = fmt.Errorf("reference photos below service requirement: %w", errorx.ErrPreconditionFailed)
)

type Service struct {
	surge      SurgePolicy
	takeRate   decimal.Decimal
	surgeShare decimal.Decimal
}

// NewService builds the engine. takeRate must sit in (0,1) and surgeShare
// in [0,1]; both are validated again on every payout call.
func NewService(surge SurgePolicy, takeRate, surgeShare decimal.Decimal) *Service {
	if surge == nil {
		surge = NoSurge{}
	}
	return &Service{surge: surge, takeRate: takeRate, surgeShare: surgeShare}
}

// Quote prices a service request. All math is integer cents except the
// surge line, which is rounded half-even to the cent.
func (s *Service) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	rate, ok := rateTable[cmd.ServiceType]
	if !ok {
		return Quote{}, ErrInvalidServiceType
	}
	adj, ok := dwellingAdjustments[cmd.DwellingType]
	if !ok {
		return Quote{}, ErrInvalidDwellingType
	}
	if cmd.Bedrooms < 0 || cmd.Bathrooms < 0 || cmd.Masters < 0 {
		return Quote{}, fmt.Errorf("negative room count: %w", errorx.ErrInvalidArgument)
	}
	if cmd.ReferencePhotos < rate.RequiredRefPhotos {
		return Quote{}, ErrPhotoRequirementUnmet
	}

	rooms := rate.PerBedroom*int64(cmd.Bedrooms) +
		rate.PerBathroom*int64(cmd.Bathrooms) +
		rate.PerMaster*int64(cmd.Masters)

	var addOnTotal int64
	extraMins := 0
	for _, name := range cmd.AddOns {
		a, ok := addOnTable[name]
		if !ok {
			return Quote{}, fmt.Errorf("unknown add-on %q: %w", name, errorx.ErrInvalidArgument)
		}
		addOnTotal += a.Price
		extraMins += a.ExtraMins
	}

	subtotal := rate.Base + rooms + adj + addOnTotal

	mult := s.surge.Multiplier(cmd.Zone, cmd.When)
	if mult < 1.0 {
		mult = 1.0
	}
	var surgeAmount int64
	if mult > 1.0 {
		surgeAmount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromFloat(mult - 1)).
			RoundBank(0).
			IntPart()
	}

	q := Quote{
		ServiceType:        cmd.ServiceType,
		Base:               types.USD(rate.Base),
		RoomAdjustment:     types.USD(rooms),
		DwellingAdjustment: types.USD(adj),
		AddOnTotal:         types.USD(addOnTotal),
		SurgeActive:        mult > 1.0,
		SurgeMultiplier:    mult,
		SurgeAmount:        types.USD(surgeAmount),
		Total:              types.USD(subtotal + surgeAmount),
		DurationMins:       rate.BaseMins + rate.PerRoomMins*(cmd.Bedrooms+cmd.Bathrooms+cmd.Masters) + extraMins,
	}

	q.Breakdown = append(q.Breakdown, BreakdownLine{Label: "base", Amount: q.Base})
	if rooms != 0 {
		q.Breakdown = append(q.Breakdown, BreakdownLine{Label: "rooms", Amount: q.RoomAdjustment})
	}
	if adj != 0 {
		q.Breakdown = append(q.Breakdown, BreakdownLine{Label: "dwelling", Amount: q.DwellingAdjustment})
	}
	for _, name := range cmd.AddOns {
		q.Breakdown = append(q.Breakdown, BreakdownLine{Label: name, Amount: types.USD(addOnTable[name].Price)})
	}
	if surgeAmount > 0 {
		q.Breakdown = append(q.Breakdown, BreakdownLine{Label: "surge", Amount: q.SurgeAmount})
	}
	return q, nil
}

// Payout applies the configured take rate and surge share to a collected fare.
func (s *Service) Payout(ctx context.Context, fareTotal, surgeAmount types.Money) (PayoutBreakdown, error) {
	return PayoutCalc(fareTotal, surgeAmount, s.takeRate, s.surgeShare)
}

// PayoutCalc splits a collected fare into the partner's cut:
//
//	base  = (fareTotal - surgeAmount) * (1 - takeRate)
//	share = surgeAmount * surgeShare
//	net   = base + share
//
// Each figure is rounded half-even to the cent, so net never exceeds
// fareTotal for any takeRate in (0,1) and surgeShare in [0,1].
func PayoutCalc(fareTotal, surgeAmount types.Money, takeRate, surgeShare decimal.Decimal) (PayoutBreakdown, error) {
	if fareTotal.Amount < 0 {
		return PayoutBreakdown{}, fmt.Errorf("negative fare: %w", errorx.ErrInvalidArgument)
	}
	if surgeAmount.Amount < 0 || surgeAmount.Amount > fareTotal.Amount {
		return PayoutBreakdown{}, fmt.Errorf("surge amount outside [0, fare]: %w", errorx.ErrInvalidArgument)
	}
	one := decimal.NewFromInt(1)
	if takeRate.Sign() <= 0 || takeRate.GreaterThanOrEqual(one) {
		return PayoutBreakdown{}, fmt.Errorf("take rate outside (0, 1): %w", errorx.ErrInvalidArgument)
	}
	if surgeShare.Sign() < 0 || surgeShare.GreaterThan(one) {
		return PayoutBreakdown{}, fmt.Errorf("surge share outside [0, 1]: %w", errorx.ErrInvalidArgument)
	}

	base := decimal.NewFromInt(fareTotal.Amount - surgeAmount.Amount).
		Mul(one.Sub(takeRate)).
		RoundBank(0).
		IntPart()
	share := decimal.NewFromInt(surgeAmount.Amount).
		Mul(surgeShare).
		RoundBank(0).
		IntPart()

	cur := fareTotal.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	return PayoutBreakdown{
		Base:       types.Money{Amount: base, Currency: cur},
		SurgeShare: types.Money{Amount: share, Currency: cur},
		Net:        types.Money{Amount: base + share, Currency: cur},
	}, nil
}
