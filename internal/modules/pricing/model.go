// README: Service/dwelling catalogs, rate table, and quote/payout value objects.
package pricing

import (
	"time"

	"sparkle/internal/types"
)

type ServiceType string

const (
	ServiceStandard         ServiceType = "standard"
	ServiceDeep             ServiceType = "deep"
	ServiceBathroom         ServiceType = "bathroom"
	ServiceMoveOut          ServiceType = "move_out"
	ServicePostConstruction ServiceType = "post_construction"
)

type DwellingType string

const (
	DwellingApartment DwellingType = "apartment"
	DwellingStudio    DwellingType = "studio"
	DwellingHouse     DwellingType = "house"
	DwellingTownhouse DwellingType = "townhouse"
	DwellingVilla     DwellingType = "villa"
	DwellingOffice    DwellingType = "office"
)

// Rate prices one service type. Amounts are in cents.
type Rate struct {
	Base                 int64
	PerBedroom           int64
	PerBathroom          int64
	PerMaster            int64
	RequiredBeforePhotos int
	RequiredRefPhotos    int
	BaseMins             int
	PerRoomMins          int
}

var rateTable = map[ServiceType]Rate{
	ServiceStandard:         {Base: 9000, PerBedroom: 1500, PerBathroom: 1200, PerMaster: 2000, RequiredBeforePhotos: 1, BaseMins: 60, PerRoomMins: 25},
	ServiceDeep:             {Base: 15000, PerBedroom: 2500, PerBathroom: 2000, PerMaster: 3500, RequiredBeforePhotos: 2, BaseMins: 120, PerRoomMins: 40},
	ServiceBathroom:         {Base: 7000, PerBedroom: 0, PerBathroom: 2500, PerMaster: 3000, RequiredBeforePhotos: 2, BaseMins: 45, PerRoomMins: 30},
	ServiceMoveOut:          {Base: 18000, PerBedroom: 2800, PerBathroom: 2200, PerMaster: 3800, RequiredBeforePhotos: 1, RequiredRefPhotos: 2, BaseMins: 150, PerRoomMins: 45},
	ServicePostConstruction: {Base: 22000, PerBedroom: 3000, PerBathroom: 2500, PerMaster: 4000, RequiredBeforePhotos: 1, RequiredRefPhotos: 2, BaseMins: 180, PerRoomMins: 50},
}

// dwellingAdjustments are flat amounts layered on top of the room math.
var dwellingAdjustments = map[DwellingType]int64{
	DwellingApartment: 0,
	DwellingStudio:    -1000,
	DwellingHouse:     2000,
	DwellingTownhouse: 1000,
	DwellingVilla:     5000,
	DwellingOffice:    3000,
}

type AddOn struct {
	Price     int64
	ExtraMins int
}

var addOnTable = map[string]AddOn{
	"inside_fridge":    {Price: 2500, ExtraMins: 20},
	"inside_oven":      {Price: 2500, ExtraMins: 20},
	"interior_windows": {Price: 3000, ExtraMins: 30},
	"laundry":          {Price: 2000, ExtraMins: 15},
	"balcony":          {Price: 1500, ExtraMins: 15},
}

type QuoteCommand struct {
	ServiceType     ServiceType
	Bedrooms        int
	Bathrooms       int
	Masters         int
	DwellingType    DwellingType
	AddOns          []string
	ReferencePhotos int
	Zone            string
	When            time.Time
}

type BreakdownLine struct {
	Label  string      `json:"label"`
	Amount types.Money `json:"amount"`
}

type Quote struct {
	ServiceType        ServiceType     `json:"service_type"`
	Base               types.Money     `json:"base"`
	RoomAdjustment     types.Money     `json:"room_adjustment"`
	DwellingAdjustment types.Money     `json:"dwelling_adjustment"`
	AddOnTotal         types.Money     `json:"addon_total"`
	SurgeActive        bool            `json:"surge_active"`
	SurgeMultiplier    float64         `json:"surge_multiplier"`
	SurgeAmount        types.Money     `json:"surge_amount"`
	Total              types.Money     `json:"total"`
	DurationMins       int             `json:"duration_mins"`
	Breakdown          []BreakdownLine `json:"breakdown"`
}

type PayoutBreakdown struct {
	Base       types.Money `json:"base"`
	SurgeShare types.Money `json:"surge_share"`
	Net        types.Money `json:"net"`
}

// RequiredBeforePhotos returns the before-photo gate for a service type.
// Unknown types get the loosest requirement so a stale job can still start.
func RequiredBeforePhotos(st ServiceType) int {
	if r, ok := rateTable[st]; ok {
		return r.RequiredBeforePhotos
	}
	return 1
}

// RequiredAfterPhotos is uniform across service types.
func RequiredAfterPhotos() int { return 2 }

func ValidServiceType(st ServiceType) bool {
	_, ok := rateTable[st]
	return ok
}
