// README: Surge policy interface plus the zone/hour table and no-op implementations.
package pricing

import "time"

// SurgePolicy reports the demand multiplier for a zone at a point in time.
// 1.0 means no surge; values below 1.0 are treated as 1.0.
type SurgePolicy interface {
	Multiplier(zone string, at time.Time) float64
}

// NoSurge always reports 1.0.
type NoSurge struct{}

func (NoSurge) Multiplier(string, time.Time) float64 { return 1.0 }

// HourWindow applies a multiplier when the local hour falls in [FromHour, ToHour).
// Windows may wrap midnight (e.g. 22 to 2).
type HourWindow struct {
	FromHour   int
	ToHour     int
	Multiplier float64
}

func (w HourWindow) contains(h int) bool {
	if w.FromHour <= w.ToHour {
		return h >= w.FromHour && h < w.ToHour
	}
	return h >= w.FromHour || h < w.ToHour
}

// TableSurgePolicy keys hour windows by zone. The "*" zone acts as a
// fallback for zones without an entry. Overlapping windows take the max.
type TableSurgePolicy struct {
	Zones map[string][]HourWindow
}

func NewTableSurgePolicy(zones map[string][]HourWindow) *TableSurgePolicy {
	return &TableSurgePolicy{Zones: zones}
}

// DefaultSurgeTable covers the morning and evening cleaning rushes.
func DefaultSurgeTable() *TableSurgePolicy {
	return NewTableSurgePolicy(map[string][]HourWindow{
		"*": {
			{FromHour: 8, ToHour: 11, Multiplier: 1.15},
			{FromHour: 17, ToHour: 20, Multiplier: 1.25},
		},
	})
}

func (p *TableSurgePolicy) Multiplier(zone string, at time.Time) float64 {
	windows, ok := p.Zones[zone]
	if !ok {
		windows = p.Zones["*"]
	}
	mult := 1.0
	h := at.Hour()
	for _, w := range windows {
		if w.contains(h) && w.Multiplier > mult {
			mult = w.Multiplier
		}
	}
	return mult
}
