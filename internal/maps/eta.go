// README: Travel-time estimation behind the Geocoder interface; Google Directions or static haversine.
package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	gmaps "googlemaps.github.io/maps"

	"sparkle/internal/types"
)

// Geocoder estimates travel time between two points at a given departure time.
type Geocoder interface {
	ETA(ctx context.Context, from, to types.Point, when time.Time) (time.Duration, error)
}

// GoogleGeocoder queries the Google Directions API in driving mode.
type GoogleGeocoder struct {
	client *gmaps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	client, err := gmaps.NewClient(gmaps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("maps client: %w", err)
	}
	return &GoogleGeocoder{client: client}, nil
}

func (g *GoogleGeocoder) ETA(ctx context.Context, from, to types.Point, when time.Time) (time.Duration, error) {
	r := &gmaps.DirectionsRequest{
		Origin:        fmt.Sprintf("%f,%f", from.Lat, from.Lng),
		Destination:   fmt.Sprintf("%f,%f", to.Lat, to.Lng),
		Mode:          gmaps.TravelModeDriving,
		DepartureTime: fmt.Sprintf("%d", when.Unix()),
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}
	return routes[0].Legs[0].Duration, nil
}

// StaticGeocoder estimates by great-circle distance at a fixed speed. Default
// wiring when no Maps API key is configured; also the test implementation.
type StaticGeocoder struct {
	SpeedKmh float64
}

func NewStaticGeocoder(speedKmh float64) *StaticGeocoder {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return &StaticGeocoder{SpeedKmh: speedKmh}
}

func (s *StaticGeocoder) ETA(_ context.Context, from, to types.Point, _ time.Time) (time.Duration, error) {
	km := HaversineKm(from, to)
	hours := km / s.SpeedKmh
	return time.Duration(hours * float64(time.Hour)), nil
}

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
