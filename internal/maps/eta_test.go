// README: Static ETA and haversine tests against known distances.
package maps

import (
	"context"
	"math"
	"testing"
	"time"

	"sparkle/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 40.7580, Lng: -73.9855},
			b:         types.Point{Lat: 40.7580, Lng: -73.9855},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Times Square to JFK (~21km)",
			a:         types.Point{Lat: 40.7580, Lng: -73.9855},
			b:         types.Point{Lat: 40.6413, Lng: -73.7781},
			wantKm:    21.7,
			tolerance: 2.0,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	d1 := HaversineKm(a, b)
	d2 := HaversineKm(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestStaticGeocoderETA(t *testing.T) {
	geo := NewStaticGeocoder(30)

	// ~21.7km at 30km/h is roughly 43 minutes.
	from := types.Point{Lat: 40.7580, Lng: -73.9855}
	to := types.Point{Lat: 40.6413, Lng: -73.7781}
	eta, err := geo.ETA(context.Background(), from, to, time.Now())
	if err != nil {
		t.Fatalf("eta: %v", err)
	}
	if eta < 35*time.Minute || eta > 55*time.Minute {
		t.Errorf("eta = %s, want roughly 43m", eta)
	}

	// Zero distance is a zero ETA.
	eta, err = geo.ETA(context.Background(), from, from, time.Now())
	if err != nil {
		t.Fatalf("eta: %v", err)
	}
	if eta != 0 {
		t.Errorf("eta for same point = %s, want 0", eta)
	}
}

func TestStaticGeocoderDefaultsSpeed(t *testing.T) {
	geo := NewStaticGeocoder(0)
	if geo.SpeedKmh != 30 {
		t.Errorf("default speed = %f, want 30", geo.SpeedKmh)
	}
}
