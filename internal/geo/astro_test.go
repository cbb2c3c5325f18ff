package geo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSunTimes_London(t *testing.T) {
	c := NewCalculator(&Location{Name: "London", Latitude: 51.5074, Longitude: -0.1278}, "Europe/London")

	day := time.Date(2026, 6, 21, 12, 0, 0, 0, time.UTC)
	times, err := c.SunTimes(context.Background(), day)
	if err != nil {
		t.Fatalf("SunTimes() error = %v", err)
	}

	// Midsummer sunrise in London is around 04:43 BST, sunset around 21:21 BST.
	sunrise := times.Sunrise.In(c.Timezone())
	if sunrise.Hour() != 4 {
		t.Errorf("sunrise = %s, want around 04:4x", sunrise.Format("15:04"))
	}
	sunset := times.Sunset.In(c.Timezone())
	if sunset.Hour() != 21 {
		t.Errorf("sunset = %s, want around 21:2x", sunset.Format("15:04"))
	}
	if !times.Dawn.Before(times.Sunrise) || !times.Sunset.Before(times.Dusk) {
		t.Errorf("expected dawn < sunrise and sunset < dusk: %+v", times)
	}
}

func TestSunTimes_Cached(t *testing.T) {
	c := NewCalculator(&Location{Latitude: 48.85, Longitude: 2.35}, "Europe/Paris")
	day := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)

	a, err := c.SunTimes(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.SunTimes(context.Background(), day.Add(3*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected cached result for the same calendar day")
	}
}

func TestSunTimes_NoLocation(t *testing.T) {
	c := NewCalculator(nil, "UTC")
	_, err := c.SunTimes(context.Background(), time.Now())
	if !errors.Is(err, ErrNoLocation) {
		t.Errorf("err = %v, want ErrNoLocation", err)
	}
}

func TestSunTimes_PolarNight(t *testing.T) {
	// Tromsø has no sunrise in mid-December.
	c := NewCalculator(&Location{Latitude: 69.65, Longitude: 18.96}, "Europe/Oslo")
	_, err := c.SunTimes(context.Background(), time.Date(2026, 12, 21, 12, 0, 0, 0, time.UTC))
	if err == nil {
		t.Error("expected error for polar night")
	}
}
