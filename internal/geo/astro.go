package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AstroTimes contains astronomical times for a day
type AstroTimes struct {
	Dawn     time.Time `json:"dawn"`
	Sunrise  time.Time `json:"sunrise"`
	Noon     time.Time `json:"noon"`
	Sunset   time.Time `json:"sunset"`
	Dusk     time.Time `json:"dusk"`
	Midnight time.Time `json:"midnight"`
}

// ErrNoLocation is returned when no coordinates are configured.
var ErrNoLocation = errors.New("geo: no location configured")

// Location represents a point on earth
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Calculator calculates astronomical times for a fixed location
type Calculator struct {
	mu    sync.RWMutex
	cache map[string]*AstroTimes // cache by date

	location *Location
	tz       *time.Location
}

// NewCalculator creates a calculator for pre-configured coordinates.
// A nil location yields a calculator that always returns ErrNoLocation, which
// callers treat as stale data.
func NewCalculator(loc *Location, timezone string) *Calculator {
	tz, err := time.LoadLocation(timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", timezone).Msg("Failed to load timezone, using UTC")
		tz = time.UTC
	}

	if loc != nil {
		log.Info().
			Str("name", loc.Name).
			Float64("lat", loc.Latitude).
			Float64("lon", loc.Longitude).
			Msg("Geo calculator initialized with pre-configured coordinates")
	}

	return &Calculator{
		cache:    make(map[string]*AstroTimes),
		location: loc,
		tz:       tz,
	}
}

// Timezone returns the calculator's timezone
func (c *Calculator) Timezone() *time.Location {
	return c.tz
}

// SunTimes returns astronomical times for the calendar day containing day
// (in the calculator's timezone).
func (c *Calculator) SunTimes(_ context.Context, day time.Time) (*AstroTimes, error) {
	if c.location == nil {
		return nil, ErrNoLocation
	}

	date := day.In(c.tz)
	cacheKey := date.Format("2006-01-02")

	c.mu.RLock()
	cached, ok := c.cache[cacheKey]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	times := c.calculate(c.location.Latitude, c.location.Longitude, date, c.tz)
	if times.Sunrise.Equal(times.Sunset) {
		return nil, fmt.Errorf("geo: no sunrise/sunset on %s", cacheKey)
	}

	c.mu.Lock()
	c.cache[cacheKey] = times
	c.mu.Unlock()

	return times, nil
}

// calculate computes astronomical times using solar calculations
func (c *Calculator) calculate(lat, lon float64, date time.Time, tz *time.Location) *AstroTimes {
	// Julian day - add 0.5 because the NOAA sunrise equation expects JD at noon, not midnight
	jd := toJulianDay(date) + 0.5

	// Solar noon
	noon := solarNoon(jd, lon, tz, date)

	// Sun times
	sunrise := sunTime(jd, lat, lon, tz, date, -0.833, true)
	sunset := sunTime(jd, lat, lon, tz, date, -0.833, false)
	dawn := sunTime(jd, lat, lon, tz, date, -6.0, true)  // Civil dawn
	dusk := sunTime(jd, lat, lon, tz, date, -6.0, false) // Civil dusk

	// Midnight is next day at 00:00
	midnight := time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, tz)

	return &AstroTimes{
		Dawn:     dawn,
		Sunrise:  sunrise,
		Noon:     noon,
		Sunset:   sunset,
		Dusk:     dusk,
		Midnight: midnight,
	}
}

// toJulianDay converts a date to Julian day number
func toJulianDay(t time.Time) float64 {
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())

	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5
}

// solarNoon calculates solar noon
func solarNoon(jd, lon float64, tz *time.Location, date time.Time) time.Time {
	// Approximate solar noon
	n := jd - 2451545.0 + 0.0008

	// Mean solar noon
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	// Solar transit
	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	// Convert to time
	return julianToTime(jTransit, tz, date)
}

// sunTime calculates sunrise or sunset time
func sunTime(jd, lat, lon float64, tz *time.Location, date time.Time, angle float64, rising bool) time.Time {
	// Approximate solar noon
	n := jd - 2451545.0 + 0.0008
	jStar := n - lon/360.0

	// Solar mean anomaly
	m := math.Mod(357.5291+0.98560028*jStar, 360.0)
	mRad := m * math.Pi / 180.0

	// Equation of center
	c := 1.9148*math.Sin(mRad) + 0.02*math.Sin(2*mRad) + 0.0003*math.Sin(3*mRad)

	// Ecliptic longitude
	lambda := math.Mod(m+c+180+102.9372, 360.0)
	lambdaRad := lambda * math.Pi / 180.0

	// Solar transit
	jTransit := 2451545.0 + jStar + 0.0053*math.Sin(mRad) - 0.0069*math.Sin(2*lambdaRad)

	// Declination of the sun
	sinDec := math.Sin(lambdaRad) * math.Sin(23.44*math.Pi/180.0)
	dec := math.Asin(sinDec)

	// Hour angle
	latRad := lat * math.Pi / 180.0
	angleRad := angle * math.Pi / 180.0

	cosOmega := (math.Sin(angleRad) - math.Sin(latRad)*math.Sin(dec)) / (math.Cos(latRad) * math.Cos(dec))

	// Clamp to valid range
	if cosOmega > 1 {
		cosOmega = 1
	} else if cosOmega < -1 {
		cosOmega = -1
	}

	omega := math.Acos(cosOmega) * 180.0 / math.Pi

	var jTime float64
	if rising {
		jTime = jTransit - omega/360.0
	} else {
		jTime = jTransit + omega/360.0
	}

	return julianToTime(jTime, tz, date)
}

// julianToTime converts Julian day to time.Time
func julianToTime(jd float64, tz *time.Location, refDate time.Time) time.Time {
	// Convert Julian day to Unix timestamp
	unixTime := (jd - 2440587.5) * 86400.0
	t := time.Unix(int64(unixTime), int64((unixTime-math.Floor(unixTime))*1e9)).In(tz)

	// Pin to the reference date in the target timezone
	return time.Date(
		refDate.Year(), refDate.Month(), refDate.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, tz,
	)
}
