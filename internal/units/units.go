// Package units provides temperature conversion and local-day windowing
// helpers shared by every component that touches a Forecast or Bracket.
package units

import (
	"fmt"
	"math"
	"time"
)

// KelvinToFahrenheit converts a Kelvin reading to Fahrenheit precisely,
// with no intermediate rounding. F = (K-273.15)*9/5 + 32.
func KelvinToFahrenheit(k float64) float64 {
	return (k-273.15)*9.0/5.0 + 32.0
}

// CelsiusToFahrenheit converts a Celsius reading to Fahrenheit precisely.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// RoundTo rounds x to the given number of decimal places, half away from
// zero. Used for the Polymarket whole-degree rounding chain (§4.1) where
// the intermediate step is one decimal place.
func RoundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	if x >= 0 {
		return math.Floor(x*p+0.5) / p
	}
	return math.Ceil(x*p-0.5) / p
}

// RoundHalfUp rounds x to the nearest whole number, rounding .5 up
// (toward positive infinity), matching the METAR resolution convention
// described in §4.1.
func RoundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// LocalMidnightUTC returns local midnight of the given event day in the
// named IANA zone, expressed in UTC. Forecast.start_utc is required to
// equal this value (§3). DST transitions are handled by time.Date /
// time.Location the same way the teacher's Station.Location() helpers do.
func LocalMidnightUTC(eventDay string, zone string) (time.Time, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("units: load location %q: %w", zone, err)
	}
	d, err := time.ParseInLocation("2006-01-02", eventDay, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("units: parse event day %q: %w", eventDay, err)
	}
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return midnight.UTC(), nil
}

// LocalEventDay returns the YYYY-MM-DD calendar day that instant t falls
// on in the named zone.
func LocalEventDay(t time.Time, zone string) (string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("units: load location %q: %w", zone, err)
	}
	return t.In(loc).Format("2006-01-02"), nil
}

// AddEventDays returns the event day that is n calendar days after day in
// the named zone, preserving local-midnight semantics across DST shifts.
func AddEventDays(day string, zone string, n int) (string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("units: load location %q: %w", zone, err)
	}
	d, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return "", fmt.Errorf("units: parse event day %q: %w", day, err)
	}
	return d.AddDate(0, 0, n).Format("2006-01-02"), nil
}
