package zodiac

import (
	"math"
	"time"
)

// HouseCount is the number of houses in a chart.
const HouseCount = 12

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi

	// julianDayUnixEpoch is the Julian Day of 1970-01-01T00:00:00Z.
	julianDayUnixEpoch = 2440587.5
	// julianDayJ2000 is the Julian Day of 2000-01-01T12:00:00 (J2000.0).
	julianDayJ2000 = 2451545.0
)

// EqualHouseCusps returns the twelve cusp longitudes of the Equal House
// system: house 1 starts at the ascendant and each house spans 30 degrees.
func EqualHouseCusps(ascendant float64) [HouseCount]float64 {
	var cusps [HouseCount]float64
	for i := range cusps {
		cusps[i] = Normalize(ascendant + float64(i)*SignSpan)
	}
	return cusps
}

// HouseOf returns the Equal House number (1-12) whose [start, end) interval
// contains lon, wrapping across 360 -> 0.
func HouseOf(lon, ascendant float64) int {
	offset := Normalize(lon - ascendant)
	h := int(math.Floor(offset/SignSpan)) + 1
	if h > HouseCount {
		h = HouseCount
	}
	return h
}

// JulianDay converts an instant to a Julian Day number (UT).
func JulianDay(t time.Time) float64 {
	secs := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return secs/86400 + julianDayUnixEpoch
}

// MeanObliquity returns the mean obliquity of the ecliptic in degrees at t,
// using the IAU 1980 polynomial in Julian centuries from J2000.0.
func MeanObliquity(t time.Time) float64 {
	c := (JulianDay(t) - julianDayJ2000) / 36525
	arcsec := 84381.448 - 46.8150*c - 0.00059*c*c + 0.001813*c*c*c
	return arcsec / 3600
}

// Ascendant returns the ecliptic longitude rising on the eastern horizon for
// a local sidereal time (degrees), obliquity (degrees) and geographic
// latitude (degrees). Latitude must be strictly inside (-90, 90).
func Ascendant(lst, obliquity, latitude float64) float64 {
	theta := lst * deg2rad
	eps := obliquity * deg2rad
	phi := latitude * deg2rad

	y := math.Cos(theta)
	x := -(math.Sin(theta)*math.Cos(eps) + math.Tan(phi)*math.Sin(eps))
	return Normalize(math.Atan2(y, x) * rad2deg)
}

// Midheaven returns the ecliptic longitude culminating on the local meridian.
func Midheaven(lst, obliquity float64) float64 {
	theta := lst * deg2rad
	eps := obliquity * deg2rad
	return Normalize(math.Atan2(math.Sin(theta), math.Cos(theta)*math.Cos(eps)) * rad2deg)
}
