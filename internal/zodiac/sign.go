package zodiac

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownSign is returned by ParseSign for names outside the twelve signs.
var ErrUnknownSign = errors.New("unknown zodiac sign")

// Sign is a 30 degree bucket of ecliptic longitude, Aries (0) through Pisces (11).
type Sign int

const (
	Aries Sign = iota
	Taurus
	Gemini
	Cancer
	Leo
	Virgo
	Libra
	Scorpio
	Sagittarius
	Capricorn
	Aquarius
	Pisces
)

// SignSpan is the width of one sign in degrees.
const SignSpan = 30.0

var signNames = [...]string{
	Aries:       "Aries",
	Taurus:      "Taurus",
	Gemini:      "Gemini",
	Cancer:      "Cancer",
	Leo:         "Leo",
	Virgo:       "Virgo",
	Libra:       "Libra",
	Scorpio:     "Scorpio",
	Sagittarius: "Sagittarius",
	Capricorn:   "Capricorn",
	Aquarius:    "Aquarius",
	Pisces:      "Pisces",
}

// String returns the title-cased sign name.
func (s Sign) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Sign(%d)", int(s))
	}
	return signNames[s]
}

// Valid reports whether s is one of the twelve signs.
func (s Sign) Valid() bool {
	return s >= Aries && s <= Pisces
}

// ParseSign resolves a sign name case-insensitively.
func ParseSign(name string) (Sign, error) {
	n := strings.TrimSpace(name)
	for i, candidate := range signNames {
		if strings.EqualFold(candidate, n) {
			return Sign(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSign, name)
}

// SignNames returns the twelve sign names in zodiac order.
func SignNames() []string {
	out := make([]string, len(signNames))
	copy(out, signNames[:])
	return out
}

// Normalize folds any finite longitude into [0, 360).
func Normalize(lon float64) float64 {
	n := math.Mod(lon, 360)
	if n < 0 {
		n += 360
	}
	// Tiny negative inputs round up to exactly 360 after the addition.
	if n >= 360 {
		n = 0
	}
	return n
}

// SignOf buckets a longitude into its sign and the degree within that sign.
// The sign index is always in [0, 11] and the degree in [0, 30).
func SignOf(lon float64) (Sign, float64) {
	n := Normalize(lon)
	idx := int(math.Floor(n / SignSpan))
	if idx > int(Pisces) {
		idx = int(Pisces)
	}
	deg := n - float64(idx)*SignSpan
	if deg < 0 {
		deg = 0
	}
	return Sign(idx), deg
}

// Place rounds lon to the given decimal places and buckets the rounded value,
// so the reported longitude, sign and degree always agree. A longitude that
// rounds up to 360 folds to Aries 0.
func Place(lon float64, places int) (float64, Sign, float64) {
	r := Normalize(Round(Normalize(lon), places))
	sign, deg := SignOf(r)
	return r, sign, Round(deg, places)
}

// SignedDelta returns the shortest signed arc from one longitude to another,
// in (-180, 180]. A negative value means motion toward decreasing longitude.
func SignedDelta(from, to float64) float64 {
	d := Normalize(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

// Separation returns the smaller angle between two longitudes, in [0, 180].
func Separation(a, b float64) float64 {
	d := math.Abs(Normalize(a) - Normalize(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// IsRetrograde reports apparent backward motion for a longitudinal speed.
func IsRetrograde(speed float64) bool {
	return speed < 0
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
