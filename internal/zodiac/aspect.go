package zodiac

import "math"

// aspectEpsilon absorbs floating-point noise at the tolerance boundary so an
// orb of exactly the tolerance still matches.
const aspectEpsilon = 1e-9

// AspectType is a named ideal angle with a fixed tolerance (orb limit).
type AspectType struct {
	Name      string
	Angle     float64
	Tolerance float64
}

// Supported aspect types, ordered by ideal angle.
var (
	Conjunction = AspectType{Name: "Conjunction", Angle: 0, Tolerance: 8}
	Sextile     = AspectType{Name: "Sextile", Angle: 60, Tolerance: 6}
	Square      = AspectType{Name: "Square", Angle: 90, Tolerance: 8}
	Trine       = AspectType{Name: "Trine", Angle: 120, Tolerance: 8}
	Opposition  = AspectType{Name: "Opposition", Angle: 180, Tolerance: 8}
)

// AspectTypes lists every aspect that FindAspects evaluates.
var AspectTypes = []AspectType{Conjunction, Sextile, Square, Trine, Opposition}

// Orb returns the absolute deviation of sep from the ideal angle.
func (a AspectType) Orb(sep float64) float64 {
	return math.Abs(sep - a.Angle)
}

// Matches reports whether sep lies within tolerance of the ideal angle.
// The tolerance is inclusive.
func (a AspectType) Matches(sep float64) bool {
	return a.Orb(sep) <= a.Tolerance+aspectEpsilon
}

// BodyLongitude pairs a body with its ecliptic longitude.
type BodyLongitude struct {
	Body      Body
	Longitude float64
}

// Aspect is a matched aspect between two bodies. BodyA precedes BodyB in the
// order the bodies were supplied.
type Aspect struct {
	BodyA      Body
	BodyB      Body
	Type       AspectType
	Separation float64
	Orb        float64
}

// MatchAspects returns every aspect type whose tolerance window contains sep.
// Only separations on a tolerance boundary can match more than one type.
func MatchAspects(sep float64) []AspectType {
	var out []AspectType
	for _, at := range AspectTypes {
		if at.Matches(sep) {
			out = append(out, at)
		}
	}
	return out
}

// FindAspects evaluates every unordered pair of positions exactly once, in
// input order, and returns all matches.
func FindAspects(positions []BodyLongitude) []Aspect {
	var out []Aspect
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			a, b := positions[i], positions[j]
			sep := Separation(a.Longitude, b.Longitude)
			for _, at := range MatchAspects(sep) {
				out = append(out, Aspect{
					BodyA:      a.Body,
					BodyB:      b.Body,
					Type:       at,
					Separation: sep,
					Orb:        at.Orb(sep),
				})
			}
		}
	}
	return out
}
