// Package zodiac holds the pure astrology math used by the chart and transit
// services: the closed set of tracked bodies, the twelve sign buckets, angular
// separation, aspect matching and Equal House division. Nothing in this
// package performs I/O; planetary positions are supplied by the ephemeris
// package.
package zodiac

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBody is returned by ParseBody for names outside the tracked set.
var ErrUnknownBody = errors.New("unknown celestial body")

// Body is one of the ten tracked solar-system bodies.
type Body int

const (
	Sun Body = iota
	Moon
	Mercury
	Venus
	Mars
	Jupiter
	Saturn
	Uranus
	Neptune
	Pluto
)

// Bodies lists every tracked body in canonical order. Aspect pairs and chart
// planet lists follow this order.
var Bodies = []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

var bodyNames = [...]string{
	Sun:     "Sun",
	Moon:    "Moon",
	Mercury: "Mercury",
	Venus:   "Venus",
	Mars:    "Mars",
	Jupiter: "Jupiter",
	Saturn:  "Saturn",
	Uranus:  "Uranus",
	Neptune: "Neptune",
	Pluto:   "Pluto",
}

// String returns the title-cased body name.
func (b Body) String() string {
	if !b.Valid() {
		return fmt.Sprintf("Body(%d)", int(b))
	}
	return bodyNames[b]
}

// Valid reports whether b is one of the tracked bodies.
func (b Body) Valid() bool {
	return b >= Sun && b <= Pluto
}

// ParseBody resolves a body name case-insensitively.
func ParseBody(name string) (Body, error) {
	n := strings.TrimSpace(name)
	for i, candidate := range bodyNames {
		if strings.EqualFold(candidate, n) {
			return Body(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBody, name)
}

// BodyNames returns the canonical names of all tracked bodies.
func BodyNames() []string {
	out := make([]string, len(bodyNames))
	copy(out, bodyNames[:])
	return out
}
