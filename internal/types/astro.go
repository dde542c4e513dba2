package types

import (
	"encoding/json"
	"time"
)

// CelestialBodyPosition is a body's derived placement at one instant.
// House is zero when no chart context exists (transit scans).
type CelestialBodyPosition struct {
	Name         string  `json:"name"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude,omitempty"`
	Sign         string  `json:"sign"`
	DegreeInSign float64 `json:"degree_in_sign"`
	IsRetrograde bool    `json:"is_retrograde"`
	House        int     `json:"house,omitempty"`
}

// TransitEvent records a body entering a sign. Date is the sampled day on
// which the new bucket was first observed; EnteredAt is only set when entry
// refinement is enabled.
type TransitEvent struct {
	Date            string                  `json:"date"`
	EnteredAt       *time.Time              `json:"entered_at,omitempty"`
	Description     string                  `json:"description"`
	CelestialBodies []CelestialBodyPosition `json:"celestial_bodies"`
}

// TransitSearch is the normalized constellation-search query.
type TransitSearch struct {
	Body      string `json:"star_name"`
	Sign      string `json:"sign_name"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
	Limit     int    `json:"limit"`
}

// GeoLocation is an observer position on Earth.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
}

// ChartAngle is an ecliptic point such as the ascendant.
type ChartAngle struct {
	Longitude    float64 `json:"longitude"`
	Sign         string  `json:"sign"`
	DegreeInSign float64 `json:"degree_in_sign"`
}

// HouseCusp is the starting longitude of one house.
type HouseCusp struct {
	Number       int     `json:"number"`
	Longitude    float64 `json:"longitude"`
	Sign         string  `json:"sign"`
	DegreeInSign float64 `json:"degree_in_sign"`
}

// AspectResult is one matched aspect between two bodies. BodyA precedes
// BodyB in the fixed body ordering.
type AspectResult struct {
	BodyA      string  `json:"body1"`
	BodyB      string  `json:"body2"`
	Type       string  `json:"type"`
	Separation float64 `json:"angle"`
	Orb        float64 `json:"orb"`
}

// Chart is the full natal chart for one instant and location.
type Chart struct {
	Timestamp   time.Time               `json:"timestamp"`
	Location    GeoLocation             `json:"location"`
	HouseSystem string                  `json:"house_system"`
	Ascendant   ChartAngle              `json:"ascendant"`
	Midheaven   ChartAngle              `json:"midheaven"`
	Planets     []CelestialBodyPosition `json:"planets"`
	Houses      []HouseCusp             `json:"houses"`
	Aspects     []AspectResult          `json:"aspects"`
}

// SavedSearch is a persisted query/result pair owned by a user. Query and
// Data are stored verbatim as supplied by the client.
type SavedSearch struct {
	ID        string          `json:"search_id"`
	Namespace string          `json:"-"`
	UserID    string          `json:"user_id"`
	Query     json.RawMessage `json:"search_query"`
	Data      json.RawMessage `json:"search_data"`
	SavedAt   time.Time       `json:"saved_at"`
}
