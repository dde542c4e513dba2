// Package transit implements the historical transit scanner: it samples a
// body's longitude once per day over a year range and reports each day on
// which the body is first seen inside a target sign.
package transit

import (
	"fmt"
	"math"
	"time"

	"astroscope/internal/types"
	"astroscope/internal/zodiac"
)

// Query bounds accepted by Validate.
const (
	MinLimit = 1
	MaxLimit = 100
	MinYear  = 1
	MaxYear  = 9999

	DefaultLimit = 10
)

// Query is a parsed scan request.
type Query struct {
	Body      zodiac.Body
	Sign      zodiac.Sign
	StartYear int
	EndYear   int
	Limit     int
}

// ParseQuery resolves the body and sign names of a wire-level search and
// applies the default limit. Range checks are left to Validate.
func ParseQuery(s types.TransitSearch) (Query, error) {
	body, err := zodiac.ParseBody(s.Body)
	if err != nil {
		return Query{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidBody,
			fmt.Sprintf("unrecognized celestial body %q", s.Body),
			err,
			map[string]any{"allowed": zodiac.BodyNames()},
		)
	}
	sign, err := zodiac.ParseSign(s.Sign)
	if err != nil {
		return Query{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidSign,
			fmt.Sprintf("unrecognized zodiac sign %q", s.Sign),
			err,
			map[string]any{"allowed": zodiac.SignNames()},
		)
	}

	limit := s.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	return Query{
		Body:      body,
		Sign:      sign,
		StartYear: s.StartYear,
		EndYear:   s.EndYear,
		Limit:     limit,
	}, nil
}

// Validate checks q against the scan bounds. maxYears caps the inclusive
// span of years; zero disables the cap.
func (q Query) Validate(maxYears int) error {
	if !q.Body.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidBody, fmt.Sprintf("unrecognized celestial body %d", int(q.Body)), nil)
	}
	if !q.Sign.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidSign, fmt.Sprintf("unrecognized zodiac sign %d", int(q.Sign)), nil)
	}
	if q.Limit < MinLimit || q.Limit > MaxLimit {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationLimit,
			fmt.Sprintf("limit must be between %d and %d", MinLimit, MaxLimit),
			nil,
			map[string]any{"limit": q.Limit},
		)
	}
	if q.StartYear < MinYear || q.EndYear > MaxYear {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationYearRange,
			fmt.Sprintf("years must be between %d and %d", MinYear, MaxYear),
			nil,
			map[string]any{"start_year": q.StartYear, "end_year": q.EndYear},
		)
	}
	if q.EndYear < q.StartYear {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationYearRange,
			"end_year must not be before start_year",
			nil,
			map[string]any{"start_year": q.StartYear, "end_year": q.EndYear},
		)
	}
	if span := q.EndYear - q.StartYear + 1; maxYears > 0 && span > maxYears {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationYearRange,
			fmt.Sprintf("year range spans %d years; at most %d allowed", span, maxYears),
			nil,
			map[string]any{"start_year": q.StartYear, "end_year": q.EndYear},
		)
	}
	return nil
}

// Range returns the first sampled instant and the number of daily samples
// from Jan 1 of StartYear through Dec 31 of EndYear.
func (q Query) Range() (time.Time, int) {
	start := time.Date(q.StartYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(q.EndYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, int(math.Round(zodiac.JulianDay(end) - zodiac.JulianDay(start)))
}
