package chart

import (
	"fmt"
	"strings"
	"time"

	"astroscope/internal/types"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads a chart timestamp in any accepted layout.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, types.NewAppError(types.ErrCodeValidationInvalidTimestamp, "timestamp is required", nil)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidTimestamp,
		fmt.Sprintf("unrecognized timestamp %q", s),
		nil,
		map[string]any{"accepted_layouts": timestampLayouts},
	)
}
