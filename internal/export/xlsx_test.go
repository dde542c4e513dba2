package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"astroscope/internal/types"
)

func TestWriteTransits(t *testing.T) {
	entered := time.Date(1990, 1, 8, 14, 3, 0, 0, time.UTC)
	query := types.TransitSearch{Body: "Mars", Sign: "Aries", StartYear: 1990, EndYear: 1991, Limit: 10}
	events := []types.TransitEvent{
		{
			Date:        "1990-01-09",
			EnteredAt:   &entered,
			Description: "Mars entered Aries",
			CelestialBodies: []types.CelestialBodyPosition{
				{Name: "Mars", Longitude: 0.4123, Sign: "Aries", DegreeInSign: 0.4123},
			},
		},
		{
			Date:        "1991-02-01",
			Description: "Mars entered Aries",
			CelestialBodies: []types.CelestialBodyPosition{
				{Name: "Mars", Longitude: 0.1, Sign: "Aries", DegreeInSign: 0.1, IsRetrograde: true},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTransits(&buf, query, events, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{transitsSheet, querySheet}, f.GetSheetList())

	rows, err := f.GetRows(transitsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Entered At (UTC)", "Body", "Sign", "Longitude", "Degree In Sign", "Retrograde"}, rows[0])
	assert.Equal(t, "1990-01-09", rows[1][0])
	assert.Equal(t, "1990-01-08 14:03:00", rows[1][1])
	assert.Equal(t, "Mars", rows[1][2])
	assert.Equal(t, "FALSE", rows[1][6])
	assert.Equal(t, "", rows[2][1])
	assert.Equal(t, "TRUE", rows[2][6])

	raw, err := f.GetCellValue(transitsSheet, "E2", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "0.4123", raw)

	params, err := f.GetRows(querySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Body", "Mars"}, params[0])
	assert.Equal(t, []string{"Start Year", "1990"}, params[2])
	assert.Equal(t, []string{"Events", "2"}, params[5])
	assert.Equal(t, []string{"Generated At (UTC)", "2024-01-02T03:04:05Z"}, params[6])
}

func TestWriteTransits_NoEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransits(&buf, types.TransitSearch{Body: "Sun", Sign: "Leo"}, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(transitsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	q := types.TransitSearch{Body: "Venus", Sign: "Libra", StartYear: 2000, EndYear: 2010}
	assert.Equal(t, "transits_Venus_Libra_2000-2010.xlsx", Filename(q))
}
