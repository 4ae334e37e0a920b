package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tb := NewTable(ColumnLatitude, ColumnLongitude, FieldFarmName)
	tb.Append([]any{-5.0, -36.0, "Beta"})
	tb.Append([]any{-3.0, -40.0, "Alpha"})
	tb.Append([]any{nil, -50.0, "Beta"})
	tb.Append([]any{-8.0, -35.0, "Alpha"})
	tb.Append([]any{-4.0, -37.0, ""})
	tb.Append([]any{-4.0, -37.0, "Gamma"})

	s := Summarize(tb)

	assert.Equal(t, 6, s.Records)
	assert.Equal(t, tb.Columns, s.Columns)
	require.NotNil(t, s.Coordinates)
	assert.Equal(t, CoordinateRange{LatMin: -8, LatMax: -3, LonMin: -40, LonMax: -35}, *s.Coordinates)
	assert.Equal(t, []NameCount{{"Alpha", 2}, {"Beta", 2}, {"Gamma", 1}}, s.TopFarms)
}

func TestSummarize_TopTen(t *testing.T) {
	tb := NewTable(FieldFarmName)
	for i := range 15 {
		for range i + 1 {
			tb.Append([]any{fmt.Sprintf("Parque %02d", i)})
		}
	}

	s := Summarize(tb)

	require.Len(t, s.TopFarms, 10)
	assert.Equal(t, NameCount{Name: "Parque 14", Count: 15}, s.TopFarms[0])
	assert.Equal(t, NameCount{Name: "Parque 05", Count: 6}, s.TopFarms[9])
	assert.Nil(t, s.Coordinates)
}
