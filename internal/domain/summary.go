package domain

import "sort"

// NameCount is a value and its frequency.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CoordinateRange holds min/max coordinates over non-null cells.
type CoordinateRange struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Summary describes a consolidated table for logs and the inspect command.
type Summary struct {
	Records     int              `json:"total_records"`
	Columns     []string         `json:"columns"`
	Coordinates *CoordinateRange `json:"coordinate_stats,omitempty"`
	TopFarms    []NameCount      `json:"top_eol_names,omitempty"`
}

// Summarize computes row/column counts, the coordinate range and the ten most
// frequent wind farm names.
func Summarize(t *Table) Summary {
	s := Summary{Records: t.Len(), Columns: append([]string(nil), t.Columns...)}

	li, gi := t.Index(ColumnLatitude), t.Index(ColumnLongitude)
	if li >= 0 && gi >= 0 {
		var r *CoordinateRange
		for _, row := range t.Rows {
			lat, okLat := ToFloat(row[li])
			lon, okLon := ToFloat(row[gi])
			if !okLat || !okLon {
				continue
			}
			if r == nil {
				r = &CoordinateRange{LatMin: lat, LatMax: lat, LonMin: lon, LonMax: lon}
				continue
			}
			r.LatMin, r.LatMax = min(r.LatMin, lat), max(r.LatMax, lat)
			r.LonMin, r.LonMax = min(r.LonMin, lon), max(r.LonMax, lon)
		}
		s.Coordinates = r
	}

	if i := t.Index(FieldFarmName); i >= 0 {
		counts := make(map[string]int)
		for _, row := range t.Rows {
			if name, ok := row[i].(string); ok && name != "" {
				counts[name]++
			}
		}
		for name, n := range counts {
			s.TopFarms = append(s.TopFarms, NameCount{Name: name, Count: n})
		}
		sort.Slice(s.TopFarms, func(a, b int) bool {
			if s.TopFarms[a].Count != s.TopFarms[b].Count {
				return s.TopFarms[a].Count > s.TopFarms[b].Count
			}
			return s.TopFarms[a].Name < s.TopFarms[b].Name
		})
		if len(s.TopFarms) > 10 {
			s.TopFarms = s.TopFarms[:10]
		}
	}
	return s
}
