package domain

import (
	"fmt"
	"strconv"
)

// BoundingBox is an inclusive latitude/longitude range.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Brazil is the approximate national bounding box used for sanity warnings.
var Brazil = BoundingBox{MinLat: -35, MaxLat: 5, MinLon: -75, MaxLon: -30}

// ContainsLat reports whether lat lies within the box.
func (b BoundingBox) ContainsLat(lat float64) bool { return lat >= b.MinLat && lat <= b.MaxLat }

// ContainsLon reports whether lon lies within the box.
func (b BoundingBox) ContainsLon(lon float64) bool { return lon >= b.MinLon && lon <= b.MaxLon }

// GeometryReport summarizes per-file geometry checks. Both counts are
// informational; no rows are removed.
type GeometryReport struct {
	Records         int
	MissingGeometry int
	OutOfBounds     int
}

// FeaturesToTable flattens features into a table whose columns are latitude,
// longitude, every attribute in first-seen order, then geometry_wkt. Features
// without a usable point get nil coordinates and a nil WKT cell.
func FeaturesToTable(features []Feature, box BoundingBox) (*Table, GeometryReport) {
	reserved := map[string]bool{ColumnLatitude: true, ColumnLongitude: true, ColumnWKT: true}

	columns := []string{ColumnLatitude, ColumnLongitude}
	pos := make(map[string]int)
	for _, f := range features {
		for _, k := range f.Attributes.Keys {
			if reserved[k] {
				continue
			}
			if _, ok := pos[k]; !ok {
				pos[k] = len(columns)
				columns = append(columns, k)
			}
		}
	}
	wktIdx := len(columns)
	columns = append(columns, ColumnWKT)

	t := NewTable(columns...)
	t.Rows = make([][]any, 0, len(features))
	report := GeometryReport{Records: len(features)}

	for _, f := range features {
		row := make([]any, len(columns))
		for _, k := range f.Attributes.Keys {
			if i, ok := pos[k]; ok {
				row[i] = f.Attributes.Values[k]
			}
		}

		if lon, lat, ok := f.Geometry.Point(); ok {
			row[0] = lat
			row[1] = lon
			row[wktIdx] = PointWKT(lon, lat)
			if !box.ContainsLat(lat) || !box.ContainsLon(lon) {
				report.OutOfBounds++
			}
		} else {
			report.MissingGeometry++
		}
		t.Rows = append(t.Rows, row)
	}
	return t, report
}

// PointWKT renders a point as well-known text, x (longitude) first.
func PointWKT(x, y float64) string {
	return fmt.Sprintf("POINT (%s %s)",
		strconv.FormatFloat(x, 'f', -1, 64),
		strconv.FormatFloat(y, 'f', -1, 64))
}
