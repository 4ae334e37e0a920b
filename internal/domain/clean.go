package domain

import (
	"sort"
	"time"
)

// MaxCapacityMW is the exclusive upper bound for plausible unit capacity.
const MaxCapacityMW = 1000.0

// Recognized OPERACAO values.
const (
	StatusOperating    = "Sim"
	StatusNotOperating = "Não"
)

// DateLayout is the calendar format DATA_ATUALIZACAO is converted to.
const DateLayout = "2006-01-02"

// ImportantFields are checked for nulls before filtering.
var ImportantFields = []string{FieldCapacity, FieldHeight, FieldFarmName}

// CleanReport records what each cleaning step did.
type CleanReport struct {
	InputRows      int
	DroppedColumns []string
	WidenedColumns []string

	InvalidLatitude  int
	InvalidLongitude int
	NullCounts       map[string]int

	DroppedCapacity   int
	DroppedStatus     int
	DroppedDuplicates int
	StatusCounts      map[string]int
	UniqueFacilities  int

	OutputRows int
}

// Clean applies the consolidation rules to t in place, in this order:
//
//	a. drop geometry_wkt, widen columns mixing integers and floats to float64
//	b. coerce latitude/longitude to float64 (nil when unparseable)
//	c. DATA_ATUALIZACAO epoch ms -> YYYY-MM-DD (nil when unparseable)
//	d. latitude, longitude first
//	e. count out-of-box coordinates and nulls in ImportantFields
//	f. keep POT_MW < 1000
//	g. keep OPERACAO in {Sim, Não}
//	h. one row per CEG, the one with the latest DATA_ATUALIZACAO
//
// Steps f-h only run when their columns exist.
func Clean(t *Table, box BoundingBox) CleanReport {
	report := CleanReport{InputRows: t.Len()}

	if t.Drop(ColumnWKT) {
		report.DroppedColumns = append(report.DroppedColumns, ColumnWKT)
	}
	// Processed files type their columns independently.
	report.WidenedColumns = t.WidenNumeric()

	coerceFloatColumn(t, ColumnLatitude)
	coerceFloatColumn(t, ColumnLongitude)
	convertEpochDates(t, FieldUpdatedAt)

	t.MoveFirst(ColumnLatitude, ColumnLongitude)

	report.InvalidLatitude, report.InvalidLongitude = countOutOfBounds(t, box)
	report.NullCounts = countNulls(t, ImportantFields)

	if i := t.Index(FieldCapacity); i >= 0 {
		report.DroppedCapacity = t.Filter(func(row []any) bool {
			mw, ok := ToFloat(row[i])
			return ok && mw < MaxCapacityMW
		})
	}

	if i := t.Index(FieldOperating); i >= 0 {
		report.DroppedStatus = t.Filter(func(row []any) bool {
			return IsRecognizedStatus(row[i])
		})
		report.StatusCounts = make(map[string]int)
		for _, row := range t.Rows {
			report.StatusCounts[row[i].(string)]++
		}
	}

	if t.Has(FieldFacility) && t.Has(FieldUpdatedAt) {
		before := t.Len()
		DedupeLatest(t, FieldFacility, FieldUpdatedAt)
		report.DroppedDuplicates = before - t.Len()
		report.UniqueFacilities = t.Len()
	}

	report.OutputRows = t.Len()
	return report
}

// IsRecognizedStatus reports whether v is exactly one of the two OPERACAO values.
func IsRecognizedStatus(v any) bool {
	s, ok := v.(string)
	return ok && (s == StatusOperating || s == StatusNotOperating)
}

func coerceFloatColumn(t *Table, col string) {
	i := t.Index(col)
	if i < 0 {
		return
	}
	for _, row := range t.Rows {
		if f, ok := ToFloat(row[i]); ok {
			row[i] = f
		} else {
			row[i] = nil
		}
	}
}

// Bounds of time.UnixMilli values that still format to a 4-digit year.
var (
	minDateMillis = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxDateMillis = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC).UnixMilli()
)

func convertEpochDates(t *Table, col string) {
	i := t.Index(col)
	if i < 0 {
		return
	}
	for _, row := range t.Rows {
		row[i] = EpochMillisToDate(row[i])
	}
}

// EpochMillisToDate converts an epoch-millisecond cell to a YYYY-MM-DD string
// in UTC, or nil when the cell is not a usable number.
func EpochMillisToDate(v any) any {
	ms, ok := ToInt64(v)
	if !ok || ms < minDateMillis || ms > maxDateMillis {
		return nil
	}
	return time.UnixMilli(ms).UTC().Format(DateLayout)
}

func countOutOfBounds(t *Table, box BoundingBox) (lat, lon int) {
	li, gi := t.Index(ColumnLatitude), t.Index(ColumnLongitude)
	if li < 0 || gi < 0 {
		return 0, 0
	}
	for _, row := range t.Rows {
		if v, ok := row[li].(float64); ok && !box.ContainsLat(v) {
			lat++
		}
		if v, ok := row[gi].(float64); ok && !box.ContainsLon(v) {
			lon++
		}
	}
	return lat, lon
}

func countNulls(t *Table, fields []string) map[string]int {
	out := make(map[string]int)
	for _, f := range fields {
		i := t.Index(f)
		if i < 0 {
			continue
		}
		n := 0
		for _, row := range t.Rows {
			if row[i] == nil {
				n++
			}
		}
		if n > 0 {
			out[f] = n
		}
	}
	return out
}

// DedupeLatest keeps one row per non-null key: the first row holding the
// greatest date string (YYYY-MM-DD compares chronologically). Rows with a
// nil key are dropped. The result is ordered by key.
func DedupeLatest(t *Table, keyCol, dateCol string) {
	ki, di := t.Index(keyCol), t.Index(dateCol)
	if ki < 0 || di < 0 {
		return
	}

	type pick struct {
		row     []any
		date    string
		hasDate bool
	}
	best := make(map[string]*pick)
	keys := make([]string, 0)

	for _, row := range t.Rows {
		key, ok := cellKey(row[ki])
		if !ok {
			continue
		}
		date, hasDate := row[di].(string)

		cur, seen := best[key]
		if !seen {
			best[key] = &pick{row: row, date: date, hasDate: hasDate}
			keys = append(keys, key)
			continue
		}
		if hasDate && (!cur.hasDate || date > cur.date) {
			cur.row, cur.date, cur.hasDate = row, date, true
		}
	}

	sort.Strings(keys)
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, best[k].row)
	}
	t.Rows = rows
}

func cellKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	default:
		return FormatCell(x), true
	}
}
