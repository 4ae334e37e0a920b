package domain

// Table is a row-oriented, dynamically typed table. Cells are nil, bool,
// int64, float64 or string; every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of col, or -1.
func (t *Table) Index(col string) int {
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether col exists.
func (t *Table) Has(col string) bool { return t.Index(col) >= 0 }

// Append adds a row, padding or truncating it to the column count.
func (t *Table) Append(row []any) {
	if len(row) != len(t.Columns) {
		fixed := make([]any, len(t.Columns))
		copy(fixed, row)
		row = fixed
	}
	t.Rows = append(t.Rows, row)
}

// Column returns a copy of every cell in col, or nil if it does not exist.
func (t *Table) Column(col string) []any {
	i := t.Index(col)
	if i < 0 {
		return nil
	}
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Drop removes col and reports whether it existed.
func (t *Table) Drop(col string) bool {
	i := t.Index(col)
	if i < 0 {
		return false
	}
	t.Columns = append(t.Columns[:i:i], t.Columns[i+1:]...)
	for r, row := range t.Rows {
		t.Rows[r] = append(row[:i:i], row[i+1:]...)
	}
	return true
}

// MoveFirst reorders columns so the named ones that exist come first, in the
// given order, followed by the rest in their current relative order.
func (t *Table) MoveFirst(first ...string) {
	order := make([]int, 0, len(t.Columns))
	picked := make(map[int]bool, len(first))
	for _, name := range first {
		if i := t.Index(name); i >= 0 && !picked[i] {
			order = append(order, i)
			picked[i] = true
		}
	}
	for i := range t.Columns {
		if !picked[i] {
			order = append(order, i)
		}
	}

	t.Columns = permute(t.Columns, order)
	for r, row := range t.Rows {
		t.Rows[r] = permute(row, order)
	}
}

func permute[T any](in []T, order []int) []T {
	out := make([]T, len(order))
	for dst, src := range order {
		out[dst] = in[src]
	}
	return out
}

// Filter keeps rows for which keep returns true and returns how many were removed.
func (t *Table) Filter(keep func(row []any) bool) int {
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		if keep(row) {
			kept = append(kept, row)
		}
	}
	removed := len(t.Rows) - len(kept)
	for i := len(kept); i < len(t.Rows); i++ {
		t.Rows[i] = nil
	}
	t.Rows = kept
	return removed
}

// Concat stacks tables vertically. Columns are the union in first-seen order;
// cells missing from a source table are nil.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	pos := make(map[string]int)
	total := 0
	for _, t := range tables {
		total += t.Len()
		for _, c := range t.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	out.Rows = make([][]any, 0, total)
	for _, t := range tables {
		mapping := make([]int, len(t.Columns))
		for i, c := range t.Columns {
			mapping[i] = pos[c]
		}
		for _, row := range t.Rows {
			dst := make([]any, len(out.Columns))
			for i, v := range row {
				dst[mapping[i]] = v
			}
			out.Rows = append(out.Rows, dst)
		}
	}
	return out
}

// WidenNumeric converts int64 cells to float64 in every column whose non-nil
// cells mix int64 and float64, and returns the names of those columns.
// Columns holding any other cell type are left alone.
func (t *Table) WidenNumeric() []string {
	var widened []string
	for i, col := range t.Columns {
		var ints, floats bool
		mixed := true
		for _, row := range t.Rows {
			switch row[i].(type) {
			case nil:
			case int64:
				ints = true
			case float64:
				floats = true
			default:
				mixed = false
			}
			if !mixed {
				break
			}
		}
		if !mixed || !ints || !floats {
			continue
		}
		for _, row := range t.Rows {
			if v, ok := row[i].(int64); ok {
				row[i] = float64(v)
			}
		}
		widened = append(widened, col)
	}
	return widened
}
