// Package parquet persists transformed tables as Parquet files.
//
// Column types are inferred per column from the cell values: all-bool columns
// become BOOLEAN, all-integer INT64, any mix of numbers DOUBLE and everything
// else an optional UTF-8 string. Parquet groups order their fields by name, so
// the table's column order is kept in the file's key/value metadata.
package parquet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	parquetgo "github.com/parquet-go/parquet-go"
	"github.com/victor-cakess/hometown/internal/domain"
)

const (
	columnsKey = "hometown.columns"
	readBatch  = 512
)

// Store reads and writes tables as Parquet files. It implements
// pipeline.TableStore.
type Store struct{}

// NewStore creates a Parquet table store.
func NewStore() *Store { return &Store{} }

type columnKind int

const (
	kindNull columnKind = iota
	kindBool
	kindInt
	kindFloat
	kindString
)

func cellKind(v any) columnKind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case int64, int, int32:
		return kindInt
	case float64, float32:
		return kindFloat
	default:
		return kindString
	}
}

func mergeKind(a, b columnKind) columnKind {
	switch {
	case a == kindNull:
		return b
	case b == kindNull, a == b:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func inferKinds(t *domain.Table) []columnKind {
	kinds := make([]columnKind, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			kinds[i] = mergeKind(kinds[i], cellKind(v))
		}
	}
	return kinds
}

func leafNode(k columnKind) parquetgo.Node {
	switch k {
	case kindBool:
		return parquetgo.Optional(parquetgo.Leaf(parquetgo.BooleanType))
	case kindInt:
		return parquetgo.Optional(parquetgo.Int(64))
	case kindFloat:
		return parquetgo.Optional(parquetgo.Leaf(parquetgo.DoubleType))
	default:
		return parquetgo.Optional(parquetgo.String())
	}
}

func toValue(v any, k columnKind) parquetgo.Value {
	if v == nil {
		return parquetgo.Value{}
	}
	switch k {
	case kindBool:
		if b, ok := v.(bool); ok {
			return parquetgo.BooleanValue(b)
		}
	case kindInt:
		if i, ok := domain.ToInt64(v); ok {
			return parquetgo.Int64Value(i)
		}
	case kindFloat:
		if f, ok := domain.ToFloat(v); ok {
			return parquetgo.DoubleValue(f)
		}
	default:
		return parquetgo.ByteArrayValue([]byte(domain.FormatCell(v)))
	}
	return parquetgo.Value{}
}

// WriteTable writes t to path, replacing any existing file.
func (s *Store) WriteTable(path string, t *domain.Table) error {
	kinds := inferKinds(t)
	group := make(parquetgo.Group, len(t.Columns))
	for i, name := range t.Columns {
		group[name] = leafNode(kinds[i])
	}
	schema := parquetgo.NewSchema("aerogerador", group)

	leaf := make(map[string]int, len(t.Columns))
	for i, f := range schema.Fields() {
		leaf[f.Name()] = i
	}

	order, err := json.Marshal(t.Columns)
	if err != nil {
		return fmt.Errorf("%w: encode column order: %v", domain.ErrPersistence, err)
	}

	rows := make([]parquetgo.Row, len(t.Rows))
	for r, cells := range t.Rows {
		row := make(parquetgo.Row, len(t.Columns))
		for c, name := range t.Columns {
			li := leaf[name]
			v := toValue(cells[c], kinds[c])
			if v.IsNull() {
				row[li] = parquetgo.Value{}.Level(0, 0, li)
			} else {
				row[li] = v.Level(0, 1, li)
			}
		}
		rows[r] = row
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", domain.ErrPersistence, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrPersistence, path, err)
	}

	w := parquetgo.NewWriter(f, schema, parquetgo.KeyValueMetadata(columnsKey, string(order)))
	if _, err := w.WriteRows(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: write rows to %s: %v", domain.ErrPersistence, path, err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: finish %s: %v", domain.ErrPersistence, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: close %s: %v", domain.ErrPersistence, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %v", domain.ErrPersistence, path, err)
	}
	return nil
}

func open(path string) (*os.File, *parquetgo.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", domain.ErrProcessing, path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: stat %s: %v", domain.ErrProcessing, path, err)
	}
	pf, err := parquetgo.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: read parquet %s: %v", domain.ErrProcessing, path, err)
	}
	return f, pf, nil
}

// CountRows reads the row count from the file footer.
func (s *Store) CountRows(path string) (int64, error) {
	f, pf, err := open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return pf.NumRows(), nil
}

// ReadTable loads the whole file with its original column order.
func (s *Store) ReadTable(path string) (*domain.Table, error) {
	f, pf, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := pf.Schema().Fields()
	leafNames := make([]string, len(fields))
	for i, field := range fields {
		leafNames[i] = field.Name()
	}

	columns := leafNames
	if v, ok := pf.Lookup(columnsKey); ok {
		var stored []string
		if err := json.Unmarshal([]byte(v), &stored); err != nil || len(stored) != len(leafNames) {
			return nil, fmt.Errorf("%w: %s: bad column order metadata", domain.ErrProcessing, path)
		}
		columns = stored
	}

	t := domain.NewTable(columns...)
	pos := make([]int, len(leafNames))
	for i, name := range leafNames {
		pos[i] = t.Index(name)
		if pos[i] < 0 {
			return nil, fmt.Errorf("%w: %s: column %q missing from metadata", domain.ErrProcessing, path, name)
		}
	}

	t.Rows = make([][]any, 0, pf.NumRows())
	buf := make([]parquetgo.Row, readBatch)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, buf, pos, t); err != nil {
			return nil, fmt.Errorf("%w: read rows from %s: %v", domain.ErrProcessing, path, err)
		}
	}
	return t, nil
}

func readRowGroup(rg parquetgo.RowGroup, buf []parquetgo.Row, pos []int, t *domain.Table) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			cells := make([]any, len(t.Columns))
			for _, v := range row {
				c := v.Column()
				if c < 0 || c >= len(pos) {
					continue
				}
				cells[pos[c]] = fromValue(v)
			}
			t.Rows = append(t.Rows, cells)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func fromValue(v parquetgo.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquetgo.Boolean:
		return v.Boolean()
	case parquetgo.Int32:
		return int64(v.Int32())
	case parquetgo.Int64:
		return v.Int64()
	case parquetgo.Float:
		return float64(v.Float())
	case parquetgo.Double:
		return v.Double()
	case parquetgo.ByteArray, parquetgo.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return v.String()
	}
}
