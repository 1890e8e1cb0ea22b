package export

import (
	"encoding/binary"
	"fmt"
	"os"

	parquet "github.com/parquet-go/parquet-go"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/razeghi71/dqflow/table"
)

func parquetNode(t table.ColumnType) parquet.Node {
	switch t {
	case table.ColInteger:
		return parquet.Optional(parquet.Int(64))
	case table.ColFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case table.ColBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case table.ColGeometry:
		return parquet.Optional(parquet.Leaf(parquet.ByteArrayType))
	default:
		return parquet.Optional(parquet.String())
	}
}

// writeParquet writes one optional leaf per column. Geometries are stored
// as WKB and dates as text.
func writeParquet(t *table.Table, path string) error {
	schema := t.Schema()
	group := make(parquet.Group, len(schema.Columns))
	types := make(map[string]table.ColumnType, len(schema.Columns))
	for _, c := range schema.Columns {
		group[c.Name] = parquetNode(c.Type)
		types[c.Name] = c.Type
	}
	ps := parquet.NewSchema("dqflow", group)

	// Group fields are ordered by name; map each leaf back to its table column.
	leaves := ps.Columns()
	source := make([]int, len(leaves))
	for i, p := range leaves {
		source[i] = t.ColIndex(p[0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	w := parquet.NewWriter(f, ps)
	rows := make([]parquet.Row, 0, t.Len())
	for ri, r := range t.Rows {
		row := make(parquet.Row, len(leaves))
		for li, ci := range source {
			v := r.Values[ci]
			pv, err := parquetValue(v, types[t.Columns[ci]])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", ri, t.Columns[ci], err)
			}
			if pv.IsNull() {
				row[li] = parquet.NullValue().Level(0, 0, li)
			} else {
				row[li] = pv.Level(0, 1, li)
			}
		}
		rows = append(rows, row)
	}
	if _, err := w.WriteRows(rows); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func parquetValue(v table.Value, typ table.ColumnType) (parquet.Value, error) {
	if v.IsNull() {
		return parquet.NullValue(), nil
	}
	switch typ {
	case table.ColInteger:
		return parquet.ValueOf(v.Int), nil
	case table.ColFloat:
		f, _ := v.AsFloat()
		return parquet.ValueOf(f), nil
	case table.ColBoolean:
		return parquet.ValueOf(v.Bool), nil
	case table.ColGeometry:
		b, err := wkb.Marshal(v.Geom, binary.LittleEndian)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.ValueOf(b), nil
	default:
		return parquet.ValueOf(v.AsString()), nil
	}
}
