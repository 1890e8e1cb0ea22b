package loader

import (
	"errors"
	"fmt"
	"io"
	"os"

	parquet "github.com/parquet-go/parquet-go"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/razeghi71/dqflow/table"
)

// loadParquet reads the flat columns of a parquet file. Byte array columns
// named like a geometry column are decoded as WKB.
func loadParquet(filename string) (*table.Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	r := parquet.NewReader(f)
	defer r.Close()

	paths := r.Schema().Columns()
	columns := make([]string, len(paths))
	for i, p := range paths {
		columns[i] = p[len(p)-1]
	}

	t := table.NewTable(columns)
	buf := make([]parquet.Row, 128)
	for {
		n, err := r.ReadRows(buf)
		for _, row := range buf[:n] {
			vals := make([]table.Value, len(columns))
			for i := range vals {
				vals[i] = table.Null()
			}
			for _, v := range row {
				ci := v.Column()
				if ci < 0 || ci >= len(columns) {
					continue
				}
				vals[ci] = parquetValue(v, isGeometryName(columns[ci]))
			}
			t.AddRow(vals)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading parquet rows from %s: %w", filename, err)
		}
	}
	return t, nil
}

func parquetValue(v parquet.Value, geometry bool) table.Value {
	if v.IsNull() {
		return table.Null()
	}
	switch v.Kind() {
	case parquet.Boolean:
		return table.BoolVal(v.Boolean())
	case parquet.Int32:
		return table.IntVal(int64(v.Int32()))
	case parquet.Int64:
		return table.IntVal(v.Int64())
	case parquet.Float:
		return table.FloatVal(float64(v.Float()))
	case parquet.Double:
		return table.FloatVal(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		b := v.ByteArray()
		if geometry {
			if g, err := wkb.Unmarshal(b); err == nil {
				return table.GeomVal(g)
			}
		}
		s := string(b)
		if d, ok := parseDate(s); ok {
			return d
		}
		return table.StrVal(s)
	default:
		return table.StrVal(v.String())
	}
}
