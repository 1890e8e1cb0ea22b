package loader

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/razeghi71/dqflow/geo"
	"github.com/razeghi71/dqflow/table"
)

// loadGeoPackage reads one feature layer of a GeoPackage. An empty layer
// name selects the first feature table listed in gpkg_contents.
func loadGeoPackage(filename, layer string) (*table.Table, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	db, err := sql.Open("sqlite", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer db.Close()

	if layer == "" {
		err := db.QueryRow(`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY table_name LIMIT 1`).Scan(&layer)
		if err != nil {
			return nil, fmt.Errorf("cannot find a feature layer in %s: %w", filename, err)
		}
	}

	var geomCol string
	err = db.QueryRow(`SELECT column_name FROM gpkg_geometry_columns WHERE table_name = ?`, layer).Scan(&geomCol)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("cannot read geometry columns of %s: %w", filename, err)
	}

	rows, err := db.Query(`SELECT * FROM "` + strings.ReplaceAll(layer, `"`, `""`) + `"`)
	if err != nil {
		return nil, fmt.Errorf("cannot read layer %q from %s: %w", layer, filename, err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	// The integer primary key "fid" is row identity, not data.
	var columns []string
	var keep []int
	geomIdx, boolCols := -1, make(map[int]bool)
	for i, ct := range colTypes {
		name := ct.Name()
		if strings.EqualFold(name, "fid") {
			continue
		}
		switch {
		case geomCol != "" && strings.EqualFold(name, geomCol):
			geomIdx = i
			name = "geometry"
		case strings.EqualFold(ct.DatabaseTypeName(), "BOOLEAN"):
			boolCols[i] = true
		}
		columns = append(columns, name)
		keep = append(keep, i)
	}

	t := table.NewTable(columns)
	raw := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("error reading layer %q: %w", layer, err)
		}
		vals := make([]table.Value, len(keep))
		for j, i := range keep {
			switch {
			case i == geomIdx:
				vals[j] = gpkgGeometry(raw[i])
			case boolCols[i]:
				vals[j] = sqliteBool(raw[i])
			default:
				vals[j] = sqliteValue(raw[i])
			}
		}
		t.AddRow(vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading layer %q: %w", layer, err)
	}
	return t, nil
}

func gpkgGeometry(v any) table.Value {
	b, ok := v.([]byte)
	if !ok || len(b) == 0 {
		return table.Null()
	}
	g, err := geo.DecodeGPKG(b)
	if err != nil {
		return table.Null()
	}
	return table.GeomVal(g)
}

func sqliteBool(v any) table.Value {
	switch val := v.(type) {
	case int64:
		return table.BoolVal(val != 0)
	case bool:
		return table.BoolVal(val)
	default:
		return sqliteValue(v)
	}
}

func sqliteValue(v any) table.Value {
	switch val := v.(type) {
	case nil:
		return table.Null()
	case int64:
		return table.IntVal(val)
	case float64:
		return table.FloatVal(val)
	case bool:
		return table.BoolVal(val)
	case []byte:
		return textValue(string(val))
	case string:
		return textValue(val)
	case time.Time:
		return table.DateVal(val)
	default:
		return table.StrVal(fmt.Sprintf("%v", val))
	}
}

func textValue(s string) table.Value {
	if d, ok := parseDate(s); ok {
		return d
	}
	return table.StrVal(s)
}
