package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/razeghi71/dqflow/table"
)

// loadGeoJSON reads a FeatureCollection. Property keys become columns in
// sorted order followed by a "geometry" column.
func loadGeoJSON(filename string) (*table.Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("cannot parse GeoJSON from %s: %w (expected a FeatureCollection)", filename, err)
	}

	colSet := make(map[string]bool)
	var columns []string
	for _, f := range fc.Features {
		for k := range f.Properties {
			if k == "geometry" || colSet[k] {
				continue
			}
			colSet[k] = true
			columns = append(columns, k)
		}
	}
	sort.Strings(columns)
	columns = append(columns, "geometry")

	t := table.NewTable(columns)
	for _, f := range fc.Features {
		vals := make([]table.Value, len(columns))
		for i, col := range columns[:len(columns)-1] {
			v, ok := f.Properties[col]
			if !ok || v == nil {
				vals[i] = table.Null()
				continue
			}
			vals[i] = jsonValue(v)
		}
		vals[len(columns)-1] = table.GeomVal(f.Geometry)
		t.AddRow(vals)
	}
	return t, nil
}
