// Package export writes tables to files in the supported output formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/razeghi71/dqflow/op"
	"github.com/razeghi71/dqflow/table"
)

// Write encodes t to path in the given format and returns the number of
// rows written. Missing parent directories are created.
func Write(t *table.Table, format op.Format, path string) (int, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("cannot create %s: %w", dir, err)
		}
	}
	var err error
	switch format {
	case op.FormatCSV:
		err = writeCSV(t, path)
	case op.FormatGeoJSON:
		err = writeGeoJSON(t, path)
	case op.FormatParquet:
		err = writeParquet(t, path)
	case op.FormatGPKG:
		err = writeGeoPackage(t, path, layerName(path))
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return 0, err
	}
	return t.Len(), nil
}

func writeCSV(t *table.Table, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, v := range r.Values {
			if v.IsNull() {
				record[i] = ""
				continue
			}
			record[i] = v.AsString()
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return f.Close()
}

func writeGeoJSON(t *table.Table, path string) error {
	gi := t.GeometryIndex()
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, t.Len())}
	for _, r := range t.Rows {
		f := &geojson.Feature{Properties: make(map[string]interface{}, len(t.Columns))}
		for i, v := range r.Values {
			if i == gi {
				if v.Type == table.TypeGeometry {
					f.Geometry = v.Geom
				}
				continue
			}
			f.Properties[t.Columns[i]] = v.Interface()
		}
		fc.Features = append(fc.Features, f)
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("cannot encode GeoJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

func layerName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
