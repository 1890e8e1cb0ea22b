package transform

import (
	"fmt"

	"github.com/razeghi71/dqflow/errs"
	"github.com/razeghi71/dqflow/geo"
	"github.com/razeghi71/dqflow/table"
)

// Buffer replaces every geometry in the geometry column of t with its
// buffer. Other columns are copied unchanged; null geometries stay null.
func Buffer(t *table.Table, distance float64) (*table.Table, error) {
	gi := t.GeometryIndex()
	if gi < 0 {
		return nil, errs.Validation("buffer: input has no geometry column",
			errs.FieldViolation{Field: "input", Reason: "table has no geometry column"})
	}

	result := t.Clone()
	for i, row := range result.Rows {
		v := row.Values[gi]
		if v.IsNull() {
			continue
		}
		if v.Type != table.TypeGeometry {
			return nil, fmt.Errorf("buffer: row %d: column %q holds %s, not a geometry", i, t.Columns[gi], v.AsString())
		}
		g, err := geo.Buffer(v.Geom, distance)
		if err != nil {
			return nil, fmt.Errorf("buffer: row %d: %w", i, err)
		}
		row.Values[gi] = table.GeomVal(g)
	}
	return result, nil
}
