package loader

import (
	"strings"

	"github.com/twpayne/go-geom/encoding/wkt"

	"github.com/razeghi71/dqflow/table"
)

// isGeometryName reports whether a text column holds WKT geometries.
func isGeometryName(name string) bool {
	switch strings.ToLower(name) {
	case "geometry", "geom", "wkt", "the_geom":
		return true
	}
	return false
}

// parseGeometry parses a WKT cell. Unparseable text is kept as a string.
func parseGeometry(s string) table.Value {
	if s == "" || strings.EqualFold(s, "null") {
		return table.Null()
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return table.StrVal(s)
	}
	return table.GeomVal(g)
}
