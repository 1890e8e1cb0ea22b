// Package geo implements the planar geometry operations used by the buffer
// and spatial join operations. Coordinates are treated as Cartesian map
// units; no projection is applied.
package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

// CircleSegments is the number of edges used to approximate a point buffer.
const CircleSegments = 32

// Buffer returns g grown by distance. Points become a circle polygon; all
// other geometries become their bounding envelope expanded by distance.
func Buffer(g geom.T, distance float64) (geom.T, error) {
	if g == nil {
		return nil, nil
	}
	if distance <= 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("buffer distance must be positive, got %v", distance)
	}
	if p, ok := g.(*geom.Point); ok && len(p.FlatCoords()) >= 2 {
		return circle(p.X(), p.Y(), distance, CircleSegments)
	}
	s, err := decompose(g)
	if err != nil {
		return nil, err
	}
	if s.empty() {
		return nil, fmt.Errorf("cannot buffer empty %T", g)
	}
	return envelope(s.minX-distance, s.minY-distance, s.maxX+distance, s.maxY+distance)
}

func circle(cx, cy, r float64, n int) (*geom.Polygon, error) {
	ring := make([]geom.Coord, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, geom.Coord{cx + r*math.Cos(a), cy + r*math.Sin(a)})
	}
	ring = append(ring, ring[0])
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{ring})
}

func envelope(minX, minY, maxX, maxY float64) (*geom.Polygon, error) {
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
}

type point struct{ x, y float64 }

type segment struct{ a, b point }

// shape is a geometry flattened into its vertices, edges and polygon rings.
type shape struct {
	points   []point
	segments []segment
	polygons [][][]point
	dim      int
	minX     float64
	minY     float64
	maxX     float64
	maxY     float64
}

func decompose(g geom.T) (*shape, error) {
	s := &shape{minX: math.Inf(1), minY: math.Inf(1), maxX: math.Inf(-1), maxY: math.Inf(-1)}
	if err := s.add(g); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shape) add(g geom.T) error {
	switch v := g.(type) {
	case *geom.Point:
		if len(v.FlatCoords()) < 2 {
			return nil
		}
		s.addPoint(toPoint(v.Coords()))
	case *geom.MultiPoint:
		for i := 0; i < v.NumPoints(); i++ {
			if err := s.add(v.Point(i)); err != nil {
				return err
			}
		}
	case *geom.LineString:
		s.addLine(v.Coords())
		s.raise(1)
	case *geom.LinearRing:
		s.addLine(v.Coords())
		s.raise(1)
	case *geom.MultiLineString:
		for i := 0; i < v.NumLineStrings(); i++ {
			if err := s.add(v.LineString(i)); err != nil {
				return err
			}
		}
	case *geom.Polygon:
		var rings [][]point
		for _, ring := range v.Coords() {
			s.addLine(ring)
			pts := make([]point, len(ring))
			for i, c := range ring {
				pts[i] = toPoint(c)
			}
			rings = append(rings, pts)
		}
		if len(rings) > 0 {
			s.polygons = append(s.polygons, rings)
			s.raise(2)
		}
	case *geom.MultiPolygon:
		for i := 0; i < v.NumPolygons(); i++ {
			if err := s.add(v.Polygon(i)); err != nil {
				return err
			}
		}
	case *geom.GeometryCollection:
		for _, child := range v.Geoms() {
			if err := s.add(child); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported geometry type %T", g)
	}
	return nil
}

func (s *shape) raise(dim int) {
	if dim > s.dim {
		s.dim = dim
	}
}

func (s *shape) addPoint(p point) {
	s.points = append(s.points, p)
	s.minX = math.Min(s.minX, p.x)
	s.minY = math.Min(s.minY, p.y)
	s.maxX = math.Max(s.maxX, p.x)
	s.maxY = math.Max(s.maxY, p.y)
}

func (s *shape) addLine(coords []geom.Coord) {
	for i, c := range coords {
		p := toPoint(c)
		s.addPoint(p)
		if i > 0 {
			s.segments = append(s.segments, segment{toPoint(coords[i-1]), p})
		}
	}
}

func (s *shape) empty() bool {
	return len(s.points) == 0
}

func (s *shape) boundsOverlap(o *shape) bool {
	return s.minX <= o.maxX && o.minX <= s.maxX && s.minY <= o.maxY && o.minY <= s.maxY
}

func toPoint(c geom.Coord) point {
	return point{c.X(), c.Y()}
}
