package geo

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
)

const epsilon = 1e-9

// Predicate relates two geometries.
type Predicate func(a, b geom.T) (bool, error)

// Lookup returns the predicate registered under name.
func Lookup(name string) (Predicate, error) {
	switch name {
	case "intersects":
		return Intersects, nil
	case "within":
		return Within, nil
	case "contains":
		return Contains, nil
	case "overlaps":
		return Overlaps, nil
	default:
		return nil, fmt.Errorf("unknown spatial predicate %q", name)
	}
}

// Intersects reports whether a and b share at least one point.
func Intersects(a, b geom.T) (bool, error) {
	sa, sb, err := pair(a, b)
	if err != nil || sa == nil {
		return false, err
	}
	return intersects(sa, sb), nil
}

// Contains reports whether every point of b lies in a and the interiors meet.
func Contains(a, b geom.T) (bool, error) {
	sa, sb, err := pair(a, b)
	if err != nil || sa == nil {
		return false, err
	}
	return contains(sa, sb), nil
}

// Within reports whether a lies entirely inside b.
func Within(a, b geom.T) (bool, error) {
	return Contains(b, a)
}

// Overlaps reports whether a and b have the same dimension, intersect, and
// neither contains the other.
func Overlaps(a, b geom.T) (bool, error) {
	sa, sb, err := pair(a, b)
	if err != nil || sa == nil {
		return false, err
	}
	if sa.dim != sb.dim || !intersects(sa, sb) {
		return false, nil
	}
	return !contains(sa, sb) && !contains(sb, sa), nil
}

// pair decomposes both geometries. It returns nil shapes when either side is
// empty or their envelopes are disjoint.
func pair(a, b geom.T) (*shape, *shape, error) {
	if a == nil || b == nil {
		return nil, nil, nil
	}
	sa, err := decompose(a)
	if err != nil {
		return nil, nil, err
	}
	sb, err := decompose(b)
	if err != nil {
		return nil, nil, err
	}
	if sa.empty() || sb.empty() || !sa.boundsOverlap(sb) {
		return nil, nil, nil
	}
	return sa, sb, nil
}

func intersects(a, b *shape) bool {
	for _, sa := range a.segments {
		for _, sb := range b.segments {
			if segmentsIntersect(sa, sb) {
				return true
			}
		}
	}
	for _, p := range a.points {
		if b.covers(p) {
			return true
		}
	}
	for _, p := range b.points {
		if a.covers(p) {
			return true
		}
	}
	return false
}

func contains(a, b *shape) bool {
	if a.dim < b.dim {
		return false
	}
	for _, p := range b.points {
		if !a.covers(p) {
			return false
		}
	}
	if a.dim == 2 {
		for _, sb := range b.segments {
			for _, sa := range a.segments {
				if segmentsCross(sa, sb) {
					return false
				}
			}
			if !a.covers(midpoint(sb)) {
				return false
			}
		}
		for _, p := range b.points {
			if a.interior(p) {
				return true
			}
		}
		for _, sb := range b.segments {
			if a.interior(midpoint(sb)) {
				return true
			}
		}
		return false
	}
	for _, sb := range b.segments {
		if !a.covers(sb.a) || !a.covers(sb.b) || !a.covers(midpoint(sb)) {
			return false
		}
	}
	return true
}

// covers reports whether p lies in the interior or on the boundary of s.
func (s *shape) covers(p point) bool {
	for _, q := range s.points {
		if samePoint(p, q) {
			return true
		}
	}
	for _, seg := range s.segments {
		if onSegment(p, seg) {
			return true
		}
	}
	return s.interior(p)
}

// interior reports whether p is strictly inside one of the polygons of s.
func (s *shape) interior(p point) bool {
	for _, rings := range s.polygons {
		for _, ring := range rings {
			for i := 1; i < len(ring); i++ {
				if onSegment(p, segment{ring[i-1], ring[i]}) {
					return false
				}
			}
		}
		if !inRing(p, rings[0]) {
			continue
		}
		inHole := false
		for _, hole := range rings[1:] {
			if inRing(p, hole) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// inRing is the even-odd ray casting test.
func inRing(p point, ring []point) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.y > p.y) != (b.y > p.y) {
			x := (b.x-a.x)*(p.y-a.y)/(b.y-a.y) + a.x
			if p.x < x {
				inside = !inside
			}
		}
	}
	return inside
}

func cross(o, a, b point) float64 {
	return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
}

func orientation(o, a, b point) int {
	c := cross(o, a, b)
	switch {
	case c > epsilon:
		return 1
	case c < -epsilon:
		return -1
	default:
		return 0
	}
}

func onSegment(p point, s segment) bool {
	if orientation(s.a, s.b, p) != 0 {
		return false
	}
	return p.x >= math.Min(s.a.x, s.b.x)-epsilon && p.x <= math.Max(s.a.x, s.b.x)+epsilon &&
		p.y >= math.Min(s.a.y, s.b.y)-epsilon && p.y <= math.Max(s.a.y, s.b.y)+epsilon
}

func segmentsIntersect(s, t segment) bool {
	o1 := orientation(s.a, s.b, t.a)
	o2 := orientation(s.a, s.b, t.b)
	o3 := orientation(t.a, t.b, s.a)
	o4 := orientation(t.a, t.b, s.b)
	if o1 != o2 && o3 != o4 {
		return true
	}
	return onSegment(t.a, s) || onSegment(t.b, s) || onSegment(s.a, t) || onSegment(s.b, t)
}

// segmentsCross reports a proper crossing: the segments meet at a single
// point interior to both.
func segmentsCross(s, t segment) bool {
	o1 := orientation(s.a, s.b, t.a)
	o2 := orientation(s.a, s.b, t.b)
	o3 := orientation(t.a, t.b, s.a)
	o4 := orientation(t.a, t.b, s.b)
	return o1*o2 < 0 && o3*o4 < 0
}

func midpoint(s segment) point {
	return point{(s.a.x + s.b.x) / 2, (s.a.y + s.b.y) / 2}
}

func samePoint(p, q point) bool {
	return math.Abs(p.x-q.x) <= epsilon && math.Abs(p.y-q.y) <= epsilon
}
