package layer

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Contains reports whether pt lies inside geom. Only areal geometries can
// contain a point; anything else returns false.
func Contains(geom orb.Geometry, pt orb.Point) bool {
	if !geom.Bound().Contains(pt) {
		return false // quick bbox reject
	}
	switch g := geom.(type) {
	case orb.Bound:
		return true
	case orb.Ring:
		return planar.RingContains(g, pt)
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	case orb.Collection:
		for _, sub := range g {
			if Contains(sub, pt) {
				return true
			}
		}
	}
	return false
}

// Rectangle builds the bound spanned by two opposite corners given in any
// order, the shape a rectangle sketch produces.
func Rectangle(a, b orb.Point) orb.Bound {
	return orb.MultiPoint{a, b}.Bound()
}
