// Package projection converts geodetic WGS-84 coordinates into the planar
// grids used by the map. All functions are pure and safe for concurrent use.
package projection

import (
	"fmt"

	"github.com/paulmach/orb"

	"shiftscale/internal/types"
)

// Method selects one of the forward projections.
type Method int

const (
	MethodSVY21 Method = iota
	MethodSphericalMercator
)

func (m Method) String() string {
	if m == MethodSphericalMercator {
		return "spherical-mercator"
	}
	return "svy21"
}

// Forward projects latitude/longitude (degrees) to (x, y) metres.
func (m Method) Forward(latDeg, lonDeg float64) (x, y float64) {
	if m == MethodSphericalMercator {
		return ForwardSphericalMercator(latDeg, lonDeg)
	}
	return ForwardProjection(latDeg, lonDeg)
}

// Point projects an orb point holding [lon, lat].
func (m Method) Point(p orb.Point) orb.Point {
	x, y := m.Forward(p.Lat(), p.Lon())
	return orb.Point{x, y}
}

// System is the planar coordinate system the method produces.
func (m Method) System() types.CoordSystem {
	if m == MethodSphericalMercator {
		return types.SystemWebMercator
	}
	return types.SystemSVY21
}

// MethodFor returns the projection that produces the planar system s.
func MethodFor(s types.CoordSystem) (Method, error) {
	switch s {
	case types.SystemSVY21:
		return MethodSVY21, nil
	case types.SystemWebMercator:
		return MethodSphericalMercator, nil
	}
	return 0, fmt.Errorf("no forward projection produces %s", s)
}

// ValidLatitude reports whether lat lies strictly between the poles.
func ValidLatitude(lat float64) bool {
	return lat > -90 && lat < 90
}
