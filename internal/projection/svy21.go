package projection

// WGS-84 → SVY21 (Singapore transverse Mercator) using the Redfearn series.
// The map's point layers are stored in this grid; geodetic operator input is
// converted through ForwardProjection before any offset is computed.

import "math"

const (
	radPerDeg = math.Pi / 180

	semiMajorM = 6378137.0         // WGS-84 semi-major axis (metres)
	flattening = 1 / 298.257223563 // WGS-84 flattening
	originLat  = 1.366666          // latitude of origin (degrees)
	originLon  = 103.833333        // central meridian (degrees)
	falseNorth = 38744.572         // false northing (metres)
	falseEast  = 28001.642         // false easting (metres)
	scaleK     = 1.0               // central meridian scale factor
)

// Derived ellipsoid terms. Trailing digits on eN are powers of e.
var (
	e2, e4, e6     float64
	a0, a2, a4, a6 float64
	originArc      float64
)

func init() {
	e2 = 2*flattening - flattening*flattening
	e4 = e2 * e2
	e6 = e4 * e2

	// a0..a6 are series coefficients, not powers.
	a0 = 1 - e2/4 - 3*e4/64 - 5*e6/256
	a2 = (3.0 / 8.0) * (e2 + e4/4 + 15*e6/128)
	a4 = (15.0 / 256.0) * (e4 + 3*e6/4)
	a6 = 35 * e6 / 3072

	originArc = meridianArc(originLat * radPerDeg)
}

// meridianArc is the distance along the meridian from the equator to phi.
func meridianArc(phi float64) float64 {
	return semiMajorM * (a0*phi - a2*math.Sin(2*phi) + a4*math.Sin(4*phi) - a6*math.Sin(6*phi))
}

// meridionalRadius is ρ, the radius of curvature of the meridian.
func meridionalRadius(sin2Lat float64) float64 {
	return semiMajorM * (1 - e2) / math.Pow(1-e2*sin2Lat, 1.5)
}

// primeVerticalRadius is ν, the radius of curvature in the prime vertical.
func primeVerticalRadius(sin2Lat float64) float64 {
	return semiMajorM / math.Sqrt(1-e2*sin2Lat)
}

// ForwardProjection converts WGS-84 latitude/longitude in decimal degrees to
// SVY21 easting and northing in metres. Accuracy degrades far from the origin
// but the call never fails for finite input.
func ForwardProjection(latDeg, lonDeg float64) (easting, northing float64) {
	phi := latDeg * radPerDeg
	sinLat := math.Sin(phi)
	sin2Lat := sinLat * sinLat
	cosLat := math.Cos(phi)
	cos2Lat := cosLat * cosLat
	cos3Lat := cos2Lat * cosLat
	cos4Lat := cos3Lat * cosLat
	cos5Lat := cos4Lat * cosLat
	cos6Lat := cos5Lat * cosLat
	cos7Lat := cos6Lat * cosLat

	rho := meridionalRadius(sin2Lat)
	nu := primeVerticalRadius(sin2Lat)
	psi := nu / rho
	t := math.Tan(phi)
	w := (lonDeg - originLon) * radPerDeg
	arc := meridianArc(phi)

	w2 := w * w
	w4 := w2 * w2
	w6 := w4 * w2
	w8 := w6 * w2
	psi2 := psi * psi
	psi3 := psi2 * psi
	psi4 := psi2 * psi2
	t2 := t * t
	t4 := t2 * t2
	t6 := t4 * t2

	n1 := w2 / 2 * nu * sinLat * cosLat
	n2 := w4 / 24 * nu * sinLat * cos3Lat * (4*psi2 + psi - t2)
	n3 := w6 / 720 * nu * sinLat * cos5Lat *
		(8*psi4*(11-24*t2) - 28*psi3*(1-6*t2) + psi2*(1-32*t2) - psi*2*t2 + t4)
	n4 := w8 / 40320 * nu * sinLat * cos7Lat * (1385 - 3111*t2 + 543*t4 - t6)
	northing = falseNorth + scaleK*(arc-originArc+n1+n2+n3+n4)

	e1 := w2 / 6 * cos2Lat * (psi - t2)
	e2t := w4 / 120 * cos4Lat * (4*psi3*(1-6*t2) + psi2*(1+8*t2) - psi*2*t2 + t4)
	e3 := w6 / 5040 * cos6Lat * (61 - 479*t2 + 179*t4 - t6)
	easting = falseEast + scaleK*nu*w*cosLat*(1+e1+e2t+e3)
	return
}
