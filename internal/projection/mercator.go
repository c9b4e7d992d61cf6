package projection

import "math"

const (
	earthRadiusM = 6378137.0
	originShift  = math.Pi * earthRadiusM
)

// ForwardSphericalMercator converts WGS-84 latitude/longitude in degrees to
// spherical Mercator (EPSG:900913) metres. Lower precision than the SVY21
// series; kept for maps whose working grid is Web-Mercator.
func ForwardSphericalMercator(latDeg, lonDeg float64) (x, y float64) {
	x = lonDeg * originShift / 180
	y = math.Log(math.Tan((90+latDeg)*math.Pi/360)) / radPerDeg
	y = y * originShift / 180
	return
}
