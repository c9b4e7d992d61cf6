package projection

import (
	"math"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"shiftscale/internal/types"
)

// Reference grid coordinates computed with the exact Krüger n-series for the
// same ellipsoid and origin.
var svy21Reference = []struct {
	name              string
	lat, lon          float64
	easting, northing float64
}{
	{"origin", 1.366666, 103.833333, 28001.6420, 38744.5720},
	{"kent ridge", 1.2949192688485278, 103.77367436885834, 21362.1570, 30811.2643},
	{"city", 1.3521, 103.8198, 26495.5720, 37133.9422},
	{"north east", 1.44, 103.99, 45436.2836, 46854.0738},
	{"west", 1.22, 103.62, 4258.8133, 22527.9433},
	{"changi", 1.47, 104.05, 52113.0752, 50171.8941},
	{"south", 1.28, 103.85, 29856.5441, 29161.4965},
}

func TestForwardProjectionMatchesReference(t *testing.T) {
	const tol = 0.01
	for _, tt := range svy21Reference {
		e, n := ForwardProjection(tt.lat, tt.lon)
		if math.Abs(e-tt.easting) > tol || math.Abs(n-tt.northing) > tol {
			t.Errorf("%s: ForwardProjection(%v, %v) = (%.4f, %.4f), want (%.4f, %.4f)",
				tt.name, tt.lat, tt.lon, e, n, tt.easting, tt.northing)
		}
	}
}

func TestForwardProjectionOriginIsFalseOrigin(t *testing.T) {
	e, n := ForwardProjection(originLat, originLon)
	if e != falseEast || n != falseNorth {
		t.Fatalf("origin projected to (%v, %v), want (%v, %v)", e, n, falseEast, falseNorth)
	}
}

func TestForwardProjectionFarFromOriginStillFinite(t *testing.T) {
	for _, pt := range [][2]float64{{60, 10}, {-45, -120}, {89.9, 103.8}} {
		e, n := ForwardProjection(pt[0], pt[1])
		if math.IsNaN(e) || math.IsNaN(n) || math.IsInf(e, 0) || math.IsInf(n, 0) {
			t.Errorf("ForwardProjection(%v, %v) = (%v, %v), want finite", pt[0], pt[1], e, n)
		}
	}
}

func TestForwardSphericalMercator(t *testing.T) {
	tests := []struct {
		lat, lon float64
		x, y     float64
	}{
		{0, 0, 0, 0},
		{1.3521, 103.8198, 11557167.2703, 150529.0556},
		{51.5, -0.12, -13358.3389, 6710219.0832},
		{-33.8688, 151.2093, 16832542.2792, -4011198.6473},
	}
	for _, tt := range tests {
		x, y := ForwardSphericalMercator(tt.lat, tt.lon)
		if math.Abs(x-tt.x) > 0.01 || math.Abs(y-tt.y) > 0.01 {
			t.Errorf("ForwardSphericalMercator(%v, %v) = (%.4f, %.4f), want (%.4f, %.4f)",
				tt.lat, tt.lon, x, y, tt.x, tt.y)
		}
	}
}

func TestMethodSelection(t *testing.T) {
	lat, lon := 1.3521, 103.8198

	e, n := MethodSVY21.Forward(lat, lon)
	we, wn := ForwardProjection(lat, lon)
	if e != we || n != wn {
		t.Errorf("MethodSVY21.Forward differs from ForwardProjection")
	}

	x, y := MethodSphericalMercator.Forward(lat, lon)
	wx, wy := ForwardSphericalMercator(lat, lon)
	if x != wx || y != wy {
		t.Errorf("MethodSphericalMercator.Forward differs from ForwardSphericalMercator")
	}

	p := MethodSVY21.Point(orb.Point{lon, lat})
	if p[0] != we || p[1] != wn {
		t.Errorf("Point() = %v, want [%v %v]", p, we, wn)
	}
}

func TestMethodFor(t *testing.T) {
	if m, err := MethodFor(types.SystemSVY21); err != nil || m != MethodSVY21 {
		t.Errorf("MethodFor(svy21) = %v, %v", m, err)
	}
	if m, err := MethodFor(types.SystemWebMercator); err != nil || m != MethodSphericalMercator {
		t.Errorf("MethodFor(webmercator) = %v, %v", m, err)
	}
	if _, err := MethodFor(types.SystemGeodetic); err == nil {
		t.Errorf("MethodFor(geodetic) should fail")
	}
	if MethodSphericalMercator.System() != types.SystemWebMercator {
		t.Errorf("spherical mercator should produce web mercator coordinates")
	}
}

func TestForwardProjectionConcurrentUse(t *testing.T) {
	want := svy21Reference[1]
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				e, n := ForwardProjection(want.lat, want.lon)
				if math.Abs(e-want.easting) > 0.01 || math.Abs(n-want.northing) > 0.01 {
					errs <- "mismatch"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}
