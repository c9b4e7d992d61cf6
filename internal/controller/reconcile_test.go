package controller

import (
	"errors"
	"math"
	"testing"

	"shiftscale/internal/projection"
	"shiftscale/internal/types"
)

func TestReconcile(t *testing.T) {
	svy := func(x, y float64) types.Coord { return types.Coord{X: x, Y: y, System: types.SystemSVY21} }
	geo := func(lon, lat float64) types.Coord { return types.Coord{X: lon, Y: lat, Z: 7, System: types.SystemGeodetic} }
	merc := func(x, y float64) types.Coord { return types.Coord{X: x, Y: y, System: types.SystemWebMercator} }

	tests := []struct {
		name    string
		control types.Coord
		target  types.Coord
		wantErr error
		want    func() types.Coord
	}{
		{
			name:    "same system passes through",
			control: svy(1, 2),
			target:  svy(3, 4),
			want:    func() types.Coord { return svy(3, 4) },
		},
		{
			name:    "geodetic target onto svy21",
			control: svy(0, 0),
			target:  geo(103.77367436885834, 1.2949192688485278),
			want: func() types.Coord {
				x, y := projection.ForwardProjection(1.2949192688485278, 103.77367436885834)
				return types.Coord{X: x, Y: y, Z: 7, System: types.SystemSVY21}
			},
		},
		{
			name:    "geodetic target onto web mercator",
			control: merc(0, 0),
			target:  geo(103.8198, 1.3521),
			want: func() types.Coord {
				x, y := projection.ForwardSphericalMercator(1.3521, 103.8198)
				return types.Coord{X: x, Y: y, Z: 7, System: types.SystemWebMercator}
			},
		},
		{name: "unknown control", control: types.Coord{}, target: svy(1, 1), wantErr: ErrSystemUnknown},
		{name: "unknown target", control: svy(1, 1), target: types.Coord{X: 1}, wantErr: ErrSystemUnknown},
		{name: "planar mismatch", control: svy(1, 1), target: merc(1, 1), wantErr: ErrSystemMismatch},
		{name: "planar target with geodetic control", control: geo(103.8, 1.3), target: svy(1, 1), wantErr: ErrSystemMismatch},
		{name: "latitude out of range", control: svy(1, 1), target: geo(103.8, 90), wantErr: ErrSystemMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(tt.control, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reconcile: %v", err)
			}
			want := tt.want()
			if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 || got.Z != want.Z || got.System != want.System {
				t.Fatalf("Reconcile = %v, want %v", got, want)
			}
		})
	}
}
