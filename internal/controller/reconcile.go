package controller

import (
	"errors"
	"fmt"

	"shiftscale/internal/projection"
	"shiftscale/internal/types"
)

var (
	ErrSystemUnknown  = errors.New("coordinate system not specified")
	ErrSystemMismatch = errors.New("coordinate systems do not match")
)

// Reconcile expresses target in the control point's coordinate system.
//
// Both coordinates must carry a system. A geodetic target (X = longitude,
// Y = latitude) is projected when the control point is planar. Every other
// combination of differing systems is refused.
func Reconcile(control, target types.Coord) (types.Coord, error) {
	if control.System == types.SystemUnknown {
		return types.Coord{}, fmt.Errorf("control point: %w", ErrSystemUnknown)
	}
	if target.System == types.SystemUnknown {
		return types.Coord{}, fmt.Errorf("target: %w", ErrSystemUnknown)
	}
	if control.System == target.System {
		return target, nil
	}
	if target.System != types.SystemGeodetic || !control.System.Planar() {
		return types.Coord{}, fmt.Errorf("%w: control point is %s, target is %s", ErrSystemMismatch, control.System, target.System)
	}
	if !projection.ValidLatitude(target.Y) {
		return types.Coord{}, fmt.Errorf("%w: target latitude %g is outside (-90, 90)", ErrSystemMismatch, target.Y)
	}
	m, err := projection.MethodFor(control.System)
	if err != nil {
		return types.Coord{}, fmt.Errorf("%w: %v", ErrSystemMismatch, err)
	}
	x, y := m.Forward(target.Y, target.X)
	return types.Coord{X: x, Y: y, Z: target.Z, System: control.System}, nil
}
