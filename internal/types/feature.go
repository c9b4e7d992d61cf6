package types

import (
	"fmt"
	"sort"
)

// LayerID is an opaque handle to a feature collection.
type LayerID string

// FeatureID identifies a feature within one layer.
type FeatureID int64

// CoordSystem names the coordinate system a Coord is expressed in.
type CoordSystem int

const (
	SystemUnknown CoordSystem = iota
	// SystemGeodetic holds longitude in X and latitude in Y, both in degrees.
	SystemGeodetic
	// SystemSVY21 is the local transverse Mercator grid, in metres.
	SystemSVY21
	// SystemWebMercator is spherical Mercator (EPSG:900913), in metres.
	SystemWebMercator
)

func (s CoordSystem) String() string {
	switch s {
	case SystemGeodetic:
		return "geodetic"
	case SystemSVY21:
		return "svy21"
	case SystemWebMercator:
		return "webmercator"
	default:
		return "unknown"
	}
}

// Planar reports whether the system is a projected (metre) grid.
func (s CoordSystem) Planar() bool {
	return s == SystemSVY21 || s == SystemWebMercator
}

// ParseCoordSystem accepts the names produced by String plus a few aliases.
func ParseCoordSystem(s string) (CoordSystem, error) {
	switch s {
	case "geodetic", "wgs84", "latlon", "geo":
		return SystemGeodetic, nil
	case "svy21", "3414":
		return SystemSVY21, nil
	case "webmercator", "mercator", "900913", "3857":
		return SystemWebMercator, nil
	}
	return SystemUnknown, fmt.Errorf("unknown coordinate system %q", s)
}

// Coord is a 3-D coordinate tagged with its coordinate system.
type Coord struct {
	X, Y, Z float64
	System  CoordSystem
}

func (c Coord) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f %s)", c.X, c.Y, c.Z, c.System)
}

// FeatureSelection is an immutable snapshot of selected features grouped by
// layer. Layers and IDs iterate in ascending order.
type FeatureSelection struct {
	layers []LayerID
	ids    map[LayerID][]FeatureID
	count  int
}

// NewFeatureSelection copies byLayer into a new selection. Layers with no IDs
// are omitted.
func NewFeatureSelection(byLayer map[LayerID][]FeatureID) *FeatureSelection {
	sel := &FeatureSelection{ids: make(map[LayerID][]FeatureID, len(byLayer))}
	for layer, ids := range byLayer {
		if len(ids) == 0 {
			continue
		}
		cp := append([]FeatureID(nil), ids...)
		sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
		sel.ids[layer] = cp
		sel.layers = append(sel.layers, layer)
		sel.count += len(cp)
	}
	sort.Slice(sel.layers, func(i, j int) bool { return sel.layers[i] < sel.layers[j] })
	return sel
}

// Layers returns the layers that contributed at least one feature.
func (s *FeatureSelection) Layers() []LayerID {
	if s == nil {
		return nil
	}
	return append([]LayerID(nil), s.layers...)
}

// IDs returns a copy of the feature IDs selected in layer.
func (s *FeatureSelection) IDs(layer LayerID) []FeatureID {
	if s == nil {
		return nil
	}
	return append([]FeatureID(nil), s.ids[layer]...)
}

// Count is the total number of selected features across layers.
func (s *FeatureSelection) Count() int {
	if s == nil {
		return 0
	}
	return s.count
}

// Len is the number of layers in the selection.
func (s *FeatureSelection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

func (s *FeatureSelection) Empty() bool { return s.Count() == 0 }

// TransformRequest is the move and pivot scale computed right before an edit.
type TransformRequest struct {
	DX, DY, DZ float64
	Scale      float64
	Pivot      Coord
}

// IsIdentityScale reports whether the request carries no scale component.
// A zero Scale is treated as unset.
func (r TransformRequest) IsIdentityScale() bool {
	return r.Scale == 1 || r.Scale == 0
}

// EffectiveScale returns Scale, defaulting an unset value to 1.
func (r TransformRequest) EffectiveScale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// Mode is the controller's interaction mode.
type Mode int

const (
	SelectingFeatures Mode = iota
	PickingControlPoint
)

func (m Mode) String() string {
	if m == PickingControlPoint {
		return "picking-control-point"
	}
	return "selecting-features"
}

// SketchType is the kind of geometry the host collects for the next sketch.
type SketchType int

const (
	SketchRectangle SketchType = iota
	SketchPoint
)

func (s SketchType) String() string {
	if s == SketchPoint {
		return "point"
	}
	return "rectangle"
}
