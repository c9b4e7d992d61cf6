// Package layer holds the map's feature layers and the spatial query used to
// build feature selections.
package layer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"shiftscale/internal/types"
)

// GeometryType is the shape type stored in a layer.
type GeometryType int

const (
	GeometryPoint GeometryType = iota
	GeometryLine
	GeometryPolygon
	GeometryOther
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "point"
	case GeometryLine:
		return "line"
	case GeometryPolygon:
		return "polygon"
	default:
		return "other"
	}
}

// Layer is a feature collection the controller can query and edit. All
// methods must be called from the data-access context.
type Layer interface {
	ID() types.LayerID
	Name() string
	GeometryType() GeometryType
	System() types.CoordSystem

	// Query returns, in ascending order, the IDs of features whose location
	// is contained in geom.
	Query(ctx context.Context, geom orb.Geometry) ([]types.FeatureID, error)

	// Points returns the current coordinates of ids. Unknown IDs are an error.
	Points(ids []types.FeatureID) (map[types.FeatureID]types.Coord, error)

	// Apply replaces the coordinates of the given features. Either every
	// coordinate is written or none is.
	Apply(coords map[types.FeatureID]types.Coord) error
}

// UnknownFeatureError reports a feature ID that is not in the layer.
type UnknownFeatureError struct {
	Layer types.LayerID
	ID    types.FeatureID
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("layer %s: no feature with id %d", e.Layer, e.ID)
}

// Memory is an in-memory layer. Shapefile and table-backed layers are loaded
// into a Memory layer and written back after edits.
type Memory struct {
	id       types.LayerID
	name     string
	geomType GeometryType
	system   types.CoordSystem

	mu     sync.RWMutex
	points map[types.FeatureID]types.Coord
	bound  orb.Bound
}

// NewMemory creates an empty point layer in the given coordinate system.
func NewMemory(id types.LayerID, name string, system types.CoordSystem) *Memory {
	return &Memory{
		id:       id,
		name:     name,
		geomType: GeometryPoint,
		system:   system,
		points:   make(map[types.FeatureID]types.Coord),
	}
}

// NewMemoryOfType creates an empty layer of a non-point geometry type. Such
// layers appear in the map but never take part in point selection.
func NewMemoryOfType(id types.LayerID, name string, g GeometryType, system types.CoordSystem) *Memory {
	m := NewMemory(id, name, system)
	m.geomType = g
	return m
}

func (m *Memory) ID() types.LayerID { return m.id }
func (m *Memory) Name() string { return m.name }
func (m *Memory) GeometryType() GeometryType { return m.geomType }
func (m *Memory) System() types.CoordSystem { return m.system }

// Put inserts or replaces a feature. c.System is forced to the layer's system.
func (m *Memory) Put(id types.FeatureID, c types.Coord) {
	c.System = m.system
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points[id] = c
	m.growBoundLocked(c)
}

func (m *Memory) growBoundLocked(c types.Coord) {
	pt := orb.Point{c.X, c.Y}
	if len(m.points) == 1 {
		m.bound = pt.Bound()
		return
	}
	m.bound = m.bound.Extend(pt)
}

// Len is the number of features in the layer.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// IDs returns every feature ID in ascending order.
func (m *Memory) IDs() []types.FeatureID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]types.FeatureID, 0, len(m.points))
	for id := range m.points {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// Bound is the extent of all features. It may be larger than the current
// extent after features have moved inward.
func (m *Memory) Bound() orb.Bound {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bound
}

// Query implements Layer.
func (m *Memory) Query(ctx context.Context, geom orb.Geometry) ([]types.FeatureID, error) {
	if geom == nil {
		return nil, fmt.Errorf("layer %s: nil query geometry", m.id)
	}
	if m.geomType != GeometryPoint {
		return nil, nil
	}
	gb := geom.Bound()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.points) == 0 || !gb.Intersects(m.bound) {
		return nil, nil
	}
	var ids []types.FeatureID
	n := 0
	for id, c := range m.points {
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if Contains(geom, orb.Point{c.X, c.Y}) {
			ids = append(ids, id)
		}
	}
	sortIDs(ids)
	return ids, nil
}

// Points implements Layer.
func (m *Memory) Points(ids []types.FeatureID) (map[types.FeatureID]types.Coord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.FeatureID]types.Coord, len(ids))
	for _, id := range ids {
		c, ok := m.points[id]
		if !ok {
			return nil, &UnknownFeatureError{Layer: m.id, ID: id}
		}
		out[id] = c
	}
	return out, nil
}

// Apply implements Layer.
func (m *Memory) Apply(coords map[types.FeatureID]types.Coord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range coords {
		if _, ok := m.points[id]; !ok {
			return &UnknownFeatureError{Layer: m.id, ID: id}
		}
	}
	for id, c := range coords {
		c.System = m.system
		m.points[id] = c
		m.bound = m.bound.Extend(orb.Point{c.X, c.Y})
	}
	return nil
}

func sortIDs(ids []types.FeatureID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
