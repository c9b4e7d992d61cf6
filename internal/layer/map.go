package layer

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"shiftscale/internal/types"
)

// Map is the ordered set of layers shown in the active view together with
// the coordinate system the view works in.
type Map struct {
	system types.CoordSystem

	mu     sync.RWMutex
	layers []Layer
}

// NewMap creates an empty map whose working coordinate system is system.
func NewMap(system types.CoordSystem) *Map {
	return &Map{system: system}
}

// System is the map's working coordinate system.
func (m *Map) System() types.CoordSystem { return m.system }

// Add appends l. Layer IDs must be unique and match the map's system.
func (m *Map) Add(l Layer) error {
	if l.System() != m.system {
		return fmt.Errorf("layer %s is in %s, map works in %s", l.ID(), l.System(), m.system)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.layers {
		if existing.ID() == l.ID() {
			return fmt.Errorf("duplicate layer id %s", l.ID())
		}
	}
	m.layers = append(m.layers, l)
	return nil
}

// Layers returns every layer in drawing order.
func (m *Map) Layers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Layer(nil), m.layers...)
}

// PointLayers returns the layers that store point geometries.
func (m *Map) PointLayers() []Layer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Layer
	for _, l := range m.layers {
		if l.GeometryType() == GeometryPoint {
			out = append(out, l)
		}
	}
	return out
}

// Layer looks up a layer by ID.
func (m *Map) Layer(id types.LayerID) (Layer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.layers {
		if l.ID() == id {
			return l, true
		}
	}
	return nil, false
}

// Viewport maps screen pixels onto the map extent currently on display.
// Screen y grows downward; map y grows upward.
type Viewport struct {
	Extent        orb.Bound
	Width, Height float64 // screen size in pixels
	System        types.CoordSystem
}

// ScreenToMap converts a screen position to a map coordinate with z = 0.
func (v Viewport) ScreenToMap(screen orb.Point) (types.Coord, error) {
	if v.Width <= 0 || v.Height <= 0 {
		return types.Coord{}, fmt.Errorf("viewport has no screen size")
	}
	if v.Extent.IsEmpty() {
		return types.Coord{}, fmt.Errorf("viewport has an empty extent")
	}
	if screen[0] < 0 || screen[1] < 0 || screen[0] > v.Width || screen[1] > v.Height {
		return types.Coord{}, fmt.Errorf("screen point %v is outside the %gx%g view", screen, v.Width, v.Height)
	}
	sx := (v.Extent.Max[0] - v.Extent.Min[0]) / v.Width
	sy := (v.Extent.Max[1] - v.Extent.Min[1]) / v.Height
	return types.Coord{
		X:      v.Extent.Min[0] + screen[0]*sx,
		Y:      v.Extent.Max[1] - screen[1]*sy,
		System: v.System,
	}, nil
}

// MapToScreen is the inverse of ScreenToMap for x and y.
func (v Viewport) MapToScreen(c types.Coord) orb.Point {
	sx := v.Width / (v.Extent.Max[0] - v.Extent.Min[0])
	sy := v.Height / (v.Extent.Max[1] - v.Extent.Min[1])
	return orb.Point{(c.X - v.Extent.Min[0]) * sx, (v.Extent.Max[1] - c.Y) * sy}
}
