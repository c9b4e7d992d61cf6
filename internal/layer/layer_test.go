package layer

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"shiftscale/internal/types"
)

func newHydrants() *Memory {
	m := NewMemory("hydrants", "Hydrants", types.SystemSVY21)
	m.Put(1, types.Coord{X: 10, Y: 10})
	m.Put(2, types.Coord{X: 20, Y: 20})
	m.Put(3, types.Coord{X: 30, Y: 30, Z: 4})
	m.Put(4, types.Coord{X: 100, Y: 100})
	return m
}

func TestContains(t *testing.T) {
	square := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	holed := orb.Polygon{
		square,
		orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	}
	tests := []struct {
		name string
		geom orb.Geometry
		pt   orb.Point
		want bool
	}{
		{"bound inside", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, orb.Point{5, 5}, true},
		{"bound outside", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, orb.Point{11, 5}, false},
		{"ring inside", square, orb.Point{2, 3}, true},
		{"ring outside", square, orb.Point{-1, 3}, false},
		{"polygon hole", holed, orb.Point{5, 5}, false},
		{"polygon body", holed, orb.Point{2, 2}, true},
		{"multipolygon", orb.MultiPolygon{holed}, orb.Point{8, 8}, true},
		{"line never contains", orb.LineString{{0, 0}, {10, 10}}, orb.Point{5, 5}, false},
		{"point never contains", orb.Point{5, 5}, orb.Point{5, 5}, false},
	}
	for _, tt := range tests {
		if got := Contains(tt.geom, tt.pt); got != tt.want {
			t.Errorf("%s: Contains = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRectangleNormalisesCorners(t *testing.T) {
	b := Rectangle(orb.Point{10, 0}, orb.Point{0, 10})
	if b.Min != (orb.Point{0, 0}) || b.Max != (orb.Point{10, 10}) {
		t.Fatalf("Rectangle = %v", b)
	}
}

func TestMemoryQuery(t *testing.T) {
	m := newHydrants()
	ids, err := m.Query(context.Background(), Rectangle(orb.Point{5, 5}, orb.Point{35, 35}))
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	want := []types.FeatureID{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("Query = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Query = %v, want %v", ids, want)
		}
	}

	ids, err = m.Query(context.Background(), Rectangle(orb.Point{500, 500}, orb.Point{600, 600}))
	if err != nil || len(ids) != 0 {
		t.Fatalf("Query outside extent = %v, %v; want empty", ids, err)
	}
}

func TestMemoryQueryNonPointLayer(t *testing.T) {
	m := NewMemoryOfType("parcels", "Parcels", GeometryPolygon, types.SystemSVY21)
	ids, err := m.Query(context.Background(), Rectangle(orb.Point{0, 0}, orb.Point{1, 1}))
	if err != nil || ids != nil {
		t.Fatalf("Query on polygon layer = %v, %v", ids, err)
	}
}

func TestMemoryApplyIsAllOrNothing(t *testing.T) {
	m := newHydrants()
	err := m.Apply(map[types.FeatureID]types.Coord{
		1:  {X: 1, Y: 1},
		99: {X: 2, Y: 2},
	})
	var unknown *UnknownFeatureError
	if !errors.As(err, &unknown) || unknown.ID != 99 {
		t.Fatalf("Apply err = %v, want UnknownFeatureError for 99", err)
	}
	pts, _ := m.Points([]types.FeatureID{1})
	if pts[1].X != 10 || pts[1].Y != 10 {
		t.Fatalf("feature 1 moved despite failed Apply: %v", pts[1])
	}

	if err := m.Apply(map[types.FeatureID]types.Coord{1: {X: 1, Y: 2, Z: 3}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	pts, _ = m.Points([]types.FeatureID{1})
	if got := pts[1]; got.X != 1 || got.Y != 2 || got.Z != 3 || got.System != types.SystemSVY21 {
		t.Fatalf("feature 1 = %v", got)
	}
}

func TestMemoryPointsUnknownID(t *testing.T) {
	m := newHydrants()
	if _, err := m.Points([]types.FeatureID{1, 42}); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestMapPointLayers(t *testing.T) {
	mp := NewMap(types.SystemSVY21)
	if err := mp.Add(newHydrants()); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := mp.Add(NewMemoryOfType("roads", "Roads", GeometryLine, types.SystemSVY21)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := mp.Add(NewMemory("hydrants", "dup", types.SystemSVY21)); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := mp.Add(NewMemory("wm", "Other grid", types.SystemWebMercator)); err == nil {
		t.Fatalf("expected coordinate system mismatch error")
	}

	if got := len(mp.Layers()); got != 2 {
		t.Fatalf("Layers() len = %d, want 2", got)
	}
	pl := mp.PointLayers()
	if len(pl) != 1 || pl[0].ID() != "hydrants" {
		t.Fatalf("PointLayers() = %v", pl)
	}
	if _, ok := mp.Layer("roads"); !ok {
		t.Fatalf("Layer(roads) not found")
	}
}

func TestViewportScreenToMap(t *testing.T) {
	v := Viewport{
		Extent: orb.Bound{Min: orb.Point{1000, 2000}, Max: orb.Point{2000, 2500}},
		Width:  200,
		Height: 100,
		System: types.SystemSVY21,
	}
	c, err := v.ScreenToMap(orb.Point{50, 20})
	if err != nil {
		t.Fatalf("ScreenToMap: %v", err)
	}
	if c.X != 1250 || c.Y != 2400 || c.Z != 0 || c.System != types.SystemSVY21 {
		t.Fatalf("ScreenToMap = %v, want (1250, 2400, 0 svy21)", c)
	}
	back := v.MapToScreen(c)
	if math.Abs(back[0]-50) > 1e-9 || math.Abs(back[1]-20) > 1e-9 {
		t.Fatalf("MapToScreen = %v, want [50 20]", back)
	}

	if _, err := v.ScreenToMap(orb.Point{201, 0}); err == nil {
		t.Fatalf("expected error for point outside the view")
	}
	if _, err := (Viewport{}).ScreenToMap(orb.Point{0, 0}); err == nil {
		t.Fatalf("expected error for zero viewport")
	}
}

func TestShapefileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hydrants.shp")
	if err := SaveShapefile(context.Background(), newHydrants(), path); err != nil {
		t.Fatalf("SaveShapefile: %v", err)
	}

	loaded, err := LoadShapefile(path, types.SystemSVY21)
	if err != nil {
		t.Fatalf("LoadShapefile: %v", err)
	}
	if loaded.ID() != "hydrants" || loaded.GeometryType() != GeometryPoint {
		t.Fatalf("loaded layer = %s/%s", loaded.ID(), loaded.GeometryType())
	}
	if loaded.Len() != 4 {
		t.Fatalf("loaded %d features, want 4", loaded.Len())
	}
	pts, err := loaded.Points([]types.FeatureID{3, 4})
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if pts[3].X != 30 || pts[3].Y != 30 || pts[3].Z != 4 {
		t.Fatalf("feature 3 = %v", pts[3])
	}
	if pts[4].X != 100 {
		t.Fatalf("feature 4 = %v", pts[4])
	}

	if err := loaded.Apply(map[types.FeatureID]types.Coord{4: {X: 7, Y: 8}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := loaded.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, err := LoadShapefile(path, types.SystemSVY21)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	pts, _ = again.Points([]types.FeatureID{4})
	if pts[4].X != 7 || pts[4].Y != 8 {
		t.Fatalf("saved feature 4 = %v, want (7, 8)", pts[4])
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*tmp*"))
	if len(leftovers) != 0 {
		t.Fatalf("temporary files left behind: %v", leftovers)
	}
}

func TestShapefileSaveKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valves.shp")
	mem := NewMemory("valves", "valves", types.SystemSVY21)
	mem.Put(7, types.Coord{X: 1, Y: 2})
	mem.Put(9, types.Coord{X: 3, Y: 4})
	src := &Shapefile{Memory: mem, Path: path, schema: schema{
		shapeType: shp.POINT,
		fields: []shp.Field{
			shp.StringField("NAME", 20),
			shp.NumberField("OBJECTID", objectIDWidth),
		},
		idField: 1,
		attrs: map[types.FeatureID][]string{
			7: {"north gate", "7"},
			9: {"pump house", "9"},
		},
	}}
	if err := src.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadShapefile(path, types.SystemSVY21)
	if err != nil {
		t.Fatalf("LoadShapefile: %v", err)
	}
	if got := loaded.Fields(); len(got) != 2 || got[0] != "NAME" || got[1] != "OBJECTID" {
		t.Fatalf("fields = %v", got)
	}
	if err := loaded.Apply(map[types.FeatureID]types.Coord{9: {X: 30, Y: 40}}); err != nil {
		t.Fatal(err)
	}
	if err := loaded.Save(context.Background()); err != nil {
		t.Fatalf("Save after edit: %v", err)
	}

	r, err := shp.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.GeometryType != shp.POINT {
		t.Fatalf("shape type = %v, want POINT", r.GeometryType)
	}
	names := map[string]string{}
	for r.Next() {
		idx, shape := r.Shape()
		p, ok := shape.(*shp.Point)
		if !ok {
			t.Fatalf("row %d is %T", idx, shape)
		}
		names[r.ReadAttribute(idx, 1)] = r.ReadAttribute(idx, 0)
		if r.ReadAttribute(idx, 1) == "9" && (p.X != 30 || p.Y != 40) {
			t.Fatalf("feature 9 at (%v, %v), want (30, 40)", p.X, p.Y)
		}
	}
	if names["7"] != "north gate" || names["9"] != "pump house" {
		t.Fatalf("NAME column = %v", names)
	}
}

func TestShapefileSaveWideIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.shp")
	mem := NewMemory("big", "big", types.SystemSVY21)
	const id = types.FeatureID(90000000001)
	mem.Put(id, types.Coord{X: 1, Y: 1})
	if err := SaveShapefile(context.Background(), mem, path); err != nil {
		t.Fatalf("SaveShapefile: %v", err)
	}
	loaded, err := LoadShapefile(path, types.SystemSVY21)
	if err != nil {
		t.Fatal(err)
	}
	if ids := loaded.IDs(); len(ids) != 1 || ids[0] != id {
		t.Fatalf("ids = %v, want [%d]", ids, id)
	}
}

func TestLoadShapefileMissing(t *testing.T) {
	if _, err := LoadShapefile(filepath.Join(t.TempDir(), "nope.shp"), types.SystemSVY21); err == nil {
		t.Fatalf("expected error for missing shapefile")
	}
}
