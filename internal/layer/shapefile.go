package layer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	shp "github.com/jonas-p/go-shp"
	log "github.com/sirupsen/logrus"

	"shiftscale/internal/types"
)

// Persister is implemented by layers that can write their features back to
// the store they were loaded from.
type Persister interface {
	Save(ctx context.Context) error
}

// idFields are the attribute names used as feature IDs, in order of
// preference. Without one of them the 1-based record number is used.
var idFields = []string{"OBJECTID", "FID", "OID"}

// objectIDWidth holds any int64 feature ID.
const objectIDWidth = 19

// schema is the on-disk layout a shapefile was loaded with, kept so a save
// writes the same shape type and attribute columns back.
type schema struct {
	shapeType shp.ShapeType
	fields    []shp.Field
	idField   int // index into fields, -1 when IDs are record numbers
	attrs     map[types.FeatureID][]string
	measures  map[types.FeatureID]float64
}

// defaultSchema is used for layers that did not come from a shapefile.
func defaultSchema() schema {
	return schema{
		shapeType: shp.POINTZ,
		fields:    []shp.Field{shp.NumberField("OBJECTID", objectIDWidth)},
		idField:   0,
	}
}

// Shapefile is a point layer loaded from a .shp file.
type Shapefile struct {
	*Memory
	Path string

	schema schema
}

// Fields returns the names of the attribute columns written on save.
func (s *Shapefile) Fields() []string {
	names := make([]string, len(s.schema.fields))
	for i, f := range s.schema.fields {
		names[i] = fieldName(f)
	}
	return names
}

func fieldName(f shp.Field) string {
	return strings.TrimSpace(f.String())
}

// LoadShapefile reads the shapefile at path into memory. Point, PointZ and
// PointM files become point layers; other shape types produce an empty layer
// of the matching geometry type so the map still lists them. Attribute
// columns are kept and written back by Save.
func LoadShapefile(path string, system types.CoordSystem) (*Shapefile, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := types.LayerID(name)

	g := geometryOf(r.GeometryType)
	if g != GeometryPoint {
		log.WithFields(log.Fields{"path": path, "type": g}).Debug("shapefile is not a point layer")
		return &Shapefile{Memory: NewMemoryOfType(id, name, g, system), Path: path}, nil
	}

	sc := schema{
		shapeType: r.GeometryType,
		fields:    append([]shp.Field(nil), r.Fields()...),
		idField:   -1,
		attrs:     make(map[types.FeatureID][]string),
		measures:  make(map[types.FeatureID]float64),
	}
	for _, want := range idFields {
		for i, f := range sc.fields {
			if strings.EqualFold(fieldName(f), want) {
				sc.idField = i
				break
			}
		}
		if sc.idField >= 0 {
			break
		}
	}

	mem := NewMemory(id, name, system)
	for r.Next() {
		idx, shape := r.Shape()
		var (
			c types.Coord
			m float64
		)
		switch p := shape.(type) {
		case *shp.Point:
			c = types.Coord{X: p.X, Y: p.Y}
		case *shp.PointZ:
			c, m = types.Coord{X: p.X, Y: p.Y, Z: p.Z}, p.M
		case *shp.PointM:
			c, m = types.Coord{X: p.X, Y: p.Y}, p.M
		default:
			// Null shapes carry no location.
			continue
		}

		row := make([]string, len(sc.fields))
		for i := range sc.fields {
			row[i] = r.ReadAttribute(idx, i)
		}

		fid := types.FeatureID(idx + 1)
		if sc.idField >= 0 {
			raw := strings.TrimSpace(row[sc.idField])
			if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
				fid = types.FeatureID(v)
			} else {
				log.WithFields(log.Fields{"path": path, "row": idx, "value": raw}).Warn("feature id is not an integer; using record number")
			}
		}
		mem.Put(fid, c)
		sc.attrs[fid] = row
		if m != 0 {
			sc.measures[fid] = m
		}
	}

	if sc.idField < 0 {
		// Record numbers would shift on save if null shapes were dropped.
		sc.fields = append(sc.fields, shp.NumberField("OBJECTID", objectIDWidth))
		sc.idField = len(sc.fields) - 1
		for fid, row := range sc.attrs {
			sc.attrs[fid] = append(row, "")
		}
		log.WithField("layer", name).Debug("no id column, OBJECTID is added on save")
	}

	log.WithFields(log.Fields{"layer": name, "features": mem.Len()}).Info("loaded shapefile layer")
	return &Shapefile{Memory: mem, Path: path, schema: sc}, nil
}

func geometryOf(t shp.ShapeType) GeometryType {
	switch t {
	case shp.POINT, shp.POINTZ, shp.POINTM:
		return GeometryPoint
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		return GeometryLine
	case shp.POLYGON, shp.POLYGONZ, shp.POLYGONM:
		return GeometryPolygon
	default:
		return GeometryOther
	}
}

// Save writes the layer back to its path with the shape type and attribute
// columns it was loaded with.
func (s *Shapefile) Save(ctx context.Context) error {
	if s.GeometryType() != GeometryPoint {
		return fmt.Errorf("layer %s: only point layers can be saved", s.ID())
	}
	sc := s.schema
	if sc.fields == nil {
		sc = defaultSchema()
	}
	return writeShapefile(ctx, s.Memory, s.Path, sc)
}

// SaveShapefile writes every feature of m to a PointZ shapefile at path with
// an OBJECTID attribute.
func SaveShapefile(ctx context.Context, m *Memory, path string) error {
	return writeShapefile(ctx, m, path, defaultSchema())
}

// writeShapefile writes the files under a temporary name and renames them
// into place, so readers never observe a half-written layer.
func writeShapefile(ctx context.Context, m *Memory, path string, sc schema) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	tmpBase := base + ".tmp"

	w, err := shp.Create(tmpBase+".shp", sc.shapeType)
	if err != nil {
		return fmt.Errorf("create shapefile %s: %w", path, err)
	}
	fail := func(err error) error {
		w.Close()
		removeShapefile(tmpBase)
		return err
	}
	if err := w.SetFields(sc.fields); err != nil {
		return fail(fmt.Errorf("set fields: %w", err))
	}

	ids := m.IDs()
	coords, err := m.Points(ids)
	if err != nil {
		return fail(err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		c := coords[id]
		var shape shp.Shape
		switch sc.shapeType {
		case shp.POINT:
			shape = &shp.Point{X: c.X, Y: c.Y}
		case shp.POINTM:
			shape = &shp.PointM{X: c.X, Y: c.Y, M: sc.measures[id]}
		default:
			shape = &shp.PointZ{X: c.X, Y: c.Y, Z: c.Z, M: sc.measures[id]}
		}
		row := int(w.Write(shape))

		attrs := sc.attrs[id]
		for i := range sc.fields {
			var value interface{} = ""
			switch {
			case i == sc.idField:
				value = int(id)
			case i < len(attrs):
				value = attrs[i]
			}
			if err := w.WriteAttribute(row, i, value); err != nil {
				return fail(fmt.Errorf("write attribute %s for feature %d: %w", fieldName(sc.fields[i]), id, err))
			}
		}
	}
	w.Close()

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		from := tmpBase + ext
		if ext == ".dbf" {
			from = dbfPath(tmpBase)
		}
		if err := os.Rename(from, base+ext); err != nil {
			removeShapefile(tmpBase)
			return fmt.Errorf("replace %s%s: %w", base, ext, err)
		}
	}
	log.WithFields(log.Fields{"layer": m.ID(), "path": path, "features": len(ids)}).Info("saved shapefile layer")
	return nil
}

// dbfPath is where the writer left the attribute table. go-shp names it by
// appending "dbf" to the base without a dot.
func dbfPath(base string) string {
	for _, p := range []string{base + ".dbf", base + "dbf"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return base + ".dbf"
}

func removeShapefile(base string) {
	for _, p := range []string{base + ".shp", base + ".shx", base + ".dbf", base + "dbf"} {
		os.Remove(p)
	}
}
