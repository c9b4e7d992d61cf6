package edit

import (
	"fmt"

	"github.com/google/uuid"

	"shiftscale/internal/types"
)

// Operation is one named, undoable edit: a pivot scale followed by a move,
// applied to every feature of a selection.
type Operation struct {
	ID        uuid.UUID
	Name      string
	Selection *types.FeatureSelection
	Request   types.TransformRequest
}

// NewOperation stamps a fresh operation ID.
func NewOperation(name string, sel *types.FeatureSelection, req types.TransformRequest) Operation {
	return Operation{
		ID:        uuid.New(),
		Name:      name,
		Selection: sel,
		Request:   req,
	}
}

func (op Operation) String() string {
	return fmt.Sprintf("%s [%s]", op.Name, op.ID)
}

// Transform applies req to c: scale about the pivot, then translate.
//
//	p' = pivot + scale·(p − pivot) + d
func Transform(req types.TransformRequest, c types.Coord) types.Coord {
	s := req.EffectiveScale()
	p := req.Pivot
	return types.Coord{
		X:      p.X + s*(c.X-p.X) + req.DX,
		Y:      p.Y + s*(c.Y-p.Y) + req.DY,
		Z:      p.Z + s*(c.Z-p.Z) + req.DZ,
		System: c.System,
	}
}
