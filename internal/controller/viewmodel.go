package controller

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"shiftscale/internal/types"
)

// Field names one observable ViewModel value.
type Field int

const (
	FieldPrompt Field = iota
	FieldHasSelection
	FieldSelection
	FieldTarget
	FieldScale
	FieldTargetSystem
)

func (f Field) String() string {
	switch f {
	case FieldPrompt:
		return "prompt"
	case FieldHasSelection:
		return "has-selection"
	case FieldSelection:
		return "selection"
	case FieldTarget:
		return "target"
	case FieldScale:
		return "scale"
	case FieldTargetSystem:
		return "target-system"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// ViewModel holds the values shared between the controller and the host UI.
// The controller owns the prompt, the has-selection flag and the selection;
// the host owns the target fields. All methods are safe for concurrent use.
type ViewModel struct {
	selection atomic.Pointer[types.FeatureSelection]

	mu     sync.RWMutex
	prompt string
	target types.Coord
	scale  float64

	obsMu     sync.Mutex
	observers []func(Field)
}

// NewViewModel returns a ViewModel with scale 1 and targets expressed in
// system.
func NewViewModel(system types.CoordSystem) *ViewModel {
	return &ViewModel{
		scale:  1,
		target: types.Coord{System: system},
	}
}

// OnChange registers fn to be called after a field changes.
func (vm *ViewModel) OnChange(fn func(Field)) {
	vm.obsMu.Lock()
	defer vm.obsMu.Unlock()
	vm.observers = append(vm.observers, fn)
}

func (vm *ViewModel) notify(fields ...Field) {
	if len(fields) == 0 {
		return
	}
	vm.obsMu.Lock()
	obs := slices.Clone(vm.observers)
	vm.obsMu.Unlock()
	for _, f := range fields {
		for _, fn := range obs {
			fn(f)
		}
	}
}

func (vm *ViewModel) Prompt() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.prompt
}

// HasSelection is derived from the published snapshot, so it never disagrees
// with Selection.
func (vm *ViewModel) HasSelection() bool {
	return !vm.selection.Load().Empty()
}

// Selection returns the current snapshot, or nil when nothing is selected.
// The snapshot is never modified after it is published.
func (vm *ViewModel) Selection() *types.FeatureSelection {
	return vm.selection.Load()
}

// Target is the operator-entered destination of the control point.
func (vm *ViewModel) Target() types.Coord {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.target
}

func (vm *ViewModel) Scale() float64 {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.scale
}

// SetTarget sets the target X, Y and Z fields.
func (vm *ViewModel) SetTarget(x, y, z float64) error {
	for _, v := range []float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("target coordinate %v is not a finite number", v)
		}
	}
	vm.mu.Lock()
	vm.target.X, vm.target.Y, vm.target.Z = x, y, z
	vm.mu.Unlock()
	vm.notify(FieldTarget)
	return nil
}

// SetScale sets the uniform scale factor. It must be positive.
func (vm *ViewModel) SetScale(s float64) error {
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return fmt.Errorf("scale %v must be a positive number", s)
	}
	vm.mu.Lock()
	vm.scale = s
	vm.mu.Unlock()
	vm.notify(FieldScale)
	return nil
}

// SetTargetSystem sets the coordinate system the target fields are entered in.
func (vm *ViewModel) SetTargetSystem(s types.CoordSystem) {
	vm.mu.Lock()
	vm.target.System = s
	vm.mu.Unlock()
	vm.notify(FieldTargetSystem)
}

// The setters below belong to the controller. They report which fields
// changed so the caller can notify once its own lock is released.

func (vm *ViewModel) setPrompt(p string) []Field {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.prompt == p {
		return nil
	}
	vm.prompt = p
	return []Field{FieldPrompt}
}

// setSelection publishes sel (nil clears). Has-selection is reported as
// changed when the snapshot's emptiness flips.
func (vm *ViewModel) setSelection(sel *types.FeatureSelection) []Field {
	old := vm.selection.Swap(sel)
	if old == sel {
		return nil
	}
	changed := []Field{FieldSelection}
	if old.Empty() != sel.Empty() {
		changed = append(changed, FieldHasSelection)
	}
	return changed
}
