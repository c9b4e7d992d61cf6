// Package edit executes move/scale edits against map layers as single
// all-or-nothing units and keeps the undo/redo history.
package edit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"shiftscale/internal/layer"
	"shiftscale/internal/types"
)

var (
	ErrNothingToUndo  = errors.New("edit: nothing to undo")
	ErrNothingToRedo  = errors.New("edit: nothing to redo")
	ErrEmptySelection = errors.New("edit: selection is empty")
)

// Result describes a completed operation.
type Result struct {
	OperationID uuid.UUID
	Name        string
	Affected    int
}

// layerChange is the before/after state of one layer touched by an operation.
type layerChange struct {
	layer  layer.Layer
	before map[types.FeatureID]types.Coord
	after  map[types.FeatureID]types.Coord
}

type record struct {
	op      Operation
	changes []layerChange
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxHistory bounds the undo stack. Zero means unbounded.
func WithMaxHistory(n int) Option {
	return func(e *Executor) { e.maxHistory = n }
}

// Saver persists one layer after it has been edited.
type Saver func(ctx context.Context, l layer.Layer) error

// WithSaver saves every touched layer inside the same unit. A failed save
// rolls the operation back.
func WithSaver(save Saver) Option {
	return func(e *Executor) { e.save = save }
}

// PersistLayer saves l when it is backed by a file or table.
func PersistLayer(ctx context.Context, l layer.Layer) error {
	if p, ok := l.(layer.Persister); ok {
		return p.Save(ctx)
	}
	return nil
}

// Executor applies operations to the layers of a map. Its methods must be
// called from the data-access context; the mutex only protects the history
// for readers such as CanUndo.
type Executor struct {
	m          *layer.Map
	maxHistory int
	save       Saver

	mu   sync.Mutex
	undo []record
	redo []record
}

// NewExecutor creates an executor for m.
func NewExecutor(m *layer.Map, opts ...Option) *Executor {
	e := &Executor{m: m}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies op. Either every selected feature moves or none does.
func (e *Executor) Execute(ctx context.Context, op Operation) (Result, error) {
	if op.Selection.Empty() {
		return Result{}, ErrEmptySelection
	}

	changes := make([]layerChange, 0, op.Selection.Len())
	for _, id := range op.Selection.Layers() {
		l, ok := e.m.Layer(id)
		if !ok {
			return Result{}, fmt.Errorf("%s: layer %s is not in the map", op.Name, id)
		}
		before, err := l.Points(op.Selection.IDs(id))
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op.Name, err)
		}
		after := make(map[types.FeatureID]types.Coord, len(before))
		for fid, c := range before {
			after[fid] = Transform(op.Request, c)
		}
		changes = append(changes, layerChange{layer: l, before: before, after: after})
	}

	if err := e.commit(ctx, changes, true); err != nil {
		log.WithFields(log.Fields{"operation": op.ID, "name": op.Name}).WithError(err).Warn("edit operation failed")
		return Result{}, fmt.Errorf("%s: %w", op.Name, err)
	}

	e.mu.Lock()
	e.undo = append(e.undo, record{op: op, changes: changes})
	if e.maxHistory > 0 && len(e.undo) > e.maxHistory {
		e.undo = e.undo[len(e.undo)-e.maxHistory:]
	}
	e.redo = nil
	e.mu.Unlock()

	res := Result{OperationID: op.ID, Name: op.Name, Affected: op.Selection.Count()}
	log.WithFields(log.Fields{
		"operation": op.ID,
		"name":      op.Name,
		"affected":  res.Affected,
		"dx":        op.Request.DX,
		"dy":        op.Request.DY,
		"dz":        op.Request.DZ,
		"scale":     op.Request.EffectiveScale(),
	}).Info("edit operation applied")
	return res, nil
}

// commit writes after (forward) or before (!forward) for every change. On
// failure the layers already written are put back.
func (e *Executor) commit(ctx context.Context, changes []layerChange, forward bool) error {
	pick := func(c layerChange, fwd bool) map[types.FeatureID]types.Coord {
		if fwd {
			return c.after
		}
		return c.before
	}

	for i, c := range changes {
		if err := ctx.Err(); err != nil {
			e.revert(ctx, changes[:i], forward)
			return err
		}
		if err := c.layer.Apply(pick(c, forward)); err != nil {
			e.revert(ctx, changes[:i], forward)
			return err
		}
		if e.save != nil {
			if err := e.save(ctx, c.layer); err != nil {
				e.revert(ctx, changes[:i+1], forward)
				return fmt.Errorf("save layer %s: %w", c.layer.ID(), err)
			}
		}
	}
	return nil
}

// revert restores the opposite state of forward on already committed changes.
func (e *Executor) revert(ctx context.Context, done []layerChange, forward bool) {
	for i := len(done) - 1; i >= 0; i-- {
		c := done[i]
		restore := c.before
		if !forward {
			restore = c.after
		}
		if err := c.layer.Apply(restore); err != nil {
			log.WithField("layer", c.layer.ID()).WithError(err).Error("rollback failed")
			continue
		}
		if e.save != nil {
			if err := e.save(context.WithoutCancel(ctx), c.layer); err != nil {
				log.WithField("layer", c.layer.ID()).WithError(err).Error("rollback save failed")
			}
		}
	}
}

// Undo reverts the most recent operation.
func (e *Executor) Undo(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if len(e.undo) == 0 {
		e.mu.Unlock()
		return Result{}, ErrNothingToUndo
	}
	rec := e.undo[len(e.undo)-1]
	e.mu.Unlock()

	if err := e.commit(ctx, rec.changes, false); err != nil {
		return Result{}, fmt.Errorf("undo %s: %w", rec.op.Name, err)
	}

	e.mu.Lock()
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, rec)
	e.mu.Unlock()

	log.WithFields(log.Fields{"operation": rec.op.ID, "name": rec.op.Name}).Info("edit operation undone")
	return Result{OperationID: rec.op.ID, Name: rec.op.Name, Affected: rec.op.Selection.Count()}, nil
}

// Redo re-applies the most recently undone operation.
func (e *Executor) Redo(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if len(e.redo) == 0 {
		e.mu.Unlock()
		return Result{}, ErrNothingToRedo
	}
	rec := e.redo[len(e.redo)-1]
	e.mu.Unlock()

	if err := e.commit(ctx, rec.changes, true); err != nil {
		return Result{}, fmt.Errorf("redo %s: %w", rec.op.Name, err)
	}

	e.mu.Lock()
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, rec)
	e.mu.Unlock()

	log.WithFields(log.Fields{"operation": rec.op.ID, "name": rec.op.Name}).Info("edit operation redone")
	return Result{OperationID: rec.op.ID, Name: rec.op.Name, Affected: rec.op.Selection.Count()}, nil
}

func (e *Executor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undo) > 0
}

func (e *Executor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redo) > 0
}

// History lists the names of undoable operations, oldest first.
func (e *Executor) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.undo))
	for i, r := range e.undo {
		names[i] = r.op.Name
	}
	return names
}
