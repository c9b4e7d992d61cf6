// Package controller sequences the shift/scale interaction: select features
// with a rectangle, pick a control point, then move and scale the selection
// as one undoable edit.
//
// Every call that touches layer data is submitted to the injected scheduler
// and completes asynchronously. Completions re-check the interaction epoch
// and drop their result when the operator has moved on.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"shiftscale/internal/edit"
	"shiftscale/internal/events"
	"shiftscale/internal/layer"
	"shiftscale/internal/metrics"
	"shiftscale/internal/queue"
	"shiftscale/internal/types"
)

// Operator prompts and messages.
const (
	PromptMakeSelection   = "Make a selection"
	PromptChangeSelection = "Change the selection"

	MsgNoControlPoint = "Control point not selected"
	MsgNoSelection    = "No features selected"
	MsgApplyPending   = "A transform is already being applied"
)

// SpatialSource is the set of layers in the active view.
type SpatialSource interface {
	PointLayers() []layer.Layer
}

// EditExecutor applies and reverts edit operations.
type EditExecutor interface {
	Execute(ctx context.Context, op edit.Operation) (edit.Result, error)
	Undo(ctx context.Context) (edit.Result, error)
	Redo(ctx context.Context) (edit.Result, error)
}

// ScreenConverter turns a pointer position into a map coordinate.
type ScreenConverter interface {
	ScreenToMap(screen orb.Point) (types.Coord, error)
}

// Reporter shows messages to the operator.
type Reporter interface {
	Info(msg string)
	Error(msg string)
}

// CommandBus delivers host commands.
type CommandBus interface {
	Subscribe(topic events.Topic, fn func()) events.Subscription
	Unsubscribe(s events.Subscription)
}

// Config wires a Controller to its collaborators. Metrics may be nil.
type Config struct {
	Map       SpatialSource
	Scheduler queue.Scheduler
	Executor  EditExecutor
	Bus       CommandBus
	Viewport  ScreenConverter
	Reporter  Reporter
	ViewModel *ViewModel
	Metrics   *metrics.Collector
}

// Controller is the interactive shift/scale tool.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	active   bool
	mode     types.Mode
	sketch   types.SketchType
	control  *types.Coord
	epoch    uint64
	applySeq uint64
	pending  uint64 // applySeq of the edit still queued, 0 when none
	subPick  events.Subscription
	subApply events.Subscription
}

// New returns an inactive controller.
func New(cfg Config) (*Controller, error) {
	switch {
	case cfg.Map == nil:
		return nil, errors.New("controller: Map is required")
	case cfg.Scheduler == nil:
		return nil, errors.New("controller: Scheduler is required")
	case cfg.Executor == nil:
		return nil, errors.New("controller: Executor is required")
	case cfg.Bus == nil:
		return nil, errors.New("controller: Bus is required")
	case cfg.Viewport == nil:
		return nil, errors.New("controller: Viewport is required")
	case cfg.Reporter == nil:
		return nil, errors.New("controller: Reporter is required")
	case cfg.ViewModel == nil:
		return nil, errors.New("controller: ViewModel is required")
	}
	return &Controller{cfg: cfg}, nil
}

// Activate starts a fresh selection round and subscribes to host commands.
func (c *Controller) Activate() {
	c.mu.Lock()
	c.epoch++
	c.mode = types.SelectingFeatures
	c.sketch = types.SketchRectangle
	c.control = nil
	c.pending = 0
	if !c.active {
		c.subPick = c.cfg.Bus.Subscribe(events.TopicPickControlPoint, c.onPickCommand)
		c.subApply = c.cfg.Bus.Subscribe(events.TopicApplyTransform, c.onApplyCommand)
		c.active = true
	}
	changed := c.cfg.ViewModel.setSelection(nil)
	changed = append(changed, c.cfg.ViewModel.setPrompt(PromptMakeSelection)...)
	c.mu.Unlock()

	c.cfg.ViewModel.notify(changed...)
	log.Debug("shift/scale tool activated")
}

// Deactivate unsubscribes from host commands and drops the control point
// and selection. Safe to call repeatedly.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if c.active {
		c.cfg.Bus.Unsubscribe(c.subPick)
		c.cfg.Bus.Unsubscribe(c.subApply)
		log.Debug("shift/scale tool deactivated")
	}
	c.subPick, c.subApply = events.Subscription{}, events.Subscription{}
	c.active = false
	c.epoch++
	c.pending = 0
	c.mode = types.SelectingFeatures
	c.sketch = types.SketchRectangle
	c.control = nil
	changed := c.cfg.ViewModel.setSelection(nil)
	c.mu.Unlock()

	c.cfg.ViewModel.notify(changed...)
}

func (c *Controller) onPickCommand()  { c.PickControlPointRequested() }
func (c *Controller) onApplyCommand() { c.ApplyTransformRequested() }

// current reports whether a completion started at epoch may still apply.
// Callers hold c.mu.
func (c *Controller) current(epoch uint64) bool {
	return c.active && c.epoch == epoch
}

// RegionSelected replaces the selection with the point features contained
// in geom. It returns nil when the tool is not selecting or no point layer
// is shown.
func (c *Controller) RegionSelected(geom orb.Geometry) *queue.Task {
	c.mu.Lock()
	if !c.active || c.mode != types.SelectingFeatures {
		mode := c.mode
		c.mu.Unlock()
		log.WithField("mode", mode).Debug("ignoring region outside selection mode")
		return nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	layers := c.cfg.Map.PointLayers()
	if len(layers) == 0 {
		log.Debug("no point layer in view, selection ignored")
		c.cfg.Metrics.IncRejected(metrics.ReasonNoPointLayer)
		return nil
	}

	return c.cfg.Scheduler.Submit("select features", func(ctx context.Context) error {
		byLayer := make(map[types.LayerID][]types.FeatureID, len(layers))
		for _, l := range layers {
			ids, err := l.Query(ctx, geom)
			if err != nil {
				c.cfg.Reporter.Error(fmt.Sprintf("Selection failed: %v", err))
				return fmt.Errorf("query layer %s: %w", l.ID(), err)
			}
			if len(ids) > 0 {
				byLayer[l.ID()] = ids
			}
		}
		if len(byLayer) == 0 {
			log.Debug("region contains no point features")
			return nil
		}
		sel := types.NewFeatureSelection(byLayer)

		c.mu.Lock()
		if !c.current(epoch) {
			c.mu.Unlock()
			log.WithField("features", sel.Count()).Debug("discarding stale selection")
			return nil
		}
		changed := c.cfg.ViewModel.setSelection(sel)
		changed = append(changed, c.cfg.ViewModel.setPrompt(PromptChangeSelection)...)
		c.mu.Unlock()

		c.cfg.ViewModel.notify(changed...)
		c.cfg.Metrics.IncSelections()
		log.WithFields(log.Fields{"layers": sel.Len(), "features": sel.Count()}).Info("selection replaced")
		return nil
	})
}

// PickControlPointRequested switches to point picking. The selection is kept.
func (c *Controller) PickControlPointRequested() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || c.mode == types.PickingControlPoint {
		return
	}
	c.mode = types.PickingControlPoint
	c.sketch = types.SketchPoint
	c.epoch++
	log.Debug("picking control point")
}

// PointClicked converts screen to a map coordinate and stores it as the
// control point. It returns nil outside point-picking mode.
func (c *Controller) PointClicked(screen orb.Point) *queue.Task {
	c.mu.Lock()
	if !c.active || c.mode != types.PickingControlPoint {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	return c.cfg.Scheduler.Submit("convert control point", func(ctx context.Context) error {
		coord, err := c.cfg.Viewport.ScreenToMap(screen)
		if err != nil {
			c.cfg.Reporter.Error(fmt.Sprintf("Could not read control point: %v", err))
			return err
		}

		c.mu.Lock()
		if !c.current(epoch) || c.mode != types.PickingControlPoint {
			c.mu.Unlock()
			log.WithField("point", coord).Debug("discarding stale control point")
			return nil
		}
		c.control = &coord
		c.mu.Unlock()

		c.cfg.Reporter.Info(fmt.Sprintf("Control point %s", coord))
		return nil
	})
}

// ApplyTransformRequested moves the selection so the control point lands on
// the target and scales it about the control point. Missing inputs are
// reported and nothing is submitted.
func (c *Controller) ApplyTransformRequested() *queue.Task {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	if c.pending != 0 {
		c.mu.Unlock()
		c.reject(metrics.ReasonApplyPending, MsgApplyPending)
		return nil
	}
	var control *types.Coord
	if c.control != nil {
		cp := *c.control
		control = &cp
	}
	epoch := c.epoch
	c.mu.Unlock()

	if control == nil {
		c.reject(metrics.ReasonNoControlPoint, MsgNoControlPoint)
		return nil
	}
	sel := c.cfg.ViewModel.Selection()
	if sel.Empty() {
		c.reject(metrics.ReasonNoSelection, MsgNoSelection)
		return nil
	}

	target, err := Reconcile(*control, c.cfg.ViewModel.Target())
	if err != nil {
		c.reject(metrics.ReasonSystemMismatch, fmt.Sprintf("Cannot apply transform: %v", err))
		return nil
	}

	req := types.TransformRequest{
		DX:    target.X - control.X,
		DY:    target.Y - control.Y,
		DZ:    target.Z - control.Z,
		Scale: c.cfg.ViewModel.Scale(),
		Pivot: *control,
	}
	name := "Shift features"
	if !req.IsIdentityScale() {
		name = "Shift and scale features"
	}
	op := edit.NewOperation(name, sel, req)
	count := sel.Count()

	c.mu.Lock()
	if c.pending != 0 {
		c.mu.Unlock()
		c.reject(metrics.ReasonApplyPending, MsgApplyPending)
		return nil
	}
	if !c.current(epoch) {
		c.mu.Unlock()
		log.Debug("tool changed while preparing the edit, apply dropped")
		return nil
	}
	c.applySeq++
	seq := c.applySeq
	c.pending = seq
	c.mu.Unlock()

	return c.cfg.Scheduler.Submit("apply transform", func(ctx context.Context) error {
		_, err := c.cfg.Executor.Execute(ctx, op)
		if err != nil {
			c.cfg.Metrics.ObserveEdit(metrics.OutcomeFailed, count)
			c.cfg.Reporter.Error(fmt.Sprintf("%s failed for %d features (%s): %v", op.Name, count, describe(req), err))
		} else {
			c.cfg.Metrics.ObserveEdit(metrics.OutcomeApplied, count)
			c.cfg.Reporter.Info(fmt.Sprintf("%s: moved %d features (%s)", op.Name, count, describe(req)))
		}
		c.finishApply(epoch, seq)
		return err
	})
}

// finishApply releases the pending marker of edit seq and returns to feature
// selection unless the operator has since deactivated or restarted the tool.
func (c *Controller) finishApply(epoch, seq uint64) {
	c.mu.Lock()
	if c.pending == seq {
		c.pending = 0
	}
	if !c.current(epoch) {
		c.mu.Unlock()
		log.Debug("tool changed during edit, keeping current state")
		return
	}
	c.epoch++
	c.mode = types.SelectingFeatures
	c.sketch = types.SketchRectangle
	c.control = nil
	changed := c.cfg.ViewModel.setSelection(nil)
	changed = append(changed, c.cfg.ViewModel.setPrompt(PromptMakeSelection)...)
	c.mu.Unlock()

	c.cfg.ViewModel.notify(changed...)
}

func (c *Controller) reject(reason, msg string) {
	c.cfg.Metrics.IncRejected(reason)
	log.WithField("reason", reason).Info("apply request rejected")
	c.cfg.Reporter.Error(msg)
}

func describe(req types.TransformRequest) string {
	return fmt.Sprintf("dx=%.3f dy=%.3f dz=%.3f scale=%g", req.DX, req.DY, req.DZ, req.EffectiveScale())
}

// Undo reverts the last applied edit.
func (c *Controller) Undo() *queue.Task {
	return c.cfg.Scheduler.Submit("undo", func(ctx context.Context) error {
		res, err := c.cfg.Executor.Undo(ctx)
		if errors.Is(err, edit.ErrNothingToUndo) {
			c.cfg.Reporter.Info("Nothing to undo")
			return nil
		}
		if err != nil {
			c.cfg.Reporter.Error(fmt.Sprintf("Undo failed: %v", err))
			return err
		}
		c.cfg.Metrics.ObserveEdit(metrics.OutcomeUndone, res.Affected)
		c.cfg.Reporter.Info(fmt.Sprintf("Undid %s (%d features)", res.Name, res.Affected))
		return nil
	})
}

// Redo re-applies the last undone edit.
func (c *Controller) Redo() *queue.Task {
	return c.cfg.Scheduler.Submit("redo", func(ctx context.Context) error {
		res, err := c.cfg.Executor.Redo(ctx)
		if errors.Is(err, edit.ErrNothingToRedo) {
			c.cfg.Reporter.Info("Nothing to redo")
			return nil
		}
		if err != nil {
			c.cfg.Reporter.Error(fmt.Sprintf("Redo failed: %v", err))
			return err
		}
		c.cfg.Metrics.ObserveEdit(metrics.OutcomeRedone, res.Affected)
		c.cfg.Reporter.Info(fmt.Sprintf("Redid %s (%d features)", res.Name, res.Affected))
		return nil
	})
}

func (c *Controller) Mode() types.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) SketchType() types.SketchType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sketch
}

// ControlPoint returns the control point and whether one is set.
func (c *Controller) ControlPoint() (types.Coord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.control == nil {
		return types.Coord{}, false
	}
	return *c.control, true
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
