package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"shiftscale/internal/controller"
	"shiftscale/internal/edit"
	"shiftscale/internal/events"
	"shiftscale/internal/layer"
	"shiftscale/internal/queue"
	"shiftscale/internal/types"
)

const sessionHelp = `Commands:
  select <x1> <y1> <x2> <y2>   select point features inside a map rectangle
  pick                         start picking the control point
  click <sx> <sy>              click the screen (pixels) to set the control point
  click-map <x> <y>            click at a map coordinate
  target <x> <y> [z]           where the control point should move to
  scale <factor>               uniform scale about the control point (default 1)
  system <name>                coordinate system of the target (svy21, geodetic, webmercator)
  apply                        move and scale the selection
  undo | redo                  revert or re-apply the last edit
  history                      list undoable edits
  save                         write edited layers back to their files/tables
  layers                       list open layers
  show                         show the tool state
  help                         this text
  quit                         leave the session`

// session maps console commands onto the controller and the host commands
// it listens for.
type session struct {
	ctrl     *controller.Controller
	vm       *controller.ViewModel
	bus      *events.Bus
	m        *layer.Map
	exec     *edit.Executor
	sched    queue.Scheduler
	viewport layer.Viewport
	out      io.Writer
}

func parseSystem(s string) (types.CoordSystem, error) {
	return types.ParseCoordSystem(strings.ToLower(strings.TrimSpace(s)))
}

func parseFloats(args []string, lo, hi int) ([]float64, error) {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return nil, fmt.Errorf("want %d numbers, got %d", lo, len(args))
		}
		return nil, fmt.Errorf("want %d to %d numbers, got %d", lo, hi, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = v
	}
	return out, nil
}

// wait blocks until a controller task finishes. The controller reports the
// task's own outcome, so only a nil task (request ignored in the current
// mode) or an abandoned wait is returned as an error.
func wait(ctx context.Context, task *queue.Task, ignored string) error {
	if task == nil {
		return errors.New(ignored)
	}
	select {
	case <-task.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// barrier waits for all work queued so far. The scheduler runs one unit at a
// time in submission order.
func (s *session) barrier(ctx context.Context) error {
	return s.sched.Submit("barrier", func(context.Context) error { return nil }).Wait(ctx)
}

func (s *session) handle(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil

	case "help", "?":
		fmt.Fprintln(s.out, sessionHelp)

	case "select":
		v, err := parseFloats(args, 4, 4)
		if err != nil {
			return false, fmt.Errorf("select: %w", err)
		}
		rect := layer.Rectangle(orb.Point{v[0], v[1]}, orb.Point{v[2], v[3]})
		return false, wait(ctx, s.ctrl.RegionSelected(rect), "select: not selecting features (or no point layer is open)")

	case "pick":
		s.bus.Publish(events.TopicPickControlPoint)
		fmt.Fprintln(s.out, "Click the control point")

	case "click":
		v, err := parseFloats(args, 2, 2)
		if err != nil {
			return false, fmt.Errorf("click: %w", err)
		}
		return false, wait(ctx, s.ctrl.PointClicked(orb.Point{v[0], v[1]}), `click: run "pick" first`)

	case "click-map":
		v, err := parseFloats(args, 2, 2)
		if err != nil {
			return false, fmt.Errorf("click-map: %w", err)
		}
		screen := s.viewport.MapToScreen(types.Coord{X: v[0], Y: v[1]})
		return false, wait(ctx, s.ctrl.PointClicked(screen), `click-map: run "pick" first`)

	case "target":
		v, err := parseFloats(args, 2, 3)
		if err != nil {
			return false, fmt.Errorf("target: %w", err)
		}
		var z float64
		if len(v) == 3 {
			z = v[2]
		}
		return false, s.vm.SetTarget(v[0], v[1], z)

	case "scale":
		v, err := parseFloats(args, 1, 1)
		if err != nil {
			return false, fmt.Errorf("scale: %w", err)
		}
		return false, s.vm.SetScale(v[0])

	case "system":
		if len(args) != 1 {
			return false, fmt.Errorf("system: want one name")
		}
		sys, err := parseSystem(args[0])
		if err != nil {
			return false, err
		}
		s.vm.SetTargetSystem(sys)

	case "apply":
		s.bus.Publish(events.TopicApplyTransform)
		return false, s.barrier(ctx)

	case "undo":
		return false, wait(ctx, s.ctrl.Undo(), "")

	case "redo":
		return false, wait(ctx, s.ctrl.Redo(), "")

	case "history":
		h := s.exec.History()
		if len(h) == 0 {
			fmt.Fprintln(s.out, "No edits")
		}
		for i, name := range h {
			fmt.Fprintf(s.out, "%d. %s\n", i+1, name)
		}

	case "save":
		return false, s.sched.Submit("save layers", s.save).Wait(ctx)

	case "layers":
		for _, l := range s.m.Layers() {
			n := "?"
			if counted, ok := l.(interface{ Len() int }); ok {
				n = strconv.Itoa(counted.Len())
			}
			fmt.Fprintf(s.out, "%-12s %-20s %-8s %s features\n", l.ID(), l.Name(), l.GeometryType(), n)
		}

	case "show":
		s.show()

	default:
		return false, fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return false, nil
}

// save runs on the scheduler.
func (s *session) save(ctx context.Context) error {
	saved := 0
	for _, l := range s.m.Layers() {
		if _, ok := l.(layer.Persister); !ok {
			continue
		}
		if err := edit.PersistLayer(ctx, l); err != nil {
			return fmt.Errorf("save %s: %w", l.ID(), err)
		}
		saved++
	}
	fmt.Fprintf(s.out, "Saved %d layers\n", saved)
	return nil
}

func (s *session) show() {
	fmt.Fprintf(s.out, "Mode:          %s (%s sketch)\n", s.ctrl.Mode(), s.ctrl.SketchType())
	fmt.Fprintf(s.out, "Prompt:        %s\n", s.vm.Prompt())
	if cp, ok := s.ctrl.ControlPoint(); ok {
		fmt.Fprintf(s.out, "Control point: %s\n", cp)
	} else {
		fmt.Fprintln(s.out, "Control point: none")
	}
	if sel := s.vm.Selection(); !sel.Empty() {
		fmt.Fprintf(s.out, "Selection:     %d features\n", sel.Count())
		for _, id := range sel.Layers() {
			fmt.Fprintf(s.out, "  %-12s %d\n", id, len(sel.IDs(id)))
		}
	} else {
		fmt.Fprintln(s.out, "Selection:     none")
	}
	fmt.Fprintf(s.out, "Target:        %s\n", s.vm.Target())
	fmt.Fprintf(s.out, "Scale:         %g\n", s.vm.Scale())
	fmt.Fprintf(s.out, "Undo/redo:     %v/%v\n", s.exec.CanUndo(), s.exec.CanRedo())
}
