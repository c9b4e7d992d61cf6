// Package queue provides the single-threaded data-access context. Every piece
// of work that touches layers, the viewport or the edit history is submitted
// here and runs exclusively with respect to all other submitted work.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrClosed is reported by tasks submitted after the worker was closed.
var ErrClosed = errors.New("queue: worker closed")

// Scheduler accepts units of work for the data-access context.
type Scheduler interface {
	// Submit enqueues work and returns immediately. The returned task
	// completes once work has run (or was rejected).
	Submit(name string, work func(ctx context.Context) error) *Task
}

// Task is the completion handle of a submitted unit of work.
type Task struct {
	name string
	done chan struct{}
	err  error
}

func newTask(name string) *Task {
	return &Task{name: name, done: make(chan struct{})}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Name is the label the task was submitted with.
func (t *Task) Name() string { return t.name }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every non-nil task has finished and returns the first error.
func Wait(ctx context.Context, tasks ...*Task) error {
	var first error
	for _, t := range tasks {
		if t == nil {
			continue
		}
		if err := t.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type job struct {
	task *Task
	work func(ctx context.Context) error
}

// Worker runs submitted work one unit at a time on a single goroutine.
type Worker struct {
	jobs chan job

	mu      sync.Mutex
	closed  bool
	started bool
	senders sync.WaitGroup // Submit calls between the closed check and the send
	stopped chan struct{}
}

// NewWorker creates a worker whose queue holds up to buffer pending units
// before Submit blocks.
func NewWorker(buffer int) *Worker {
	if buffer < 0 {
		buffer = 0
	}
	return &Worker{
		jobs:    make(chan job, buffer),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine. ctx is handed to every unit of work;
// cancelling it does not stop the worker, Close does. Calling Start more than
// once, or after Close, has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.stopped)
		for j := range w.jobs {
			j.task.finish(run(ctx, j))
		}
	}()
}

func run(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: task %s panicked: %v", j.task.name, r)
			log.WithField("task", j.task.name).Error(err)
		}
	}()
	log.WithField("task", j.task.name).Debug("running task")
	return j.work(ctx)
}

// Submit implements Scheduler. It blocks while the queue is full.
func (w *Worker) Submit(name string, work func(ctx context.Context) error) *Task {
	t := newTask(name)
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		t.finish(ErrClosed)
		return t
	}
	w.senders.Add(1)
	w.mu.Unlock()

	w.jobs <- job{task: t, work: work}
	w.senders.Done()
	return t
}

// Close stops accepting work, lets queued work drain and waits for the worker
// goroutine to exit. Work queued on a worker that never started completes
// with ErrClosed. It is safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.stopped
		return
	}
	w.closed = true
	if !w.started {
		w.started = true
		go func() {
			defer close(w.stopped)
			for j := range w.jobs {
				j.task.finish(ErrClosed)
			}
		}()
	}
	w.mu.Unlock()

	w.senders.Wait()
	close(w.jobs)
	<-w.stopped
}

// Inline runs work synchronously on the caller's goroutine. Tests use it to
// drive the controller deterministically.
type Inline struct {
	Ctx context.Context

	mu    sync.Mutex
	names []string
}

// Submit implements Scheduler.
func (s *Inline) Submit(name string, work func(ctx context.Context) error) *Task {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()

	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	t := newTask(name)
	t.finish(run(ctx, job{task: t, work: work}))
	return t
}

// Submitted returns the names of all tasks submitted so far.
func (s *Inline) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}
