// Package rt is a small executor modelled on an interrupt controller plus a
// task scheduler.
//
// Interrupt vectors are bound to handlers in a static table, each with an
// explicit priority. Tasks are spawned explicitly, also with a priority.
// Start checks that every handler outranks every task and then runs each
// vector and each task on its own goroutine. A vector's handler is never
// re-entered: pending a vector while its handler runs sets the pending bit
// again and the handler runs once more afterwards.
package rt

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Vector identifies an interrupt source.
type Vector int

const (
	// VectorGPIO is raised by edges on monitored input lines.
	VectorGPIO Vector = iota

	numVectors
)

func (v Vector) String() string {
	switch v {
	case VectorGPIO:
		return "GPIO"
	default:
		return "unknown"
	}
}

// Priority orders execution contexts; larger is more urgent. Zero is invalid.
type Priority uint8

const (
	// PriorityTask is the priority of the output task.
	PriorityTask Priority = 1
	// PriorityInterrupt is the priority of the GPIO edge handler.
	PriorityInterrupt Priority = 2
)

// Handler services an interrupt. It must not block.
type Handler func()

// Task is a long-running context. It should only return once ctx is done.
type Task func(ctx context.Context) error

var (
	ErrStarted       = errors.New("executor already started")
	ErrVectorBound   = errors.New("vector already bound")
	ErrUnknownVector = errors.New("unknown vector")
	ErrPriority      = errors.New("invalid priority")
)

type binding struct {
	priority Priority
	handler  Handler
}

type spawned struct {
	name     string
	priority Priority
	task     Task
}

// Executor owns the vector table and the spawned tasks.
type Executor struct {
	mu      sync.Mutex
	started bool
	table   [numVectors]*binding
	tasks   []spawned

	// One pending bit per vector, allocated up front so a Pend that
	// arrives before Bind or Start is latched like a controller flag.
	pending [numVectors]chan struct{}

	ctx   context.Context
	group *errgroup.Group
}

// NewExecutor creates an executor whose goroutines stop when ctx is done.
func NewExecutor(ctx context.Context) *Executor {
	group, ctx := errgroup.WithContext(ctx)
	e := &Executor{ctx: ctx, group: group}
	for v := range e.pending {
		e.pending[v] = make(chan struct{}, 1)
	}
	return e
}

// Bind installs h as the handler for v at priority p.
func (e *Executor) Bind(v Vector, p Priority, h Handler) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrStarted
	}
	if v < 0 || v >= numVectors {
		return errors.Wrapf(ErrUnknownVector, "vector %d", v)
	}
	if p == 0 {
		return errors.Wrapf(ErrPriority, "vector %s: priority 0", v)
	}
	if e.table[v] != nil {
		return errors.Wrapf(ErrVectorBound, "vector %s", v)
	}
	e.table[v] = &binding{
		priority: p,
		handler:  h,
	}
	return nil
}

// Spawn registers t to run at priority p once the executor starts.
func (e *Executor) Spawn(name string, p Priority, t Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrStarted
	}
	if p == 0 {
		return errors.Wrapf(ErrPriority, "task %s: priority 0", name)
	}
	e.tasks = append(e.tasks, spawned{name: name, priority: p, task: t})
	return nil
}

// Pend marks v pending. It never blocks; pending an already pending vector
// is a no-op. A pend on a vector that is not yet bound or started is held
// and served once the executor starts.
func (e *Executor) Pend(v Vector) {
	if v < 0 || v >= numVectors {
		return
	}
	select {
	case e.pending[v] <- struct{}{}:
	default:
	}
}

// Start validates priorities and launches every vector and task.
func (e *Executor) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrStarted
	}
	for v, b := range e.table {
		if b == nil {
			continue
		}
		for _, t := range e.tasks {
			if b.priority <= t.priority {
				return errors.Wrapf(ErrPriority,
					"vector %s (priority %d) does not preempt task %s (priority %d)",
					Vector(v), b.priority, t.name, t.priority)
			}
		}
	}
	e.started = true

	for v, b := range e.table {
		if b == nil {
			continue
		}
		v, b := v, b
		e.group.Go(func() error {
			e.serve(b, e.pending[v])
			return nil
		})
	}
	for _, t := range e.tasks {
		t := t
		e.group.Go(func() error {
			if err := t.task(e.ctx); err != nil && e.ctx.Err() == nil {
				return errors.Wrapf(err, "task %s", t.name)
			}
			return nil
		})
	}
	return nil
}

// Wait blocks until every vector and task goroutine has returned.
// It returns the first task error, if any.
func (e *Executor) Wait() error {
	return e.group.Wait()
}

func (e *Executor) serve(b *binding, pending <-chan struct{}) {
	for {
		select {
		case <-pending:
			b.handler()
		case <-e.ctx.Done():
			return
		}
	}
}
