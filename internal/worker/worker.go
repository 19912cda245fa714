// Package worker implements the priority-tiered worker pool from spec.md
// §4.6: one background worker plus N real-time workers per core, each
// draining its own bounded inbound queue.
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/afcore/dsp-audio-framework/internal/logging"
	"github.com/afcore/dsp-audio-framework/internal/registry"
	"github.com/afcore/dsp-audio-framework/internal/scheduler"
	"github.com/afcore/dsp-audio-framework/internal/wire"
)

// Processor is the capability set a worker needs from a registered
// component: process one message, or run the component's own time-slice
// when self-scheduled via the cooperative scheduler.
type Processor interface {
	ID() registry.ClientID
	ProcessMessage(msg *wire.Descriptor) int // < 0 means "tear me down"
	Process() int
}

// Item is one entry in a worker's inbound queue: {component, optional
// message} per spec.md §3's Worker context field, plus the exit sentinel
// used to stop the worker's goroutine during pool teardown.
type Item struct {
	Component Processor
	Message   *wire.Descriptor // nil => run Component's own time-slice
	Exit      bool
}

// Worker owns exactly one goroutine, one bounded inbound channel, and its
// own base-cancel queue - grounded on the teacher's per-queue Runner,
// generalized from one-queue-per-tag to one-channel-per-priority-tier.
type Worker struct {
	index   int
	inbound chan Item
	scratch []byte

	mu         sync.Mutex
	baseCancel map[registry.ClientID]struct{}

	// sched is this worker's cooperative ready-queue: components that
	// registered for self-scheduled time-slices (spec.md §4.5 sched_put)
	// are drained from here, one per loop iteration, before Run falls
	// through to its blocking wait on inbound.
	sched *scheduler.Queue

	// lookup reconfirms a target client is still registered before
	// dispatching a message to it (spec.md §4.6: "validate client still
	// exists").
	lookup func(registry.ClientID) (Processor, bool)
	// onTeardown is invoked when a component's entry returns < 0,
	// mirroring the dispatcher's exit/free-id responsibility in §4.7.
	onTeardown func(Processor)

	logger *logging.Logger
}

// New builds a worker with the given inbound queue depth (spec.md §3:
// "bounded message queue (capacity 100)").
func New(index, queueDepth int, scratchSize int, lookup func(registry.ClientID) (Processor, bool), onTeardown func(Processor), logger *logging.Logger) *Worker {
	return &Worker{
		index:      index,
		inbound:    make(chan Item, queueDepth),
		scratch:    make([]byte, scratchSize),
		baseCancel: make(map[registry.ClientID]struct{}),
		sched:      scheduler.New(),
		lookup:     lookup,
		onTeardown: onTeardown,
		logger:     logger,
	}
}

// Index returns this worker's position in the pool (0 = background).
func (w *Worker) Index() int { return w.index }

// Submit enqueues an item, blocking until there is room or ctx is done.
func (w *Worker) Submit(ctx context.Context, item Item) error {
	select {
	case w.inbound <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkCancelled adds id to the base-cancel queue: any self-scheduled work
// item for id still sitting in the inbound queue is dropped on arrival,
// without scanning the queue (spec.md §4.6).
func (w *Worker) MarkCancelled(id registry.ClientID) {
	w.mu.Lock()
	w.baseCancel[id] = struct{}{}
	w.mu.Unlock()
	w.sched.Remove(id)
}

// SchedulePut enqueues c on this worker's cooperative ready-queue at
// priority prio, per spec.md §4.5 sched_put: c gets its own time-slice
// the next time this worker's Run loop comes around, ahead of blocking
// on the inbound channel again.
func (w *Worker) SchedulePut(c Processor, prio int) {
	w.sched.Put(c, prio)
}

// QueueDepth reports how many messages are currently waiting in this
// worker's inbound channel.
func (w *Worker) QueueDepth() int {
	return len(w.inbound)
}

// ClearCancelled removes id from the base-cancel queue, used once its
// component has actually been torn down and the id may be reused.
func (w *Worker) ClearCancelled(id registry.ClientID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.baseCancel, id)
}

func (w *Worker) isCancelled(id registry.ClientID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.baseCancel[id]
	return ok
}

// Run drains the cooperative scheduler's ready-queue non-blockingly
// before falling through to a blocking wait on the inbound channel,
// matching spec.md §4.5's service-loop: scheduled components get a
// time-slice as soon as the worker is free, and the loop only yields
// once both the scheduler and the inbound queue are empty.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if c := w.sched.Get(); c != nil {
			w.handle(Item{Component: c.(Processor)})
			continue
		}
		select {
		case item := <-w.inbound:
			if item.Exit {
				return nil
			}
			w.handle(item)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) handle(item Item) {
	if item.Message != nil {
		if _, ok := w.lookup(item.Component.ID()); !ok {
			return // client was deleted between submit and dispatch
		}
		if w.logger != nil {
			w.logger.WithMessage(uint32(item.Message.ID), item.Message.Opcode.String()).
				Debug("dispatching message")
		}
		if rc := item.Component.ProcessMessage(item.Message); rc < 0 && w.onTeardown != nil {
			w.onTeardown(item.Component)
		}
		return
	}

	// Self-scheduled time-slice: check the base-cancel queue first.
	if w.isCancelled(item.Component.ID()) {
		return
	}
	if rc := item.Component.Process(); rc < 0 && w.onTeardown != nil {
		w.onTeardown(item.Component)
	}
}

// Pool is the full N+1 worker set allocated on SET_PRIORITIES.
type Pool struct {
	workers []*Worker
	group   *errgroup.Group
}

// NewPool allocates nRT+1 workers (worker 0 is background) and returns
// the pool, not yet started.
func NewPool(nRT, queueDepth, scratchSize int, lookup func(registry.ClientID) (Processor, bool), onTeardown func(Processor), logger *logging.Logger) *Pool {
	workers := make([]*Worker, nRT+1)
	for i := range workers {
		l := logger
		if l != nil {
			l = l.WithWorker(i)
		}
		workers[i] = New(i, queueDepth, scratchSize, lookup, onTeardown, l)
	}
	return &Pool{workers: workers}
}

// Start launches every worker's goroutine under a shared errgroup, so a
// panic recovered elsewhere or a context cancellation tears the whole
// pool down cleanly - the worker-pool analogue of the teacher's
// CreateAndServe/StopAndDelete supervision pairing.
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	for _, w := range p.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
}

// Stop sends every worker an Exit item and waits for all goroutines to
// return.
func (p *Pool) Stop(ctx context.Context) error {
	for _, w := range p.workers {
		_ = w.Submit(ctx, Item{Exit: true})
	}
	if p.group == nil {
		return nil
	}
	return p.group.Wait()
}

// Len returns the number of workers in the pool (nRT + 1).
func (p *Pool) Len() int { return len(p.workers) }

// WorkerForPriority implements the dispatch-to-worker rule from spec.md
// §4.6: if priority < n_workers use worker[priority]; else clamp to the
// highest worker index.
func (p *Pool) WorkerForPriority(priority int) *Worker {
	n := len(p.workers)
	if priority < n {
		return p.workers[priority]
	}
	return p.workers[n-1]
}

// DefaultPriority computes the worker index a component inheriting the
// default priority is assigned, per spec.md §4.6 and the worked example
// in §8 scenario 6: it starts at nRT-1 (the lowest real-time tier) and is
// promoted to 0 (background) only if that tier's effective RTOS priority
// would be less urgent than the background priority.
func DefaultPriority(nRT, rtBase, bgPriority int) int {
	p := nRT - 1
	if rtBase+p < bgPriority {
		return 0
	}
	return p
}
